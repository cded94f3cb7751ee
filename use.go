package framegraph

import "github.com/gogpu/framegraph/gpucore"

// UseDesc describes how a stage uses a resource.
//
// Zero Access and Scope take the usage category's defaults. A zero Range
// covers the whole resource. A non-zero Token must be unique within the
// stage. Clear only applies to attachments: when set, the render pass
// clears the attachment instead of loading it.
type UseDesc struct {
	Usage  gpucore.Usage
	Access gpucore.Access
	Scope  gpucore.Scope
	Range  gpucore.Range
	Token  uint64
	Clear  *gpucore.ClearValue
}

// WithRange returns a copy of d restricted to r.
func (d UseDesc) WithRange(r gpucore.Range) UseDesc {
	d.Range = r
	return d
}

// WithToken returns a copy of d carrying token t.
func (d UseDesc) WithToken(t uint64) UseDesc {
	d.Token = t
	return d
}

// WithScope returns a copy of d with an explicit pipeline scope.
func (d UseDesc) WithScope(s gpucore.Scope) UseDesc {
	d.Scope = s
	return d
}

// ClearTo returns a copy of d that clears the attachment to v.
func (d UseDesc) ClearTo(v gpucore.ClearValue) UseDesc {
	d.Clear = &v
	return d
}

func use(u gpucore.Usage, a gpucore.Access) UseDesc {
	return UseDesc{Usage: u, Access: a}
}

// Sampled reads an image through a sampler.
func Sampled() UseDesc { return use(gpucore.UsageSampled, gpucore.AccessShaderRead) }

// StorageRead reads a storage image or buffer.
func StorageRead() UseDesc { return use(gpucore.UsageStorage, gpucore.AccessShaderRead) }

// StorageWrite writes a storage image or buffer without reading it.
func StorageWrite() UseDesc { return use(gpucore.UsageStorage, gpucore.AccessShaderWrite) }

// StorageReadWrite reads and writes a storage image or buffer.
func StorageReadWrite() UseDesc {
	return use(gpucore.UsageStorage, gpucore.AccessShaderRead|gpucore.AccessShaderWrite)
}

// ColorAttachment renders into a color attachment without loading it.
func ColorAttachment() UseDesc { return use(gpucore.UsageColorAttachment, gpucore.AccessColorWrite) }

// ColorBlend renders into a color attachment, loading previous contents.
func ColorBlend() UseDesc {
	return use(gpucore.UsageColorAttachment, gpucore.AccessColorRead|gpucore.AccessColorWrite)
}

// DepthAttachment tests and writes a depth attachment.
func DepthAttachment() UseDesc {
	return use(gpucore.UsageDepthAttachment, gpucore.AccessDepthRead|gpucore.AccessDepthWrite)
}

// DepthRead tests against a read-only depth attachment.
func DepthRead() UseDesc { return use(gpucore.UsageDepthAttachment, gpucore.AccessDepthRead) }

// CopySrc reads a resource as a transfer source.
func CopySrc() UseDesc { return use(gpucore.UsageCopySrc, gpucore.AccessTransferRead) }

// CopyDst writes a resource as a transfer destination.
func CopyDst() UseDesc { return use(gpucore.UsageCopyDst, gpucore.AccessTransferWrite) }

// VertexBuffer reads a buffer as vertex input.
func VertexBuffer() UseDesc { return use(gpucore.UsageVertex, gpucore.AccessVertexRead) }

// IndexBuffer reads a buffer as index input.
func IndexBuffer() UseDesc { return use(gpucore.UsageIndex, gpucore.AccessIndexRead) }

// IndirectBuffer reads draw or dispatch arguments from a buffer.
func IndirectBuffer() UseDesc { return use(gpucore.UsageIndirect, gpucore.AccessIndirectRead) }

// UniformBuffer reads a buffer as uniform data.
func UniformBuffer() UseDesc { return use(gpucore.UsageUniform, gpucore.AccessUniformRead) }

// Present hands an image to the presentation engine.
func Present() UseDesc { return use(gpucore.UsagePresent, gpucore.AccessPresent) }
