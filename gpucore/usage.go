package gpucore

import "github.com/gogpu/gputypes"

// Usage is the category of a stage's use of a resource. The category fixes
// which resource kinds and queue types are legal, which access flags and
// pipeline scopes may accompany it, the image layout it requires, and the
// creation usage flags it implies.
type Usage uint8

// Usage categories.
const (
	UsageNone Usage = iota
	UsageSampled
	UsageStorage
	UsageUniform
	UsageVertex
	UsageIndex
	UsageIndirect
	UsageColorAttachment
	UsageDepthAttachment
	UsageCopySrc
	UsageCopyDst
	UsageClear
	UsagePresent

	// UsageHold keeps a version alive without accessing it. The compiler
	// inserts it for exported versions nothing else touches.
	UsageHold

	usageCount
)

type kindMask uint8

const (
	imageOnly  = kindMask(1 << KindImage)
	bufferOnly = kindMask(1 << KindBuffer)
	anyKind    = imageOnly | bufferOnly
)

type usageInfo struct {
	name          string
	kinds         kindMask
	queues        QueueMask
	allowedAccess Access
	defaultAccess Access
	allowedScope  Scope
	texture       gputypes.TextureUsage
	buffer        gputypes.BufferUsage
	attachment    bool
}

var (
	graphicsCompute = QueueMaskOf(QueueGraphics, QueueCompute)
	copyQueues      = QueueMaskOf(QueueGraphics, QueueCompute, QueueTransfer)
	allQueues       = QueueMaskOf(QueueGraphics, QueueCompute, QueueTransfer, QueuePresent)
	shaderScopes    = ScopeVertexShader | ScopeFragmentShader | ScopeComputeShader
	depthScopes     = ScopeEarlyFragmentTests | ScopeLateFragmentTests
)

var usageTable = [usageCount]usageInfo{
	UsageNone: {name: "none"},
	UsageSampled: {
		name: "sampled", kinds: imageOnly, queues: graphicsCompute,
		allowedAccess: AccessShaderRead, defaultAccess: AccessShaderRead,
		allowedScope: shaderScopes, texture: gputypes.TextureUsageTextureBinding,
	},
	UsageStorage: {
		name: "storage", kinds: anyKind, queues: graphicsCompute,
		allowedAccess: AccessShaderRead | AccessShaderWrite, defaultAccess: AccessShaderRead | AccessShaderWrite,
		allowedScope: shaderScopes, texture: gputypes.TextureUsageStorageBinding, buffer: gputypes.BufferUsageStorage,
	},
	UsageUniform: {
		name: "uniform", kinds: bufferOnly, queues: graphicsCompute,
		allowedAccess: AccessUniformRead, defaultAccess: AccessUniformRead,
		allowedScope: shaderScopes, buffer: gputypes.BufferUsageUniform,
	},
	UsageVertex: {
		name: "vertex", kinds: bufferOnly, queues: QueueMaskOf(QueueGraphics),
		allowedAccess: AccessVertexRead, defaultAccess: AccessVertexRead,
		allowedScope: ScopeVertexInput, buffer: gputypes.BufferUsageVertex,
	},
	UsageIndex: {
		name: "index", kinds: bufferOnly, queues: QueueMaskOf(QueueGraphics),
		allowedAccess: AccessIndexRead, defaultAccess: AccessIndexRead,
		allowedScope: ScopeVertexInput, buffer: gputypes.BufferUsageIndex,
	},
	UsageIndirect: {
		name: "indirect", kinds: bufferOnly, queues: graphicsCompute,
		allowedAccess: AccessIndirectRead, defaultAccess: AccessIndirectRead,
		allowedScope: ScopeDrawIndirect, buffer: gputypes.BufferUsageIndirect,
	},
	UsageColorAttachment: {
		name: "color-attachment", kinds: imageOnly, queues: QueueMaskOf(QueueGraphics),
		allowedAccess: AccessColorRead | AccessColorWrite, defaultAccess: AccessColorWrite,
		allowedScope: ScopeColorOutput, texture: gputypes.TextureUsageRenderAttachment, attachment: true,
	},
	UsageDepthAttachment: {
		name: "depth-attachment", kinds: imageOnly, queues: QueueMaskOf(QueueGraphics),
		allowedAccess: AccessDepthRead | AccessDepthWrite, defaultAccess: AccessDepthRead | AccessDepthWrite,
		allowedScope: depthScopes, texture: gputypes.TextureUsageRenderAttachment, attachment: true,
	},
	UsageCopySrc: {
		name: "copy-src", kinds: anyKind, queues: copyQueues,
		allowedAccess: AccessTransferRead, defaultAccess: AccessTransferRead,
		allowedScope: ScopeTransfer, texture: gputypes.TextureUsageCopySrc, buffer: gputypes.BufferUsageCopySrc,
	},
	UsageCopyDst: {
		name: "copy-dst", kinds: anyKind, queues: copyQueues,
		allowedAccess: AccessTransferWrite, defaultAccess: AccessTransferWrite,
		allowedScope: ScopeTransfer, texture: gputypes.TextureUsageCopyDst, buffer: gputypes.BufferUsageCopyDst,
	},
	UsageClear: {
		name: "clear", kinds: anyKind, queues: copyQueues,
		allowedAccess: AccessTransferWrite, defaultAccess: AccessTransferWrite,
		allowedScope: ScopeTransfer,
		texture:      gputypes.TextureUsageCopyDst | gputypes.TextureUsageRenderAttachment,
		buffer:       gputypes.BufferUsageCopyDst | gputypes.BufferUsageStorage,
	},
	UsagePresent: {
		name: "present", kinds: imageOnly, queues: QueueMaskOf(QueueGraphics, QueuePresent),
		allowedAccess: AccessPresent, defaultAccess: AccessPresent,
		allowedScope: ScopePresent,
	},
	UsageHold: {name: "hold", kinds: anyKind, queues: allQueues},
}

func (u Usage) info() *usageInfo {
	if u >= usageCount {
		return &usageTable[UsageNone]
	}
	return &usageTable[u]
}

// String returns the category name.
func (u Usage) String() string { return u.info().name }

// ParseUsage converts a category name back into a Usage.
func ParseUsage(s string) (Usage, bool) {
	for u := UsageNone + 1; u < usageCount; u++ {
		if usageTable[u].name == s {
			return u, true
		}
	}
	return UsageNone, false
}

// Valid reports whether u is a known category other than UsageNone.
func (u Usage) Valid() bool { return u > UsageNone && u < usageCount }

// AllowsKind reports whether the category applies to the resource kind.
func (u Usage) AllowsKind(k ResourceKind) bool { return u.info().kinds&(1<<k) != 0 }

// AllowsQueue reports whether a stage on queue type q may use the category.
func (u Usage) AllowsQueue(q QueueType) bool { return u.info().queues.Has(q) }

// AllowedAccess returns every access flag legal for the category.
func (u Usage) AllowedAccess() Access { return u.info().allowedAccess }

// DefaultAccess returns the access flags assumed by the use helpers.
func (u Usage) DefaultAccess() Access { return u.info().defaultAccess }

// AllowedScope returns every pipeline scope legal for the category.
func (u Usage) AllowedScope() Scope { return u.info().allowedScope }

// DefaultScope returns the scope assumed when a use leaves it empty.
func (u Usage) DefaultScope(q QueueType) Scope {
	s := u.info().allowedScope
	if s&shaderScopes != 0 && s&^shaderScopes == 0 {
		if q == QueueCompute {
			return ScopeComputeShader
		}
		return ScopeFragmentShader
	}
	return s
}

// IsAttachment reports whether the category binds the image as a
// render-pass attachment.
func (u Usage) IsAttachment() bool { return u.info().attachment }

// TextureUsage returns the image creation flags the category implies.
func (u Usage) TextureUsage() gputypes.TextureUsage { return u.info().texture }

// BufferUsage returns the buffer creation flags the category implies.
func (u Usage) BufferUsage() gputypes.BufferUsage { return u.info().buffer }

// Layout returns the image layout a use with the given access requires.
// Buffers and UsageHold return LayoutUndefined.
func (u Usage) Layout(k ResourceKind, a Access) Layout {
	if k != KindImage {
		return LayoutUndefined
	}
	switch u {
	case UsageSampled:
		return LayoutShaderReadOnly
	case UsageStorage:
		return LayoutGeneral
	case UsageColorAttachment:
		return LayoutColorAttachment
	case UsageDepthAttachment:
		if a.Writes() {
			return LayoutDepthStencilAttachment
		}
		return LayoutDepthStencilReadOnly
	case UsageCopySrc:
		return LayoutTransferSrc
	case UsageCopyDst, UsageClear:
		return LayoutTransferDst
	case UsagePresent:
		return LayoutPresent
	default:
		return LayoutUndefined
	}
}

var accessUsage = []struct {
	access  Access
	texture gputypes.TextureUsage
	buffer  gputypes.BufferUsage
}{
	{AccessIndirectRead, 0, gputypes.BufferUsageIndirect},
	{AccessIndexRead, 0, gputypes.BufferUsageIndex},
	{AccessVertexRead, 0, gputypes.BufferUsageVertex},
	{AccessUniformRead, 0, gputypes.BufferUsageUniform},
	{AccessShaderRead, gputypes.TextureUsageTextureBinding, gputypes.BufferUsageStorage},
	{AccessShaderWrite, gputypes.TextureUsageStorageBinding, gputypes.BufferUsageStorage},
	{AccessColorRead | AccessColorWrite | AccessDepthRead | AccessDepthWrite, gputypes.TextureUsageRenderAttachment, 0},
	{AccessTransferRead, gputypes.TextureUsageCopySrc, gputypes.BufferUsageCopySrc},
	{AccessTransferWrite, gputypes.TextureUsageCopyDst, gputypes.BufferUsageCopyDst},
}

// StateUsage returns the creation usage flags a resource needs to be left
// in layout l with access a, as by the final state of an export.
func StateUsage(l Layout, a Access) (gputypes.TextureUsage, gputypes.BufferUsage) {
	var tex gputypes.TextureUsage
	var buf gputypes.BufferUsage
	for _, m := range accessUsage {
		if a&m.access != 0 {
			tex |= m.texture
			buf |= m.buffer
		}
	}
	switch l {
	case LayoutColorAttachment, LayoutDepthStencilAttachment, LayoutDepthStencilReadOnly:
		tex |= gputypes.TextureUsageRenderAttachment
	case LayoutShaderReadOnly:
		tex |= gputypes.TextureUsageTextureBinding
	case LayoutTransferSrc:
		tex |= gputypes.TextureUsageCopySrc
	case LayoutTransferDst:
		tex |= gputypes.TextureUsageCopyDst
	}
	return tex, buf
}
