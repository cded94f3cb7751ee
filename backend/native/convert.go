package native

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/gpucore"
)

// textureUsage maps an image layout to the hal usage state it stands for.
func textureUsage(l gpucore.Layout) gputypes.TextureUsage {
	switch l {
	case gpucore.LayoutGeneral:
		return gputypes.TextureUsageStorageBinding
	case gpucore.LayoutColorAttachment, gpucore.LayoutDepthStencilAttachment,
		gpucore.LayoutDepthStencilReadOnly, gpucore.LayoutPresent:
		return gputypes.TextureUsageRenderAttachment
	case gpucore.LayoutShaderReadOnly:
		return gputypes.TextureUsageTextureBinding
	case gpucore.LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc
	case gpucore.LayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	default:
		return gputypes.TextureUsageNone
	}
}

// bufferUsage maps buffer access flags to hal buffer usage states.
func bufferUsage(a gpucore.Access) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if a&(gpucore.AccessShaderRead|gpucore.AccessShaderWrite) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if a&gpucore.AccessUniformRead != 0 {
		u |= gputypes.BufferUsageUniform
	}
	if a&gpucore.AccessVertexRead != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if a&gpucore.AccessIndexRead != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if a&gpucore.AccessIndirectRead != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	if a&gpucore.AccessTransferRead != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	if a&gpucore.AccessTransferWrite != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	if a&gpucore.AccessHostRead != 0 {
		u |= gputypes.BufferUsageMapRead
	}
	if a&gpucore.AccessHostWrite != 0 {
		u |= gputypes.BufferUsageMapWrite
	}
	return u
}

func textureRange(info gpucore.ImageInfo, r gpucore.Range) hal.TextureRange {
	r = r.Resolve(max(info.MipLevels, 1), max(info.ArrayLayers, 1))
	return hal.TextureRange{
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    r.BaseMip,
		MipLevelCount:   r.MipCount,
		BaseArrayLayer:  r.BaseLayer,
		ArrayLayerCount: r.LayerCount,
	}
}

// halBarriers splits gpucore barriers into hal texture and buffer
// transitions. Release halves are dropped: the single hal queue never
// transfers ownership, and the matching acquire carries the transition.
func halBarriers(barriers []gpucore.Barrier) ([]hal.TextureBarrier, []hal.BufferBarrier, error) {
	var textures []hal.TextureBarrier
	var buffers []hal.BufferBarrier
	for _, b := range barriers {
		if b.IsRelease() {
			continue
		}
		switch {
		case b.Image != nil:
			img, ok := b.Image.(*Image)
			if !ok {
				return nil, nil, ErrForeignObject
			}
			textures = append(textures, hal.TextureBarrier{
				Texture: img.tex,
				Range:   textureRange(img.info, b.Range),
				Usage: hal.TextureUsageTransition{
					OldUsage: textureUsage(b.OldLayout),
					NewUsage: textureUsage(b.NewLayout),
				},
			})
		case b.Buffer != nil:
			buf, ok := b.Buffer.(*Buffer)
			if !ok {
				return nil, nil, ErrForeignObject
			}
			buffers = append(buffers, hal.BufferBarrier{
				Buffer: buf.buf,
				Usage: hal.BufferUsageTransition{
					OldUsage: bufferUsage(b.SrcAccess),
					NewUsage: bufferUsage(b.DstAccess),
				},
			})
		}
	}
	return textures, buffers, nil
}

func loadOp(op gpucore.LoadOp) gputypes.LoadOp {
	if op == gpucore.LoadOpClear {
		return gputypes.LoadOpClear
	}
	// hal has no don't-care load; load is always valid.
	return gputypes.LoadOpLoad
}

func storeOp(op gpucore.StoreOp) gputypes.StoreOp {
	if op == gpucore.StoreOpDontCare {
		return gputypes.StoreOpDiscard
	}
	return gputypes.StoreOpStore
}

func color(c gpucore.ClearValue) gputypes.Color {
	return gputypes.Color{
		R: float64(c.Color[0]),
		G: float64(c.Color[1]),
		B: float64(c.Color[2]),
		A: float64(c.Color[3]),
	}
}
