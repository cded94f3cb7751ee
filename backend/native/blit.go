package native

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/gpucore"
)

type blitPass struct {
	dev *Device
	cfg gpucore.BlitConfig
}

// CreateBlitPass creates a copy pass. Buffer blits and same-format image
// copies are recorded with hal copies; Record reports
// gpucore.ErrUnimplemented for format conversion, scaling and resolve.
func (d *Device) CreateBlitPass(cfg gpucore.BlitConfig) (gpucore.BlitPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, gpucore.ErrDeviceClosed
	}
	d.blits++
	return &blitPass{dev: d, cfg: cfg}, nil
}

func (b *blitPass) Config() gpucore.BlitConfig { return b.cfg }

func (b *blitPass) Record(cmd gpucore.CommandBuffer, src, dst gpucore.BlitTarget) error {
	cb, ok := cmd.(*CommandBuffer)
	if !ok {
		return ErrForeignObject
	}
	if cb.inPass() {
		return cb.fail(fmt.Errorf("%w: blit inside a pass", ErrEncoderState))
	}
	if b.cfg.Kind == gpucore.KindBuffer {
		s, ok1 := src.Buffer.(*Buffer)
		d, ok2 := dst.Buffer.(*Buffer)
		if !ok1 || !ok2 {
			return cb.fail(ErrForeignObject)
		}
		size := min(s.info.Size, d.info.Size)
		cb.enc.CopyBufferToBuffer(s.buf, d.buf, []hal.BufferCopy{{Size: size}})
		return nil
	}

	if b.cfg.Resolve || b.cfg.SrcFormat != b.cfg.DstFormat {
		return fmt.Errorf("%w: image blit %v -> %v", gpucore.ErrUnimplemented, b.cfg.SrcFormat, b.cfg.DstFormat)
	}
	s, ok1 := src.Image.(*Image)
	d, ok2 := dst.Image.(*Image)
	if !ok1 || !ok2 {
		return cb.fail(ErrForeignObject)
	}
	if s.info.Width != d.info.Width || s.info.Height != d.info.Height {
		return fmt.Errorf("%w: scaled blit %s -> %s", gpucore.ErrUnimplemented, s.label, d.label)
	}
	sr := textureRange(s.info, src.Range)
	dr := textureRange(d.info, dst.Range)
	mips := min(sr.MipLevelCount, dr.MipLevelCount)
	layers := min(sr.ArrayLayerCount, dr.ArrayLayerCount)
	regions := make([]hal.TextureCopy, 0, mips)
	for m := range mips {
		w, h := s.info.MipExtent(sr.BaseMipLevel + m)
		regions = append(regions, hal.TextureCopy{
			SrcBase: hal.ImageCopyTexture{
				Texture:  s.tex,
				MipLevel: sr.BaseMipLevel + m,
				Origin:   hal.Origin3D{Z: sr.BaseArrayLayer},
				Aspect:   sr.Aspect,
			},
			DstBase: hal.ImageCopyTexture{
				Texture:  d.tex,
				MipLevel: dr.BaseMipLevel + m,
				Origin:   hal.Origin3D{Z: dr.BaseArrayLayer},
				Aspect:   dr.Aspect,
			},
			Size: hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: layers},
		})
	}
	cb.enc.CopyTextureToTexture(s.tex, d.tex, regions)
	return nil
}

func (b *blitPass) Destroy() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	b.dev.blits--
}

// BlitPasses returns the number of live blit passes.
func (d *Device) BlitPasses() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blits
}
