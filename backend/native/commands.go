package native

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/gpucore"
)

// CommandPool allocates hal command encoders for the universal queue.
type CommandPool struct {
	dev     *Device
	buffers []*CommandBuffer
}

// CreateCommandPool creates a pool for queue 0.
func (d *Device) CreateCommandPool(queue int) (gpucore.CommandPool, error) {
	if queue != 0 {
		return nil, fmt.Errorf("%w: %d", gpucore.ErrUnknownQueue, queue)
	}
	if err := d.live(); err != nil {
		return nil, err
	}
	return &CommandPool{dev: d}, nil
}

// Allocate creates an encoder and begins encoding.
func (p *CommandPool) Allocate(label string) (gpucore.CommandBuffer, error) {
	enc, err := p.dev.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create encoder %s: %w", label, err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		enc.Destroy()
		return nil, fmt.Errorf("native: begin encoding %s: %w", label, err)
	}
	cb := &CommandBuffer{pool: p, label: label, enc: enc}
	p.buffers = append(p.buffers, cb)
	return cb, nil
}

// Reset frees every buffer allocated since the previous reset. The caller
// guarantees the GPU finished with them.
func (p *CommandPool) Reset() error {
	for _, cb := range p.buffers {
		cb.release()
	}
	p.buffers = p.buffers[:0]
	return nil
}

// Destroy frees the remaining buffers.
func (p *CommandPool) Destroy() {
	_ = p.Reset()
}

// CommandBuffer records into a hal command encoder. Recording errors are
// sticky and surface from End.
type CommandBuffer struct {
	pool  *CommandPool
	label string
	enc   hal.CommandEncoder
	done  hal.CommandBuffer
	err   error

	render   hal.RenderPassEncoder
	compute  hal.ComputePassEncoder
	pipeline *Pipeline
	labels   []string

	views   []hal.TextureView
	scratch []hal.Buffer
	groups  []hal.BindGroup
}

func (c *CommandBuffer) device() hal.Device { return c.pool.dev.dev }

func (c *CommandBuffer) fail(err error) error {
	if c.err == nil {
		c.err = fmt.Errorf("native: %s [%s]: %w", c.label, strings.Join(c.labels, "/"), err)
	}
	return err
}

func (c *CommandBuffer) inPass() bool { return c.render != nil || c.compute != nil }

// Barrier records hal usage transitions.
func (c *CommandBuffer) Barrier(barriers []gpucore.Barrier) {
	if c.inPass() {
		_ = c.fail(fmt.Errorf("%w: barrier inside a pass", ErrEncoderState))
		return
	}
	textures, buffers, err := halBarriers(barriers)
	if err != nil {
		_ = c.fail(err)
		return
	}
	if len(textures) > 0 {
		c.enc.TransitionTextures(textures)
	}
	if len(buffers) > 0 {
		c.enc.TransitionBuffers(buffers)
	}
}

// BeginLabel pushes a debug label. hal has no marker API; labels prefix
// recording errors.
func (c *CommandBuffer) BeginLabel(name string) { c.labels = append(c.labels, name) }

// EndLabel pops a debug label.
func (c *CommandBuffer) EndLabel() {
	if n := len(c.labels); n > 0 {
		c.labels = c.labels[:n-1]
	}
}

// view creates a single-mip view of an attachment range.
func (c *CommandBuffer) view(img gpucore.Image, r gpucore.Range) (hal.TextureView, error) {
	im, ok := img.(*Image)
	if !ok {
		return nil, ErrForeignObject
	}
	tr := textureRange(im.info, r)
	dim := gputypes.TextureViewDimension2D
	if tr.ArrayLayerCount > 1 {
		dim = gputypes.TextureViewDimension2DArray
	}
	v, err := c.device().CreateTextureView(im.tex, &hal.TextureViewDescriptor{
		Label:           im.label,
		Format:          im.info.Format,
		Dimension:       dim,
		Aspect:          tr.Aspect,
		BaseMipLevel:    tr.BaseMipLevel,
		MipLevelCount:   1,
		BaseArrayLayer:  tr.BaseArrayLayer,
		ArrayLayerCount: tr.ArrayLayerCount,
	})
	if err != nil {
		return nil, err
	}
	c.views = append(c.views, v)
	return v, nil
}

// BeginRendering opens a hal render pass over the attachments.
func (c *CommandBuffer) BeginRendering(info *gpucore.RenderingInfo) error {
	if c.inPass() {
		return c.fail(fmt.Errorf("%w: nested pass %s", ErrEncoderState, info.Label))
	}
	desc := &hal.RenderPassDescriptor{Label: info.Label}
	for _, a := range info.Color {
		v, err := c.view(a.Image, a.Range)
		if err != nil {
			return c.fail(err)
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       v,
			LoadOp:     loadOp(a.Load),
			StoreOp:    storeOp(a.Store),
			ClearValue: color(a.Clear),
		})
	}
	if a := info.Depth; a != nil {
		v, err := c.view(a.Image, a.Range)
		if err != nil {
			return c.fail(err)
		}
		readOnly := a.Layout == gpucore.LayoutDepthStencilReadOnly
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              v,
			DepthLoadOp:       loadOp(a.Load),
			DepthStoreOp:      storeOp(a.Store),
			DepthClearValue:   a.Clear.Depth,
			DepthReadOnly:     readOnly,
			StencilLoadOp:     loadOp(a.Load),
			StencilStoreOp:    storeOp(a.Store),
			StencilClearValue: a.Clear.Stencil,
			StencilReadOnly:   readOnly,
		}
	}
	c.render = c.enc.BeginRenderPass(desc)
	c.pipeline = nil
	return nil
}

// EndRendering closes the render pass.
func (c *CommandBuffer) EndRendering() {
	if c.render == nil {
		_ = c.fail(fmt.Errorf("%w: EndRendering outside a render pass", ErrEncoderState))
		return
	}
	c.render.End()
	c.render = nil
	c.pipeline = nil
}

// BeginCompute opens a hal compute pass.
func (c *CommandBuffer) BeginCompute(label string) error {
	if c.inPass() {
		return c.fail(fmt.Errorf("%w: nested pass %s", ErrEncoderState, label))
	}
	c.compute = c.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	c.pipeline = nil
	return nil
}

// EndCompute closes the compute pass.
func (c *CommandBuffer) EndCompute() {
	if c.compute == nil {
		_ = c.fail(fmt.Errorf("%w: EndCompute outside a compute pass", ErrEncoderState))
		return
	}
	c.compute.End()
	c.compute = nil
	c.pipeline = nil
}

// BindPipeline binds a *Pipeline matching the open pass.
func (c *CommandBuffer) BindPipeline(p gpucore.Pipeline) error {
	np, ok := p.(*Pipeline)
	if !ok {
		return c.fail(ErrForeignObject)
	}
	switch {
	case c.compute != nil && np.compute != nil:
		c.compute.SetPipeline(np.compute)
		if np.group != nil {
			c.compute.SetBindGroup(0, np.group, nil)
		}
	case c.render != nil && np.render != nil:
		c.render.SetPipeline(np.render)
		if np.group != nil {
			c.render.SetBindGroup(0, np.group, nil)
		}
	default:
		return c.fail(fmt.Errorf("%w: pipeline %s does not match the open pass", ErrEncoderState, np.label))
	}
	c.pipeline = np
	return nil
}

// Dispatch runs the bound compute pipeline.
func (c *CommandBuffer) Dispatch(x, y, z uint32) error {
	if c.compute == nil {
		return c.fail(fmt.Errorf("%w: Dispatch outside a compute pass", ErrEncoderState))
	}
	if c.pipeline == nil {
		return c.fail(ErrNoPipeline)
	}
	c.compute.Dispatch(x, y, z)
	return nil
}

// Draw runs the bound render pipeline.
func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if c.render == nil {
		return c.fail(fmt.Errorf("%w: Draw outside a render pass", ErrEncoderState))
	}
	if c.pipeline == nil {
		return c.fail(ErrNoPipeline)
	}
	c.render.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	return nil
}

// ClearImage clears every mip and layer of r with a load-op-clear render
// pass. Images without attachment usage cannot be cleared this way.
func (c *CommandBuffer) ClearImage(img gpucore.Image, r gpucore.Range, value gpucore.ClearValue) error {
	if c.inPass() {
		return c.fail(fmt.Errorf("%w: ClearImage inside a pass", ErrEncoderState))
	}
	im, ok := img.(*Image)
	if !ok {
		return c.fail(ErrForeignObject)
	}
	if im.info.Usage&gputypes.TextureUsageRenderAttachment == 0 {
		return fmt.Errorf("%w: clear of non-attachment image %s", gpucore.ErrUnimplemented, im.label)
	}
	tr := textureRange(im.info, r)
	for mip := tr.BaseMipLevel; mip < tr.BaseMipLevel+tr.MipLevelCount; mip++ {
		for layer := tr.BaseArrayLayer; layer < tr.BaseArrayLayer+tr.ArrayLayerCount; layer++ {
			v, err := c.view(img, gpucore.Range{BaseMip: mip, MipCount: 1, BaseLayer: layer, LayerCount: 1})
			if err != nil {
				return c.fail(err)
			}
			desc := &hal.RenderPassDescriptor{Label: "clear " + im.label}
			if im.info.IsDepth() {
				desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
					View:              v,
					DepthLoadOp:       gputypes.LoadOpClear,
					DepthStoreOp:      gputypes.StoreOpStore,
					DepthClearValue:   value.Depth,
					StencilLoadOp:     gputypes.LoadOpClear,
					StencilStoreOp:    gputypes.StoreOpStore,
					StencilClearValue: value.Stencil,
				}
			} else {
				desc.ColorAttachments = []hal.RenderPassColorAttachment{{
					View:       v,
					LoadOp:     gputypes.LoadOpClear,
					StoreOp:    gputypes.StoreOpStore,
					ClearValue: color(value),
				}}
			}
			c.enc.BeginRenderPass(desc).End()
		}
	}
	return nil
}

// ClearBuffer writes value over [offset, offset+size). Zero uses the hal
// clear; other patterns run the fill compute shader and need storage usage.
func (c *CommandBuffer) ClearBuffer(buf gpucore.Buffer, offset, size uint64, value uint32) error {
	if c.inPass() {
		return c.fail(fmt.Errorf("%w: ClearBuffer inside a pass", ErrEncoderState))
	}
	b, ok := buf.(*Buffer)
	if !ok {
		return c.fail(ErrForeignObject)
	}
	if size == 0 {
		size = b.info.Size - offset
	}
	if value == 0 {
		c.enc.ClearBuffer(b.buf, offset, size)
		return nil
	}
	if b.info.Usage&gputypes.BufferUsageStorage == 0 || offset%4 != 0 || size%4 != 0 {
		return fmt.Errorf("%w: pattern fill of %s", gpucore.ErrUnimplemented, b.label)
	}
	return c.fill(b, offset, size, value)
}

func (c *CommandBuffer) fill(b *Buffer, offset, size uint64, value uint32) error {
	fp, err := c.pool.dev.fillPipeline()
	if err != nil {
		return c.fail(err)
	}
	params, err := c.device().CreateBuffer(&hal.BufferDescriptor{
		Label: "fill params " + b.label,
		Size:  fillParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return c.fail(err)
	}
	c.scratch = append(c.scratch, params)
	count := uint32(size / 4)
	if err := c.pool.dev.queue.WriteBuffer(params, 0, fillParams(uint32(offset/4), count, value)); err != nil {
		return c.fail(err)
	}
	group, err := c.device().CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "fill " + b.label,
		Layout: fp.layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Size: b.info.Size}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: params.NativeHandle(), Size: fillParamsSize}},
		},
	})
	if err != nil {
		return c.fail(err)
	}
	c.groups = append(c.groups, group)

	pass := c.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: "fill " + b.label})
	pass.SetPipeline(fp.pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.Dispatch((count+fillWorkgroup-1)/fillWorkgroup, 1, 1)
	pass.End()
	return nil
}

// CopyBuffer records a buffer-to-buffer copy.
func (c *CommandBuffer) CopyBuffer(src, dst gpucore.Buffer, regions []gpucore.BufferCopy) error {
	if c.inPass() {
		return c.fail(fmt.Errorf("%w: CopyBuffer inside a pass", ErrEncoderState))
	}
	s, ok := src.(*Buffer)
	if !ok {
		return c.fail(ErrForeignObject)
	}
	d, ok := dst.(*Buffer)
	if !ok {
		return c.fail(ErrForeignObject)
	}
	hr := make([]hal.BufferCopy, len(regions))
	for i, r := range regions {
		hr[i] = hal.BufferCopy{SrcOffset: r.SrcOffset, DstOffset: r.DstOffset, Size: r.Size}
	}
	c.enc.CopyBufferToBuffer(s.buf, d.buf, hr)
	return nil
}

// End finishes encoding. The first recording error is returned instead.
func (c *CommandBuffer) End() error {
	if c.err != nil {
		c.enc.DiscardEncoding()
		return c.err
	}
	if c.inPass() {
		c.enc.DiscardEncoding()
		return c.fail(fmt.Errorf("%w: End with an open pass", ErrEncoderState))
	}
	done, err := c.enc.EndEncoding()
	if err != nil {
		return c.fail(err)
	}
	c.done = done
	return nil
}

// Native returns the hal command encoder.
func (c *CommandBuffer) Native() any { return c.enc }

func (c *CommandBuffer) release() {
	dev := c.device()
	if c.done != nil {
		dev.FreeCommandBuffer(c.done)
		c.done = nil
	}
	c.enc.Destroy()
	for _, v := range c.views {
		dev.DestroyTextureView(v)
	}
	for _, g := range c.groups {
		dev.DestroyBindGroup(g)
	}
	for _, b := range c.scratch {
		dev.DestroyBuffer(b)
	}
	c.views, c.groups, c.scratch = nil, nil, nil
}
