package trace

import (
	"errors"
	"fmt"

	"github.com/gogpu/framegraph/gpucore"
)

// OpKind identifies a recorded command.
type OpKind uint8

// Recorded command kinds.
const (
	OpBarrier OpKind = iota
	OpBeginLabel
	OpEndLabel
	OpBeginRendering
	OpEndRendering
	OpBeginCompute
	OpEndCompute
	OpBindPipeline
	OpDispatch
	OpDraw
	OpClearImage
	OpClearBuffer
	OpCopyBuffer
	OpBlit
)

var opNames = [...]string{
	"barrier", "begin-label", "end-label", "begin-rendering", "end-rendering",
	"begin-compute", "end-compute", "bind-pipeline", "dispatch", "draw",
	"clear-image", "clear-buffer", "copy-buffer", "blit",
}

// String returns the command name.
func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return fmt.Sprintf("op(%d)", k)
}

// Op is one recorded command.
type Op struct {
	Kind      OpKind
	Name      string
	Barriers  []gpucore.Barrier
	Rendering *gpucore.RenderingInfo
}

// ErrInvalidState is returned for commands recorded out of order.
var ErrInvalidState = errors.New("trace: command recorded in invalid state")

// CommandBuffer records commands.
type CommandBuffer struct {
	Label string
	Queue int
	Ops   []Op

	inRendering bool
	inCompute   bool
	labels      int
	ended       bool
}

func (c *CommandBuffer) add(op Op) { c.Ops = append(c.Ops, op) }

// Barrier records a barrier batch. Empty batches are dropped.
func (c *CommandBuffer) Barrier(barriers []gpucore.Barrier) {
	if len(barriers) == 0 {
		return
	}
	c.add(Op{Kind: OpBarrier, Barriers: append([]gpucore.Barrier(nil), barriers...)})
}

// BeginLabel opens a debug label scope.
func (c *CommandBuffer) BeginLabel(name string) {
	c.labels++
	c.add(Op{Kind: OpBeginLabel, Name: name})
}

// EndLabel closes a debug label scope.
func (c *CommandBuffer) EndLabel() {
	c.labels--
	c.add(Op{Kind: OpEndLabel})
}

// BeginRendering opens a render pass.
func (c *CommandBuffer) BeginRendering(info *gpucore.RenderingInfo) error {
	if c.inRendering || c.inCompute {
		return fmt.Errorf("%w: nested pass %s", ErrInvalidState, info.Label)
	}
	c.inRendering = true
	cp := *info
	c.add(Op{Kind: OpBeginRendering, Name: info.Label, Rendering: &cp})
	return nil
}

// EndRendering closes the render pass.
func (c *CommandBuffer) EndRendering() {
	c.inRendering = false
	c.add(Op{Kind: OpEndRendering})
}

// BeginCompute opens a compute pass.
func (c *CommandBuffer) BeginCompute(label string) error {
	if c.inRendering || c.inCompute {
		return fmt.Errorf("%w: nested pass %s", ErrInvalidState, label)
	}
	c.inCompute = true
	c.add(Op{Kind: OpBeginCompute, Name: label})
	return nil
}

// EndCompute closes the compute pass.
func (c *CommandBuffer) EndCompute() {
	c.inCompute = false
	c.add(Op{Kind: OpEndCompute})
}

// Pipeline is a named pipeline for recorders driving the trace device.
type Pipeline string

// Label returns the pipeline name.
func (p Pipeline) Label() string { return string(p) }

// BindPipeline records a pipeline bind.
func (c *CommandBuffer) BindPipeline(p gpucore.Pipeline) error {
	c.add(Op{Kind: OpBindPipeline, Name: p.Label()})
	return nil
}

// Dispatch records a dispatch. It must be inside a compute pass.
func (c *CommandBuffer) Dispatch(x, y, z uint32) error {
	if !c.inCompute {
		return fmt.Errorf("%w: dispatch outside compute pass", ErrInvalidState)
	}
	c.add(Op{Kind: OpDispatch, Name: fmt.Sprintf("%dx%dx%d", x, y, z)})
	return nil
}

// Draw records a draw. It must be inside a render pass.
func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if !c.inRendering {
		return fmt.Errorf("%w: draw outside render pass", ErrInvalidState)
	}
	c.add(Op{Kind: OpDraw, Name: fmt.Sprintf("%d/%d", vertexCount, instanceCount)})
	return nil
}

// ClearImage records an image clear.
func (c *CommandBuffer) ClearImage(img gpucore.Image, _ gpucore.Range, _ gpucore.ClearValue) error {
	if c.inRendering || c.inCompute {
		return fmt.Errorf("%w: clear inside a pass", ErrInvalidState)
	}
	c.add(Op{Kind: OpClearImage, Name: img.Label()})
	return nil
}

// ClearBuffer records a buffer fill.
func (c *CommandBuffer) ClearBuffer(buf gpucore.Buffer, _, _ uint64, _ uint32) error {
	if c.inRendering || c.inCompute {
		return fmt.Errorf("%w: clear inside a pass", ErrInvalidState)
	}
	c.add(Op{Kind: OpClearBuffer, Name: buf.Label()})
	return nil
}

// CopyBuffer records a buffer copy.
func (c *CommandBuffer) CopyBuffer(src, dst gpucore.Buffer, _ []gpucore.BufferCopy) error {
	c.add(Op{Kind: OpCopyBuffer, Name: src.Label() + "->" + dst.Label()})
	return nil
}

// End finishes recording.
func (c *CommandBuffer) End() error {
	if c.inRendering || c.inCompute || c.labels != 0 {
		return fmt.Errorf("%w: end with open scopes", ErrInvalidState)
	}
	c.ended = true
	return nil
}

// Native returns the command buffer itself.
func (c *CommandBuffer) Native() any { return c }

// Count returns the number of recorded ops of a kind.
func (c *CommandBuffer) Count(k OpKind) int {
	n := 0
	for _, op := range c.Ops {
		if op.Kind == k {
			n++
		}
	}
	return n
}

// CommandPool allocates command buffers for one queue.
type CommandPool struct {
	queue     int
	allocated int
	Resets    int
}

// CreateCommandPool creates a pool for a queue.
func (d *Device) CreateCommandPool(queue int) (gpucore.CommandPool, error) {
	if queue < 0 || queue >= len(d.cfg.Queues) {
		return nil, fmt.Errorf("%w: %d", gpucore.ErrUnknownQueue, queue)
	}
	return &CommandPool{queue: queue}, nil
}

// Allocate returns a fresh command buffer.
func (p *CommandPool) Allocate(label string) (gpucore.CommandBuffer, error) {
	p.allocated++
	return &CommandBuffer{Label: label, Queue: p.queue}, nil
}

// Reset recycles the pool.
func (p *CommandPool) Reset() error {
	p.allocated = 0
	p.Resets++
	return nil
}

// Destroy releases the pool.
func (p *CommandPool) Destroy() {}

type blitPass struct {
	dev *Device
	cfg gpucore.BlitConfig
}

// CreateBlitPass creates a recorded blit pass.
func (d *Device) CreateBlitPass(cfg gpucore.BlitConfig) (gpucore.BlitPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blitPasses++
	return &blitPass{dev: d, cfg: cfg}, nil
}

func (b *blitPass) Config() gpucore.BlitConfig { return b.cfg }

func (b *blitPass) Record(cmd gpucore.CommandBuffer, src, dst gpucore.BlitTarget) error {
	cb, ok := cmd.(*CommandBuffer)
	if !ok {
		return ErrForeignObject
	}
	cb.add(Op{Kind: OpBlit, Name: targetLabel(src) + "->" + targetLabel(dst)})
	return nil
}

func (b *blitPass) Destroy() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	b.dev.blitPasses--
}

func targetLabel(t gpucore.BlitTarget) string {
	switch {
	case t.Image != nil:
		return t.Image.Label()
	case t.Buffer != nil:
		return t.Buffer.Label()
	default:
		return "?"
	}
}
