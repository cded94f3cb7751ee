// Package trace provides an in-memory gpucore.Device that records every
// call instead of talking to a GPU.
//
// Submissions complete immediately unless the device is created with
// Config.Deferred, in which case queued signals are applied by Flush.
// Waiting on a value no submission will ever signal is reported as
// ErrDeadlock at submit time.
//
// The device registers itself as "trace":
//
//	import _ "github.com/gogpu/framegraph/backend/trace"
//
//	dev, err := gpucore.Open("trace")
package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

// Trace device errors.
var (
	// ErrDeadlock is returned when a submission waits on a fence value no
	// earlier submission signals.
	ErrDeadlock = errors.New("trace: wait on a value that is never signaled")

	// ErrForeignObject is returned for objects created by another device.
	ErrForeignObject = errors.New("trace: object belongs to another device")

	// ErrFenceRegression is returned when a signal does not increase a fence.
	ErrFenceRegression = errors.New("trace: fence signaled with a non-increasing value")
)

func init() {
	gpucore.Register("trace", func() (gpucore.Device, error) {
		return New(DefaultConfig()), nil
	})
}

// Config holds device configuration.
type Config struct {
	// Queues lists the hardware queues. Defaults to DefaultQueues.
	Queues []gpucore.QueueInfo

	// Unsupported lists formats FormatSupported rejects.
	Unsupported []gputypes.TextureFormat

	// Deferred holds submitted signals back until Flush.
	Deferred bool
}

// DefaultQueues models a GPU with a universal queue, an async compute queue
// and a dedicated transfer queue.
func DefaultQueues() []gpucore.QueueInfo {
	return []gpucore.QueueInfo{
		{Name: "universal", Types: gpucore.QueueMaskOf(gpucore.QueueGraphics, gpucore.QueueCompute, gpucore.QueueTransfer, gpucore.QueuePresent)},
		{Name: "async-compute", Types: gpucore.QueueMaskOf(gpucore.QueueCompute, gpucore.QueueTransfer)},
		{Name: "transfer", Types: gpucore.QueueMaskOf(gpucore.QueueTransfer)},
	}
}

// SingleQueue models a GPU with one universal queue.
func SingleQueue() []gpucore.QueueInfo {
	return DefaultQueues()[:1]
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Queues: DefaultQueues()}
}

// Submitted is one recorded submission.
type Submitted struct {
	Queue    int
	Label    string
	Waits    []Point
	Signals  []Point
	Commands []*CommandBuffer
}

// Point is a recorded fence value.
type Point struct {
	Fence string
	Value uint64
}

// Device is the recording device. It is safe for concurrent use.
type Device struct {
	mu      sync.Mutex
	cfg     Config
	logger  *slog.Logger
	nextID  uint64
	closed  bool
	notify  chan struct{}
	fences  map[*Fence]struct{}
	pending []pendingSignal

	submissions []Submitted
	liveImages  int
	liveBuffers int
	created     int
	blitPasses  int
}

type pendingSignal struct {
	fence *Fence
	value uint64
}

// New creates a device.
func New(cfg Config) *Device {
	if len(cfg.Queues) == 0 {
		cfg.Queues = DefaultQueues()
	}
	return &Device{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
		notify: make(chan struct{}),
		fences: make(map[*Fence]struct{}),
	}
}

// SetLogger sets the logger used for submission tracing.
func (d *Device) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	d.logger = l
}

func (d *Device) id() uint64 {
	d.nextID++
	return d.nextID
}

// Name returns "trace".
func (d *Device) Name() string { return "trace" }

// Queues returns the configured queues.
func (d *Device) Queues() []gpucore.QueueInfo { return d.cfg.Queues }

// QueueFor returns the most specialized queue supporting t.
func (d *Device) QueueFor(t gpucore.QueueType) int {
	best, bestTypes := -1, 0
	for i, q := range d.cfg.Queues {
		if !q.Types.Has(t) {
			continue
		}
		n := 0
		for k := gpucore.QueueType(0); k < gpucore.QueueTypeCount; k++ {
			if q.Types.Has(k) {
				n++
			}
		}
		if best < 0 || n < bestTypes {
			best, bestTypes = i, n
		}
	}
	return best
}

// FormatSupported rejects the configured formats and the undefined format.
func (d *Device) FormatSupported(info gpucore.ImageInfo) bool {
	if info.Format == gputypes.TextureFormatUndefined {
		return false
	}
	for _, f := range d.cfg.Unsupported {
		if f == info.Format {
			return false
		}
	}
	return true
}

// Image is a recorded image.
type Image struct {
	ID        uint64
	label     string
	info      gpucore.ImageInfo
	Destroyed bool
}

// Label returns the image label.
func (i *Image) Label() string { return i.label }

// Info returns the creation info.
func (i *Image) Info() gpucore.ImageInfo { return i.info }

// Buffer is a recorded buffer.
type Buffer struct {
	ID        uint64
	label     string
	info      gpucore.BufferInfo
	Destroyed bool
}

// Label returns the buffer label.
func (b *Buffer) Label() string { return b.label }

// Info returns the creation info.
func (b *Buffer) Info() gpucore.BufferInfo { return b.info }

// NewImage creates an image outside any device, for use as an import.
func NewImage(label string, info gpucore.ImageInfo) *Image {
	return &Image{label: label, info: info}
}

// NewBuffer creates a buffer outside any device, for use as an import.
func NewBuffer(label string, info gpucore.BufferInfo) *Buffer {
	return &Buffer{label: label, info: info}
}

// CreateImage records an image creation.
func (d *Device) CreateImage(label string, info gpucore.ImageInfo) (gpucore.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, gpucore.ErrDeviceClosed
	}
	d.liveImages++
	d.created++
	return &Image{ID: d.id(), label: label, info: info}, nil
}

// DestroyImage records an image destruction.
func (d *Device) DestroyImage(img gpucore.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if im, ok := img.(*Image); ok && !im.Destroyed {
		im.Destroyed = true
		d.liveImages--
	}
}

// CreateBuffer records a buffer creation.
func (d *Device) CreateBuffer(label string, info gpucore.BufferInfo) (gpucore.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, gpucore.ErrDeviceClosed
	}
	d.liveBuffers++
	d.created++
	return &Buffer{ID: d.id(), label: label, info: info}, nil
}

// DestroyBuffer records a buffer destruction.
func (d *Device) DestroyBuffer(buf gpucore.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := buf.(*Buffer); ok && !b.Destroyed {
		b.Destroyed = true
		d.liveBuffers--
	}
}

// Fence is a recorded timeline fence.
type Fence struct {
	label   string
	value   uint64
	pending uint64
}

// Label returns the fence label.
func (f *Fence) Label() string { return f.label }

// CreateFence creates a fence at value 0.
func (d *Device) CreateFence(label string) (gpucore.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, gpucore.ErrDeviceClosed
	}
	f := &Fence{label: label}
	d.fences[f] = struct{}{}
	return f, nil
}

// DestroyFence forgets a fence.
func (d *Device) DestroyFence(f gpucore.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tf, ok := f.(*Fence); ok {
		delete(d.fences, tf)
	}
}

// FenceValue returns the fence's current value.
func (d *Device) FenceValue(f gpucore.Fence) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tf, err := d.fence(f)
	if err != nil {
		return 0, err
	}
	return tf.value, nil
}

func (d *Device) fence(f gpucore.Fence) (*Fence, error) {
	tf, ok := f.(*Fence)
	if !ok {
		return nil, ErrForeignObject
	}
	if _, ok := d.fences[tf]; !ok {
		return nil, ErrForeignObject
	}
	return tf, nil
}

// WaitFence blocks until the fence reaches value or ctx is done.
func (d *Device) WaitFence(ctx context.Context, f gpucore.Fence, value uint64) error {
	for {
		d.mu.Lock()
		tf, err := d.fence(f)
		if err != nil {
			d.mu.Unlock()
			return err
		}
		if tf.value >= value {
			d.mu.Unlock()
			return nil
		}
		if tf.pending < value {
			d.mu.Unlock()
			return fmt.Errorf("%w: %s=%d", ErrDeadlock, tf.label, value)
		}
		ch := d.notify
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Submit records a submission and applies or queues its signals.
func (d *Device) Submit(queue int, s *gpucore.Submission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	if queue < 0 || queue >= len(d.cfg.Queues) {
		return fmt.Errorf("%w: %d", gpucore.ErrUnknownQueue, queue)
	}

	rec := Submitted{Queue: queue, Label: s.Label}
	for _, w := range s.Waits {
		f, err := d.fence(w.Fence)
		if err != nil {
			return err
		}
		if f.pending < w.Value {
			return fmt.Errorf("%w: %s waits %s=%d (pending %d)", ErrDeadlock, s.Label, f.label, w.Value, f.pending)
		}
		rec.Waits = append(rec.Waits, Point{Fence: f.label, Value: w.Value})
	}
	for _, c := range s.Commands {
		cb, ok := c.(*CommandBuffer)
		if !ok {
			return ErrForeignObject
		}
		if !cb.ended {
			return fmt.Errorf("trace: submit of command buffer %q that was not ended", cb.Label)
		}
		rec.Commands = append(rec.Commands, cb)
	}
	for _, sig := range s.Signals {
		f, err := d.fence(sig.Fence)
		if err != nil {
			return err
		}
		if sig.Value <= f.pending {
			return fmt.Errorf("%w: %s %d <= %d", ErrFenceRegression, f.label, sig.Value, f.pending)
		}
		f.pending = sig.Value
		rec.Signals = append(rec.Signals, Point{Fence: f.label, Value: sig.Value})
		if d.cfg.Deferred {
			d.pending = append(d.pending, pendingSignal{fence: f, value: sig.Value})
		} else {
			f.value = sig.Value
		}
	}
	d.submissions = append(d.submissions, rec)
	d.logger.Debug("trace: submit",
		slog.Int("queue", queue),
		slog.String("label", s.Label),
		slog.Int("commands", len(rec.Commands)),
		slog.Int("waits", len(rec.Waits)),
		slog.Int("signals", len(rec.Signals)))
	if !d.cfg.Deferred {
		d.broadcast()
	}
	return nil
}

// Flush applies every queued signal, as if the GPU caught up.
func (d *Device) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pending {
		p.fence.value = max(p.fence.value, p.value)
	}
	d.pending = nil
	d.broadcast()
}

func (d *Device) broadcast() {
	close(d.notify)
	d.notify = make(chan struct{})
}

// Submissions returns a copy of the recorded submissions.
func (d *Device) Submissions() []Submitted {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submitted(nil), d.submissions...)
}

// Reset forgets recorded submissions.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submissions = nil
}

// Live returns the number of images and buffers not yet destroyed.
func (d *Device) Live() (images, buffers int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveImages, d.liveBuffers
}

// Created returns the number of images and buffers ever created.
func (d *Device) Created() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

// BlitPasses returns the number of live blit passes.
func (d *Device) BlitPasses() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blitPasses
}

// Close marks the device closed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
