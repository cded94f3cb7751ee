package native

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop" // registers gputypes.BackendEmpty

	"github.com/gogpu/framegraph/gpucore"
)

// pollInterval is how often WaitFence re-reads queue progress.
const pollInterval = 250 * time.Microsecond

func init() {
	gpucore.Register("noop", func() (gpucore.Device, error) {
		return Open(gputypes.BackendEmpty)
	})
}

// Device implements gpucore.Device on a hal device and queue.
// It is safe for concurrent use.
type Device struct {
	mu       sync.Mutex
	dev      hal.Device
	queue    hal.Queue
	adapter  hal.Adapter
	instance hal.Instance
	name     string
	limits   gputypes.Limits
	logger   *slog.Logger
	closed   bool

	fences map[*Fence]struct{}
	fill   *fillPipeline
	blits  int
}

// Open creates a device on the first suitable adapter of a registered hal
// backend. Discrete and integrated GPUs are preferred over others.
func Open(variant gputypes.Backend) (*Device, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBackendNotRegistered, variant)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		t := adapters[i].Info.DeviceType
		if t == gputypes.DeviceTypeDiscreteGPU || t == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	open, err := selected.Adapter.Open(gputypes.Features(0), selected.Capabilities.Limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}
	d := New(open.Device, open.Queue, selected.Info.Name)
	d.adapter = selected.Adapter
	d.instance = instance
	d.limits = selected.Capabilities.Limits
	return d, nil
}

// New wraps an open hal device and its queue. The caller keeps ownership:
// Close does not destroy dev.
func New(dev hal.Device, queue hal.Queue, name string) *Device {
	return &Device{
		dev:    dev,
		queue:  queue,
		name:   name,
		limits: gputypes.DefaultLimits(),
		logger: slog.New(slog.DiscardHandler),
		fences: make(map[*Fence]struct{}),
	}
}

// NewFromProvider wraps the device of a gpucontext.DeviceProvider, such as
// a gogpu application. The provider must expose hal objects.
func NewFromProvider(p gpucontext.DeviceProvider) (*Device, error) {
	dev, ok := p.Device().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: device is %T", ErrNotHAL, p.Device())
	}
	queue, ok := p.Queue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: queue is %T", ErrNotHAL, p.Queue())
	}
	d := New(dev, queue, p.AdapterInfo().Name)
	if a, ok := p.Adapter().(hal.Adapter); ok {
		d.adapter = a
	}
	return d, nil
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

// Name returns the adapter name.
func (d *Device) Name() string { return d.name }

// HAL returns the wrapped hal device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.dev, d.queue }

// Queues reports the single universal hal queue.
func (d *Device) Queues() []gpucore.QueueInfo {
	return []gpucore.QueueInfo{{
		Name:  "universal",
		Types: gpucore.QueueMaskOf(gpucore.QueueGraphics, gpucore.QueueCompute, gpucore.QueueTransfer, gpucore.QueuePresent),
	}}
}

// QueueFor returns 0 for every valid queue type.
func (d *Device) QueueFor(t gpucore.QueueType) int {
	if t >= gpucore.QueueTypeCount {
		return -1
	}
	return 0
}

// FormatSupported checks the adapter's format capabilities against the
// image's accumulated usage and the device limits.
func (d *Device) FormatSupported(info gpucore.ImageInfo) bool {
	if info.Format == gputypes.TextureFormatUndefined {
		return false
	}
	if info.Width > d.limits.MaxTextureDimension2D || info.Height > d.limits.MaxTextureDimension2D {
		return false
	}
	if d.adapter == nil {
		return true
	}
	flags := d.adapter.TextureFormatCapabilities(info.Format).Flags
	need := hal.TextureFormatCapabilityFlags(0)
	if info.Usage&gputypes.TextureUsageTextureBinding != 0 {
		need |= hal.TextureFormatCapabilitySampled
	}
	if info.Usage&gputypes.TextureUsageStorageBinding != 0 {
		need |= hal.TextureFormatCapabilityStorage
	}
	if info.Usage&gputypes.TextureUsageRenderAttachment != 0 {
		need |= hal.TextureFormatCapabilityRenderAttachment
	}
	if info.Samples > 1 {
		need |= hal.TextureFormatCapabilityMultisample
	}
	return flags&need == need
}

// Image is a hal texture.
type Image struct {
	dev   *Device
	label string
	info  gpucore.ImageInfo
	tex   hal.Texture
}

// Label returns the image label.
func (i *Image) Label() string { return i.label }

// Info returns the creation info.
func (i *Image) Info() gpucore.ImageInfo { return i.info }

// Texture returns the hal texture.
func (i *Image) Texture() hal.Texture { return i.tex }

// Buffer is a hal buffer.
type Buffer struct {
	dev   *Device
	label string
	info  gpucore.BufferInfo
	buf   hal.Buffer
}

// Label returns the buffer label.
func (b *Buffer) Label() string { return b.label }

// Info returns the creation info.
func (b *Buffer) Info() gpucore.BufferInfo { return b.info }

// HALBuffer returns the hal buffer.
func (b *Buffer) HALBuffer() hal.Buffer { return b.buf }

// CreateImage creates a hal texture. Depth and array layers share the
// hal depth-or-layers extent.
func (d *Device) CreateImage(label string, info gpucore.ImageInfo) (gpucore.Image, error) {
	if err := d.live(); err != nil {
		return nil, err
	}
	dim := info.Dimension
	if dim == gputypes.TextureDimensionUndefined {
		dim = gputypes.TextureDimension2D
	}
	layers := max(info.ArrayLayers, 1)
	if dim == gputypes.TextureDimension3D {
		layers = max(info.Depth, 1)
	}
	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: info.Width, Height: info.Height, DepthOrArrayLayers: layers},
		MipLevelCount: max(info.MipLevels, 1),
		SampleCount:   max(info.Samples, 1),
		Dimension:     dim,
		Format:        info.Format,
		Usage:         info.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: image %q: %w", gpucore.ErrOutOfMemory, label, err)
	}
	return &Image{dev: d, label: label, info: info, tex: tex}, nil
}

// DestroyImage destroys a texture created by this device.
func (d *Device) DestroyImage(img gpucore.Image) {
	if im, ok := img.(*Image); ok && im.dev == d && im.tex != nil {
		d.dev.DestroyTexture(im.tex)
		im.tex = nil
	}
}

// CreateBuffer creates a hal buffer. Copy usage is always added so clears
// and blits can target it.
func (d *Device) CreateBuffer(label string, info gpucore.BufferInfo) (gpucore.Buffer, error) {
	if err := d.live(); err != nil {
		return nil, err
	}
	buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  info.Size,
		Usage: info.Usage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: buffer %q: %w", gpucore.ErrOutOfMemory, label, err)
	}
	return &Buffer{dev: d, label: label, info: info, buf: buf}, nil
}

// DestroyBuffer destroys a buffer created by this device.
func (d *Device) DestroyBuffer(buf gpucore.Buffer) {
	if b, ok := buf.(*Buffer); ok && b.dev == d && b.buf != nil {
		d.dev.DestroyBuffer(b.buf)
		b.buf = nil
	}
}

func (d *Device) live() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	return nil
}

// Fence is a timeline fence emulated on hal submission indices.
type Fence struct {
	label   string
	reached uint64
	pending uint64
	points  []fencePoint
}

type fencePoint struct {
	value      uint64
	submission uint64
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
	if nf, ok := f.(*Fence); ok {
		delete(d.fences, nf)
	}
}

func (d *Device) fence(f gpucore.Fence) (*Fence, error) {
	nf, ok := f.(*Fence)
	if !ok {
		return nil, ErrForeignObject
	}
	if _, ok := d.fences[nf]; !ok {
		return nil, ErrForeignObject
	}
	return nf, nil
}

// advance moves every fence past the values whose submissions completed.
// d.mu must be held.
func (d *Device) advance() {
	done := d.queue.PollCompleted()
	for f := range d.fences {
		n := 0
		for _, p := range f.points {
			if p.submission > done {
				break
			}
			f.reached = max(f.reached, p.value)
			n++
		}
		f.points = f.points[n:]
	}
}

// FenceValue returns the last value the fence has reached.
func (d *Device) FenceValue(f gpucore.Fence) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nf, err := d.fence(f)
	if err != nil {
		return 0, err
	}
	d.advance()
	return nf.reached, nil
}

// WaitFence polls queue progress until the fence reaches value or ctx is
// done. A value no submission has signaled fails immediately.
func (d *Device) WaitFence(ctx context.Context, f gpucore.Fence, value uint64) error {
	var ticker *time.Ticker
	for {
		d.mu.Lock()
		nf, err := d.fence(f)
		if err != nil {
			d.mu.Unlock()
			return err
		}
		d.advance()
		reached, pending := nf.reached, nf.pending
		d.mu.Unlock()

		if reached >= value {
			return nil
		}
		if pending < value {
			return fmt.Errorf("%w: %s=%d (pending %d)", ErrNeverSignaled, nf.label, value, pending)
		}
		if ticker == nil {
			ticker = time.NewTicker(pollInterval)
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Submit hands the command buffers to the hal queue. The queue executes in
// order, so waits only have to name values some earlier submission signals.
func (d *Device) Submit(queue int, s *gpucore.Submission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	if queue != 0 {
		return fmt.Errorf("%w: %d", gpucore.ErrUnknownQueue, queue)
	}
	for _, w := range s.Waits {
		f, err := d.fence(w.Fence)
		if err != nil {
			return err
		}
		if f.pending < w.Value {
			return fmt.Errorf("%w: %s waits %s=%d", ErrNeverSignaled, s.Label, f.label, w.Value)
		}
	}
	signals := make([]*Fence, len(s.Signals))
	for i, sig := range s.Signals {
		f, err := d.fence(sig.Fence)
		if err != nil {
			return err
		}
		if sig.Value <= f.pending {
			return fmt.Errorf("native: %s signals %s=%d, already at %d", s.Label, f.label, sig.Value, f.pending)
		}
		signals[i] = f
	}
	cmds := make([]hal.CommandBuffer, 0, len(s.Commands))
	for _, c := range s.Commands {
		cb, ok := c.(*CommandBuffer)
		if !ok || cb.pool.dev != d {
			return ErrForeignObject
		}
		if cb.done == nil {
			return fmt.Errorf("%w: submit of %q before End", ErrEncoderState, cb.label)
		}
		cmds = append(cmds, cb.done)
	}

	idx, err := d.queue.Submit(cmds)
	if err != nil {
		return fmt.Errorf("native: submit %s: %w", s.Label, err)
	}
	for i, f := range signals {
		v := s.Signals[i].Value
		f.pending = v
		f.points = append(f.points, fencePoint{value: v, submission: idx})
	}
	d.logger.Debug("native: submit",
		slog.String("label", s.Label),
		slog.Uint64("submission", idx),
		slog.Int("commands", len(cmds)),
		slog.Int("waits", len(s.Waits)),
		slog.Int("signals", len(s.Signals)))
	return nil
}

// Close waits for the queue to drain and releases device objects. The hal
// device itself is destroyed only when Open created it.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.dev.WaitIdle()
	if d.fill != nil {
		d.fill.destroy(d.dev)
		d.fill = nil
	}
	if d.instance != nil {
		d.dev.Destroy()
		d.instance.Destroy()
	}
	return err
}
