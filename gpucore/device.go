package gpucore

import (
	"context"
	"errors"

	"github.com/gogpu/gputypes"
)

// Device errors.
var (
	// ErrUnimplemented marks a code path a backend does not implement yet.
	// It is reported as a diagnostic rather than a hard failure.
	ErrUnimplemented = errors.New("gpucore: not implemented")

	// ErrOutOfMemory is returned when the device cannot allocate a resource.
	ErrOutOfMemory = errors.New("gpucore: out of device memory")

	// ErrDeviceClosed is returned by calls on a closed device.
	ErrDeviceClosed = errors.New("gpucore: device closed")

	// ErrUnknownQueue is returned for a queue index the device does not expose.
	ErrUnknownQueue = errors.New("gpucore: unknown queue")
)

// QueueInfo describes one hardware queue.
type QueueInfo struct {
	Name  string
	Types QueueMask
}

// Image is a physical image owned by a device.
type Image interface {
	Label() string
	Info() ImageInfo
}

// Buffer is a physical buffer owned by a device.
type Buffer interface {
	Label() string
	Info() BufferInfo
}

// Fence is a timeline fence: a monotonically increasing 64-bit counter
// signalled by queue submissions and waited on by the host or other queues.
type Fence interface {
	Label() string
}

// FenceValue names a point on a fence's timeline.
type FenceValue struct {
	Fence Fence
	Value uint64
}

// Submission is one batch of command buffers submitted to a queue.
type Submission struct {
	Label    string
	Waits    []FenceValue
	Commands []CommandBuffer
	Signals  []FenceValue
}

// Barrier is one synchronization record. Exactly one of Image or Buffer is
// set. SrcQueue and DstQueue are queue indices; both are QueueIgnored when
// the barrier does not transfer ownership. A release has empty destination
// access and scope, an acquire has empty source access and scope.
type Barrier struct {
	Image     Image
	Buffer    Buffer
	Range     Range
	SrcScope  Scope
	DstScope  Scope
	SrcAccess Access
	DstAccess Access
	OldLayout Layout
	NewLayout Layout
	SrcQueue  int
	DstQueue  int
}

// IsRelease reports whether b is the releasing half of an ownership transfer.
func (b Barrier) IsRelease() bool {
	return b.SrcQueue != b.DstQueue && b.DstScope == ScopeNone && b.DstAccess == AccessNone
}

// IsAcquire reports whether b is the acquiring half of an ownership transfer.
func (b Barrier) IsAcquire() bool {
	return b.SrcQueue != b.DstQueue && b.SrcScope == ScopeNone && b.SrcAccess == AccessNone
}

// LoadOp selects what happens to attachment contents when a render pass begins.
type LoadOp uint8

// Load operations.
const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

// StoreOp selects what happens to attachment contents when a render pass ends.
type StoreOp uint8

// Store operations.
const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

// ClearValue is the value an image or buffer is cleared to.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// Attachment binds an image to a render pass.
type Attachment struct {
	Image  Image
	Range  Range
	Layout Layout
	Load   LoadOp
	Store  StoreOp
	Clear  ClearValue
}

// RenderingInfo describes one render pass.
type RenderingInfo struct {
	Label  string
	Width  uint32
	Height uint32
	Color  []Attachment
	Depth  *Attachment
}

// BufferCopy is one region of a buffer-to-buffer copy.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// Pipeline is a backend pipeline object bound by stage recorders.
type Pipeline interface {
	Label() string
}

// CommandBuffer records GPU commands for one queue.
type CommandBuffer interface {
	Barrier(barriers []Barrier)
	BeginLabel(name string)
	EndLabel()
	BeginRendering(info *RenderingInfo) error
	EndRendering()
	BeginCompute(label string) error
	EndCompute()
	BindPipeline(p Pipeline) error
	Dispatch(x, y, z uint32) error
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error
	ClearImage(img Image, r Range, value ClearValue) error
	ClearBuffer(buf Buffer, offset, size uint64, value uint32) error
	CopyBuffer(src, dst Buffer, regions []BufferCopy) error
	End() error

	// Native returns the backend command object.
	Native() any
}

// CommandPool allocates command buffers for one queue. Reset recycles every
// buffer allocated since the previous reset.
type CommandPool interface {
	Allocate(label string) (CommandBuffer, error)
	Reset() error
	Destroy()
}

// BlitFilter selects the sampling filter of an image blit.
type BlitFilter uint8

// Blit filters.
const (
	BlitNearest BlitFilter = iota
	BlitLinear
)

// BlitConfig keys an auxiliary copy pass. Equal configs share one pass.
type BlitConfig struct {
	Kind      ResourceKind
	SrcFormat gputypes.TextureFormat
	DstFormat gputypes.TextureFormat
	Filter    BlitFilter
	Resolve   bool
}

// BlitTarget is one side of a blit.
type BlitTarget struct {
	Image  Image
	Buffer Buffer
	Range  Range
}

// BlitPass is an auxiliary pass that copies one resource into another of a
// possibly different shape.
type BlitPass interface {
	Config() BlitConfig
	Record(cmd CommandBuffer, src, dst BlitTarget) error
	Destroy()
}

// Device is the backend collaborator of the compiler. Implementations need
// not be safe for concurrent use unless they document otherwise.
type Device interface {
	Queues() []QueueInfo

	// QueueFor returns the queue index stages of type t run on, or -1.
	QueueFor(t QueueType) int

	FormatSupported(info ImageInfo) bool

	CreateImage(label string, info ImageInfo) (Image, error)
	DestroyImage(img Image)
	CreateBuffer(label string, info BufferInfo) (Buffer, error)
	DestroyBuffer(buf Buffer)

	CreateFence(label string) (Fence, error)
	DestroyFence(f Fence)
	// FenceValue returns the last value the fence has reached.
	FenceValue(f Fence) (uint64, error)
	// WaitFence blocks until the fence reaches value or ctx is done.
	WaitFence(ctx context.Context, f Fence, value uint64) error

	CreateCommandPool(queue int) (CommandPool, error)
	Submit(queue int, s *Submission) error

	CreateBlitPass(cfg BlitConfig) (BlitPass, error)

	Close() error
}
