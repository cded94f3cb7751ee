package trace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

func TestQueueFor(t *testing.T) {
	d := New(DefaultConfig())
	tests := []struct {
		qt   gpucore.QueueType
		want int
	}{
		{gpucore.QueueGraphics, 0},
		{gpucore.QueueCompute, 1},
		{gpucore.QueueTransfer, 2},
		{gpucore.QueuePresent, 0},
	}
	for _, tt := range tests {
		if got := d.QueueFor(tt.qt); got != tt.want {
			t.Errorf("QueueFor(%v) = %d, want %d", tt.qt, got, tt.want)
		}
	}

	single := New(Config{Queues: SingleQueue()})
	for q := gpucore.QueueType(0); q < gpucore.QueueTypeCount; q++ {
		if got := single.QueueFor(q); got != 0 {
			t.Errorf("single queue QueueFor(%v) = %d", q, got)
		}
	}
}

func TestFormatSupported(t *testing.T) {
	d := New(Config{Unsupported: []gputypes.TextureFormat{gputypes.TextureFormatR8Unorm}})
	if d.FormatSupported(gpucore.ImageInfo{Format: gputypes.TextureFormatR8Unorm}) {
		t.Error("configured format should be unsupported")
	}
	if !d.FormatSupported(gpucore.ImageInfo{Format: gputypes.TextureFormatRGBA8Unorm}) {
		t.Error("RGBA8 should be supported")
	}
}

func endedBuffer(t *testing.T, d *Device, queue int) gpucore.CommandBuffer {
	t.Helper()
	pool, err := d.CreateCommandPool(queue)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := pool.Allocate("cb")
	if err != nil {
		t.Fatal(err)
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
	return cb
}

func TestSubmitSignalsImmediately(t *testing.T) {
	d := New(DefaultConfig())
	f, _ := d.CreateFence("q0")
	err := d.Submit(0, &gpucore.Submission{
		Commands: []gpucore.CommandBuffer{endedBuffer(t, d, 0)},
		Signals:  []gpucore.FenceValue{{Fence: f, Value: 3}},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if v, _ := d.FenceValue(f); v != 3 {
		t.Errorf("fence value = %d, want 3", v)
	}
	if err := d.WaitFence(context.Background(), f, 3); err != nil {
		t.Errorf("WaitFence() error = %v", err)
	}
}

func TestSubmitDetectsDeadlock(t *testing.T) {
	d := New(DefaultConfig())
	f, _ := d.CreateFence("q0")
	err := d.Submit(1, &gpucore.Submission{Waits: []gpucore.FenceValue{{Fence: f, Value: 1}}})
	if !errors.Is(err, ErrDeadlock) {
		t.Errorf("Submit() error = %v, want ErrDeadlock", err)
	}
}

func TestSubmitRejectsRegression(t *testing.T) {
	d := New(DefaultConfig())
	f, _ := d.CreateFence("q0")
	if err := d.Submit(0, &gpucore.Submission{Signals: []gpucore.FenceValue{{Fence: f, Value: 2}}}); err != nil {
		t.Fatal(err)
	}
	err := d.Submit(0, &gpucore.Submission{Signals: []gpucore.FenceValue{{Fence: f, Value: 2}}})
	if !errors.Is(err, ErrFenceRegression) {
		t.Errorf("Submit() error = %v, want ErrFenceRegression", err)
	}
}

func TestDeferredWait(t *testing.T) {
	d := New(Config{Deferred: true})
	f, _ := d.CreateFence("q0")
	if err := d.Submit(0, &gpucore.Submission{Signals: []gpucore.FenceValue{{Fence: f, Value: 1}}}); err != nil {
		t.Fatal(err)
	}
	if v, _ := d.FenceValue(f); v != 0 {
		t.Fatalf("deferred fence value = %d, want 0", v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := d.WaitFence(ctx, f, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitFence() before flush = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.WaitFence(context.Background(), f, 1) }()
	d.Flush()
	if err := <-done; err != nil {
		t.Errorf("WaitFence() after flush = %v", err)
	}
}

func TestCommandBufferStateChecks(t *testing.T) {
	cb := &CommandBuffer{}
	if err := cb.Dispatch(1, 1, 1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Dispatch outside pass = %v", err)
	}
	if err := cb.BeginCompute("c"); err != nil {
		t.Fatal(err)
	}
	if err := cb.BeginRendering(&gpucore.RenderingInfo{Label: "r"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("nested pass = %v", err)
	}
	if err := cb.End(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("End with open pass = %v", err)
	}
	cb.EndCompute()
	cb.Barrier(nil)
	if err := cb.End(); err != nil {
		t.Errorf("End() = %v", err)
	}
	if got := cb.Count(OpBarrier); got != 0 {
		t.Errorf("empty barrier batch recorded %d times", got)
	}
}

func TestLiveCounts(t *testing.T) {
	d := New(DefaultConfig())
	img, _ := d.CreateImage("a", gpucore.ImageInfo{Width: 1, Height: 1})
	buf, _ := d.CreateBuffer("b", gpucore.BufferInfo{Size: 4})
	d.DestroyImage(img)
	d.DestroyImage(img)
	if i, b := d.Live(); i != 0 || b != 1 {
		t.Errorf("Live() = %d, %d", i, b)
	}
	d.DestroyBuffer(buf)
	if d.Created() != 2 {
		t.Errorf("Created() = %d", d.Created())
	}
}

func TestRegistered(t *testing.T) {
	dev, err := gpucore.Open("trace")
	if err != nil {
		t.Fatalf("Open(trace) error = %v", err)
	}
	if _, ok := dev.(*Device); !ok {
		t.Errorf("Open(trace) returned %T", dev)
	}
}
