package pool

import (
	"errors"
	"testing"

	"github.com/gogpu/framegraph/backend/trace"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

func colorInfo() gpucore.ResourceInfo {
	return gpucore.ImageResource(gpucore.ImageInfo{
		Format: gputypes.TextureFormatRGBA8Unorm, Dimension: gputypes.TextureDimension2D,
		Width: 64, Height: 64, Depth: 1, MipLevels: 1, ArrayLayers: 1, Samples: 1,
		Usage: gputypes.TextureUsageRenderAttachment,
	})
}

func TestClockOrder(t *testing.T) {
	tests := []struct {
		a, b Clock
		want bool
	}{
		{Clock{1, 2}, Clock{1, 2}, true},
		{Clock{1, 3}, Clock{1, 2}, false},
		{Clock{0, 0}, nil, true},
		{Clock{1}, Clock{2, 5}, true},
		{Clock{0, 1}, Clock{5}, false},
	}
	for _, tt := range tests {
		if got := tt.a.LessEq(tt.b); got != tt.want {
			t.Errorf("%v.LessEq(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	if got := (Clock{1, 5}).Join(Clock{3, 2, 1}); len(got) != 3 || got[0] != 3 || got[1] != 5 || got[2] != 1 {
		t.Errorf("Join() = %v", got)
	}
	if got := (Clock{1, 5}).Meet(Clock{3, 2}); got[0] != 1 || got[1] != 2 {
		t.Errorf("Meet() = %v", got)
	}
}

func TestAcquireReuseSafety(t *testing.T) {
	dev := trace.New(trace.DefaultConfig())
	p := New(dev, Config{})

	a, err := p.Acquire("a", colorInfo(), Clock{1, 0}, Clock{3, 0})
	if err != nil {
		t.Fatal(err)
	}
	if a.Refs() != 2 {
		t.Errorf("new entry refs = %d, want 2", a.Refs())
	}

	// Overlapping lifetime: first use at 2 before a's release at 3.
	b, err := p.Acquire("b", colorInfo(), Clock{2, 0}, Clock{4, 0})
	if err != nil {
		t.Fatal(err)
	}
	if b == a {
		t.Fatal("entry handed out to an overlapping lifetime")
	}

	// Disjoint lifetime: first use at 5 after a's release at 3.
	c, err := p.Acquire("c", colorInfo(), Clock{5, 0}, Clock{6, 0})
	if err != nil {
		t.Fatal(err)
	}
	if c != a {
		t.Error("entry with a satisfied release point should be reused")
	}
	if c.Refs() != 3 {
		t.Errorf("reused entry refs = %d, want 3", c.Refs())
	}

	// Another queue's work is not ordered by a clock that never saw it.
	d, err := p.Acquire("d", colorInfo(), Clock{0, 9}, Clock{0, 10})
	if err != nil {
		t.Fatal(err)
	}
	if d == a || d == b {
		t.Error("entry reused without a happens-before relation")
	}

	if s := p.Stats(); s.Hits != 1 || s.Misses != 3 || s.Entries != 3 {
		t.Errorf("Stats() = %s", s)
	}
}

func TestShapeMustMatchExactly(t *testing.T) {
	dev := trace.New(trace.DefaultConfig())
	p := New(dev, Config{})
	e, _ := p.Acquire("a", colorInfo(), nil, Clock{1})
	p.Release(e)

	other := colorInfo().MustImage()
	other.Usage |= gputypes.TextureUsageCopySrc
	f, _ := p.Acquire("b", gpucore.ImageResource(other), Clock{2}, Clock{3})
	if f == e {
		t.Error("entries with different usage must not be shared")
	}
}

func TestCleanup(t *testing.T) {
	dev := trace.New(trace.DefaultConfig())
	p := New(dev, Config{})

	held, _ := p.Acquire("held", colorInfo(), nil, Clock{2})
	done, _ := p.Acquire("done", gpucore.BufferResource(gpucore.BufferInfo{Size: 64}), nil, Clock{2})
	busy, _ := p.Acquire("busy", gpucore.BufferResource(gpucore.BufferInfo{Size: 128}), nil, Clock{5})
	p.Release(done)
	p.Release(busy)

	if n := p.Cleanup(Clock{3}, Clock{5}); n != 1 {
		t.Fatalf("Cleanup() destroyed %d, want 1", n)
	}
	if imgs, bufs := dev.Live(); imgs != 1 || bufs != 1 {
		t.Errorf("Live() = %d images, %d buffers", imgs, bufs)
	}
	if held.Refs() != 2 {
		t.Error("referenced entry must survive cleanup")
	}

	// busy's release clamps to the signaling point and dies once it signals.
	if n := p.Cleanup(Clock{5}, Clock{5}); n != 1 {
		t.Errorf("second Cleanup() destroyed %d, want 1", n)
	}
	p.Close()
	if imgs, bufs := dev.Live(); imgs != 0 || bufs != 0 {
		t.Errorf("Close() left %d images, %d buffers", imgs, bufs)
	}
}

func TestBudget(t *testing.T) {
	dev := trace.New(trace.DefaultConfig())
	p := New(dev, Config{MaxMemoryMB: 1})
	_, err := p.Acquire("big", gpucore.BufferResource(gpucore.BufferInfo{Size: 2 << 20}), nil, Clock{1})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Acquire() error = %v, want ErrBudgetExceeded", err)
	}
}

func TestReleaseWithoutReferencePanics(t *testing.T) {
	dev := trace.New(trace.DefaultConfig())
	p := New(dev, Config{})
	e, _ := p.Acquire("a", colorInfo(), nil, Clock{1})
	p.Release(e)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	p.Release(e)
}

func TestPassEviction(t *testing.T) {
	dev := trace.New(trace.DefaultConfig())
	p := NewPasses(dev, 2)
	cfg := gpucore.BlitConfig{Kind: gpucore.KindBuffer}

	first, err := p.Get(cfg)
	if err != nil {
		t.Fatal(err)
	}
	p.EndCompile()
	again, _ := p.Get(cfg)
	if again != first {
		t.Error("same config should return the cached pass")
	}
	p.EndCompile()

	for i := 1; i <= 2; i++ {
		if n := p.EndCompile(); n != 0 {
			t.Fatalf("evicted after %d unused compiles", i)
		}
	}
	if n := p.EndCompile(); n != 1 {
		t.Errorf("EndCompile() evicted %d, want 1", n)
	}
	if p.Len() != 0 || dev.BlitPasses() != 0 {
		t.Errorf("pass not destroyed: len=%d live=%d", p.Len(), dev.BlitPasses())
	}
}

func TestPinnedEntriesAreNotReused(t *testing.T) {
	dev := trace.New(trace.DefaultConfig())
	p := New(dev, Config{})
	e, _ := p.Acquire("a", colorInfo(), nil, Clock{1})
	p.Pin(e)
	p.Release(e)

	f, _ := p.Acquire("b", colorInfo(), Clock{9}, Clock{10})
	if f == e {
		t.Fatal("pinned entry handed out")
	}
	if n := p.Cleanup(Clock{10}, Clock{10}); n != 0 {
		t.Errorf("Cleanup() destroyed %d pinned or held entries", n)
	}

	p.Unpin(e)
	g, _ := p.Acquire("c", colorInfo(), Clock{11}, Clock{12})
	if g != e {
		t.Error("unpinned entry should be reusable")
	}
}
