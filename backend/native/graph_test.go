package native_test

import (
	"context"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend/native"
	"github.com/gogpu/framegraph/gpucore"
)

func TestGraphOnNoop(t *testing.T) {
	dev, err := native.Open(gputypes.BackendEmpty)
	if err != nil {
		t.Fatal(err)
	}
	g, err := framegraph.New(dev)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	var dispatched int
	build := func(b *framegraph.Builder) error {
		color := b.CreateImage("color", gpucore.ImageInfo{
			Format: gputypes.TextureFormatRGBA8Unorm, Width: 64, Height: 64,
		})
		counters := b.CreateBuffer("counters", gpucore.BufferInfo{Size: 256})

		draw := b.CreateStage("draw", gpucore.QueueGraphics)
		b.Use(draw, color, framegraph.ColorAttachment().ClearTo(gpucore.ClearValue{Color: [4]float32{0, 0, 0, 1}}))

		count := b.CreateStage("count", gpucore.QueueCompute, framegraph.WithRecordFunc(func(rc *framegraph.RecordContext) error {
			dispatched++
			return nil
		}))
		b.Use(count, color, framegraph.Sampled())
		b.Use(count, counters, framegraph.StorageWrite())

		b.Export(counters, framegraph.ExportDesc{
			Access: gpucore.AccessShaderRead,
			Scope:  gpucore.ScopeComputeShader,
			Queue:  gpucore.QueueIgnored,
		})
		return nil
	}

	ctx := context.Background()
	for frame := range 3 {
		if err := g.Compile(ctx, build); err != nil {
			t.Fatalf("frame %d: Compile() = %v", frame, err)
		}
		p := g.Plan()
		if len(p.Timelines) != 1 {
			t.Fatalf("frame %d: %d timelines, want 1", frame, len(p.Timelines))
		}
		for _, st := range p.Stages {
			if len(st.Waits) != 0 {
				t.Errorf("frame %d: stage %s waits %v on a single queue", frame, st.Name, st.Waits)
			}
		}
		if err := g.Submit(ctx); err != nil {
			t.Fatalf("frame %d: Submit() = %v", frame, err)
		}
	}
	if dispatched != 3 {
		t.Errorf("count recorded %d times, want 3", dispatched)
	}
	if err := g.WaitIdle(ctx); err != nil {
		t.Errorf("WaitIdle() = %v", err)
	}
	if s := g.PoolStats(); s.Hits == 0 {
		t.Errorf("pool stats %+v: later frames did not reuse resources", s)
	}
}
