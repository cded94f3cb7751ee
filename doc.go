// Package framegraph is a per-frame GPU work scheduler (a "render graph").
//
// # Overview
//
// Application code declares logical resources (images and buffers) and
// stages (units of GPU work) together with how each stage uses each
// resource. A compile turns the declaration into an execution plan: a
// legal order across the device's queues, physical resources reused from a
// pool, and the exact barriers, cross-queue waits and fence signals needed
// to run the work. Submit then records and submits the plan.
//
// # Quick Start
//
//	dev, _ := gpucore.Open("trace")
//	g, _ := framegraph.New(dev)
//	defer g.Close()
//
//	err := g.Compile(ctx, func(b *framegraph.Builder) error {
//	    color := b.CreateImage("color", gpucore.ImageInfo{
//	        Format: gputypes.TextureFormatRGBA8Unorm,
//	        Width:  1920, Height: 1080,
//	    })
//	    gbuf := b.CreateStage("gbuffer", gpucore.QueueGraphics,
//	        framegraph.WithRecordFunc(drawScene))
//	    b.Use(gbuf, color, framegraph.ColorAttachment())
//
//	    post := b.CreateStage("post", gpucore.QueueCompute,
//	        framegraph.WithRecordFunc(runPost))
//	    b.Use(post, color, framegraph.Sampled())
//
//	    b.Export(color, framegraph.ExportDesc{Layout: gpucore.LayoutShaderReadOnly})
//	    return b.Err()
//	})
//	if err == nil {
//	    err = g.Submit(ctx)
//	}
//
// # Compile Pipeline
//
// A compile runs the build callback, inserts clears for resources whose
// first contents are not fully written, culls stages with no observable
// effect, infers creation info from the uses, resolves exports (inserting
// blits for incompatible targets), schedules stages onto queue timelines,
// merges compatible graphics stages into render passes, runs prepare
// callbacks, synthesizes barriers and acquires physical resources. A failed
// compile leaves the previous plan untouched.
//
// # Architecture
//
//	framegraph (Builder, Graph, Plan, diagnostics)
//	    |
//	    +-- internal/history   resource -> version -> use arena, culling
//	    +-- internal/schedule  cross-queue scheduler
//	    +-- internal/barrier   barrier and wait synthesis
//	    +-- internal/pool      physical resource and blit pass pools
//	    |
//	gpucore (backend-neutral device interface)
//	    |
//	    +-- backend/trace      in-memory recording device
//	    +-- backend/native     gogpu/wgpu HAL device
//
// # Logging
//
// The package is silent by default. Call [SetLogger] to route compile and
// submission events to a [log/slog] logger.
//
// # Concurrency
//
// A Graph is driven by a single goroutine. The hardware queues run the
// produced command buffers in parallel, ordered only by the emitted fence
// waits.
package framegraph
