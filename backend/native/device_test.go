package native

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framegraph/gpucore"
)

func openNoop(t *testing.T) *Device {
	t.Helper()
	d, err := Open(gputypes.BackendEmpty)
	if err != nil {
		t.Fatalf("Open(noop) = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func rgba(w, h uint32) gpucore.ImageInfo {
	return gpucore.ImageInfo{
		Format:      gputypes.TextureFormatRGBA8Unorm,
		Width:       w,
		Height:      h,
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     1,
		Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	}
}

func TestRegistered(t *testing.T) {
	dev, err := gpucore.Open("noop")
	if err != nil {
		t.Fatalf("gpucore.Open(noop) = %v", err)
	}
	defer dev.Close()
	if _, ok := dev.(*Device); !ok {
		t.Fatalf("noop opened %T", dev)
	}
}

func TestQueues(t *testing.T) {
	d := openNoop(t)
	if n := len(d.Queues()); n != 1 {
		t.Fatalf("Queues() = %d, want 1", n)
	}
	for q := gpucore.QueueType(0); q < gpucore.QueueTypeCount; q++ {
		if got := d.QueueFor(q); got != 0 {
			t.Errorf("QueueFor(%v) = %d, want 0", q, got)
		}
	}
	if got := d.QueueFor(gpucore.QueueTypeCount); got != -1 {
		t.Errorf("QueueFor(invalid) = %d, want -1", got)
	}
	if _, err := d.CreateCommandPool(1); !errors.Is(err, gpucore.ErrUnknownQueue) {
		t.Errorf("CreateCommandPool(1) = %v, want ErrUnknownQueue", err)
	}
}

func TestFormatSupported(t *testing.T) {
	d := openNoop(t)
	tests := []struct {
		name string
		info gpucore.ImageInfo
		want bool
	}{
		{"rgba", rgba(64, 64), true},
		{"undefined", gpucore.ImageInfo{Width: 4, Height: 4}, false},
		{"over limit", rgba(d.limits.MaxTextureDimension2D+1, 4), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.FormatSupported(tt.info); got != tt.want {
				t.Errorf("FormatSupported() = %v, want %v", got, tt.want)
			}
		})
	}
}

func submitSignal(t *testing.T, d *Device, f gpucore.Fence, value uint64) error {
	t.Helper()
	pool, err := d.CreateCommandPool(0)
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := pool.Allocate("work")
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.End(); err != nil {
		t.Fatal(err)
	}
	return d.Submit(0, &gpucore.Submission{
		Label:    "work",
		Commands: []gpucore.CommandBuffer{cmd},
		Signals:  []gpucore.FenceValue{{Fence: f, Value: value}},
	})
}

func TestFenceTimeline(t *testing.T) {
	d := openNoop(t)
	ctx := context.Background()
	f, err := d.CreateFence("queue0")
	if err != nil {
		t.Fatal(err)
	}
	if err := submitSignal(t, d, f, 3); err != nil {
		t.Fatalf("Submit() = %v", err)
	}
	if v, err := d.FenceValue(f); err != nil || v != 3 {
		t.Errorf("FenceValue() = %d, %v; want 3", v, err)
	}
	if err := d.WaitFence(ctx, f, 3); err != nil {
		t.Errorf("WaitFence(3) = %v", err)
	}
	if err := d.WaitFence(ctx, f, 4); !errors.Is(err, ErrNeverSignaled) {
		t.Errorf("WaitFence(4) = %v, want ErrNeverSignaled", err)
	}
	if err := submitSignal(t, d, f, 3); err == nil {
		t.Error("non-increasing signal accepted")
	}
	err = d.Submit(0, &gpucore.Submission{
		Label: "waiter",
		Waits: []gpucore.FenceValue{{Fence: f, Value: 9}},
	})
	if !errors.Is(err, ErrNeverSignaled) {
		t.Errorf("wait on unsignaled value = %v, want ErrNeverSignaled", err)
	}
}

func TestForeignFence(t *testing.T) {
	a, b := openNoop(t), openNoop(t)
	f, err := a.CreateFence("a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.FenceValue(f); !errors.Is(err, ErrForeignObject) {
		t.Errorf("FenceValue(foreign) = %v, want ErrForeignObject", err)
	}
}

func TestRecordingState(t *testing.T) {
	d := openNoop(t)
	img, err := d.CreateImage("target", rgba(32, 32))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		record func(cmd gpucore.CommandBuffer) error
		want   error
	}{
		{"dispatch outside compute", func(cmd gpucore.CommandBuffer) error {
			return cmd.Dispatch(1, 1, 1)
		}, ErrEncoderState},
		{"dispatch without pipeline", func(cmd gpucore.CommandBuffer) error {
			if err := cmd.BeginCompute("c"); err != nil {
				return err
			}
			err := cmd.Dispatch(1, 1, 1)
			cmd.EndCompute()
			return err
		}, ErrNoPipeline},
		{"draw without pipeline", func(cmd gpucore.CommandBuffer) error {
			info := &gpucore.RenderingInfo{Label: "r", Width: 32, Height: 32,
				Color: []gpucore.Attachment{{Image: img, Layout: gpucore.LayoutColorAttachment}}}
			if err := cmd.BeginRendering(info); err != nil {
				return err
			}
			err := cmd.Draw(3, 1, 0, 0)
			cmd.EndRendering()
			return err
		}, ErrNoPipeline},
		{"nested pass", func(cmd gpucore.CommandBuffer) error {
			if err := cmd.BeginCompute("outer"); err != nil {
				return err
			}
			return cmd.BeginCompute("inner")
		}, ErrEncoderState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := d.CreateCommandPool(0)
			if err != nil {
				t.Fatal(err)
			}
			defer pool.Destroy()
			cmd, err := pool.Allocate(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if err := tt.record(cmd); !errors.Is(err, tt.want) {
				t.Errorf("record = %v, want %v", err, tt.want)
			}
			if err := cmd.End(); !errors.Is(err, tt.want) {
				t.Errorf("End() = %v, want the recording error", err)
			}
		})
	}
}

func TestClears(t *testing.T) {
	d := openNoop(t)
	pool, err := d.CreateCommandPool(0)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()
	cmd, err := pool.Allocate("clears")
	if err != nil {
		t.Fatal(err)
	}

	target, _ := d.CreateImage("target", rgba(16, 16))
	if err := cmd.ClearImage(target, gpucore.WholeRange, gpucore.ClearValue{Color: [4]float32{1, 0, 0, 1}}); err != nil {
		t.Errorf("ClearImage(attachment) = %v", err)
	}
	info := rgba(16, 16)
	info.Usage = gputypes.TextureUsageStorageBinding
	storage, _ := d.CreateImage("storage", info)
	if err := cmd.ClearImage(storage, gpucore.WholeRange, gpucore.ClearValue{}); !errors.Is(err, gpucore.ErrUnimplemented) {
		t.Errorf("ClearImage(storage) = %v, want ErrUnimplemented", err)
	}

	buf, _ := d.CreateBuffer("counters", gpucore.BufferInfo{Size: 256, Usage: gputypes.BufferUsageStorage})
	if err := cmd.ClearBuffer(buf, 0, 0, 0); err != nil {
		t.Errorf("ClearBuffer(zero) = %v", err)
	}
	if err := cmd.ClearBuffer(buf, 16, 64, 0xffffffff); err != nil {
		t.Errorf("ClearBuffer(pattern) = %v", err)
	}
	plain, _ := d.CreateBuffer("plain", gpucore.BufferInfo{Size: 64})
	if err := cmd.ClearBuffer(plain, 0, 64, 7); !errors.Is(err, gpucore.ErrUnimplemented) {
		t.Errorf("ClearBuffer(non-storage pattern) = %v, want ErrUnimplemented", err)
	}
	if err := cmd.End(); err != nil {
		t.Errorf("End() = %v", err)
	}
}

func TestBlit(t *testing.T) {
	d := openNoop(t)
	pool, _ := d.CreateCommandPool(0)
	defer pool.Destroy()
	cmd, _ := pool.Allocate("blit")

	src, _ := d.CreateImage("src", rgba(32, 32))
	dst, _ := d.CreateImage("dst", rgba(32, 32))
	same, err := d.CreateBlitPass(gpucore.BlitConfig{
		Kind:      gpucore.KindImage,
		SrcFormat: gputypes.TextureFormatRGBA8Unorm,
		DstFormat: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer same.Destroy()
	if err := same.Record(cmd, gpucore.BlitTarget{Image: src}, gpucore.BlitTarget{Image: dst}); err != nil {
		t.Errorf("same-format blit = %v", err)
	}

	convert, err := d.CreateBlitPass(gpucore.BlitConfig{
		Kind:      gpucore.KindImage,
		SrcFormat: gputypes.TextureFormatRGBA8Unorm,
		DstFormat: gputypes.TextureFormatBGRA8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := convert.Record(cmd, gpucore.BlitTarget{Image: src}, gpucore.BlitTarget{Image: dst}); !errors.Is(err, gpucore.ErrUnimplemented) {
		t.Errorf("converting blit = %v, want ErrUnimplemented", err)
	}
	if d.BlitPasses() != 2 {
		t.Errorf("BlitPasses() = %d, want 2", d.BlitPasses())
	}
	convert.Destroy()
	if d.BlitPasses() != 1 {
		t.Errorf("BlitPasses() after Destroy = %d, want 1", d.BlitPasses())
	}
	if err := cmd.End(); err != nil {
		t.Errorf("End() = %v", err)
	}
}

func TestHALBarriers(t *testing.T) {
	d := openNoop(t)
	img, _ := d.CreateImage("img", rgba(8, 8))
	buf, _ := d.CreateBuffer("buf", gpucore.BufferInfo{Size: 64})
	barriers := []gpucore.Barrier{
		{
			Image: img, OldLayout: gpucore.LayoutColorAttachment, NewLayout: gpucore.LayoutShaderReadOnly,
			SrcAccess: gpucore.AccessColorWrite, DstAccess: gpucore.AccessShaderRead,
			SrcScope: gpucore.ScopeColorOutput, DstScope: gpucore.ScopeComputeShader,
			SrcQueue: gpucore.QueueIgnored, DstQueue: gpucore.QueueIgnored,
		},
		{
			Buffer: buf, SrcAccess: gpucore.AccessShaderWrite, SrcScope: gpucore.ScopeComputeShader,
			SrcQueue: 1, DstQueue: 0,
		},
		{
			Buffer: buf, SrcAccess: gpucore.AccessTransferWrite, DstAccess: gpucore.AccessIndirectRead,
			SrcScope: gpucore.ScopeTransfer, DstScope: gpucore.ScopeDrawIndirect,
			SrcQueue: gpucore.QueueIgnored, DstQueue: gpucore.QueueIgnored,
		},
	}
	textures, buffers, err := halBarriers(barriers)
	if err != nil {
		t.Fatal(err)
	}
	if len(textures) != 1 || len(buffers) != 1 {
		t.Fatalf("got %d texture and %d buffer barriers, want 1 and 1 (release dropped)", len(textures), len(buffers))
	}
	want := hal.TextureUsageTransition{
		OldUsage: gputypes.TextureUsageRenderAttachment,
		NewUsage: gputypes.TextureUsageTextureBinding,
	}
	if textures[0].Usage != want {
		t.Errorf("texture transition = %+v, want %+v", textures[0].Usage, want)
	}
	if r := textures[0].Range; r.MipLevelCount != 1 || r.ArrayLayerCount != 1 {
		t.Errorf("texture range = %+v", r)
	}
	if u := buffers[0].Usage; u.OldUsage != gputypes.BufferUsageCopyDst || u.NewUsage != gputypes.BufferUsageIndirect {
		t.Errorf("buffer transition = %+v", u)
	}
}

func TestComputePipeline(t *testing.T) {
	d := openNoop(t)
	b, err := d.CreateBuffer("data", gpucore.BufferInfo{Size: 256, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatal(err)
	}
	const src = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn double(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] * 2u;
}
`
	p, err := d.CreateComputePipeline("double", src, "double", b.(*Buffer))
	if err != nil {
		t.Fatalf("CreateComputePipeline() = %v", err)
	}
	defer d.DestroyPipeline(p)

	pool, _ := d.CreateCommandPool(0)
	defer pool.Destroy()
	cmd, _ := pool.Allocate("double")
	if err := cmd.BeginCompute("double"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.BindPipeline(p); err != nil {
		t.Fatalf("BindPipeline() = %v", err)
	}
	if err := cmd.Dispatch(1, 1, 1); err != nil {
		t.Errorf("Dispatch() = %v", err)
	}
	cmd.EndCompute()
	if err := cmd.End(); err != nil {
		t.Errorf("End() = %v", err)
	}
}

type provider struct {
	dev   any
	queue any
}

func (p provider) Device() gpucontext.Device { return p.dev }
func (p provider) Queue() gpucontext.Queue { return p.queue }
func (p provider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (p provider) Adapter() gpucontext.Adapter { return &noop.Adapter{} }
func (p provider) AdapterInfo() gpucontext.AdapterInfo { return gpucontext.AdapterInfo{Name: "test"} }

func TestNewFromProvider(t *testing.T) {
	d, err := NewFromProvider(provider{dev: &noop.Device{}, queue: &noop.Queue{}})
	if err != nil {
		t.Fatalf("NewFromProvider() = %v", err)
	}
	if d.Name() != "test" || d.adapter == nil {
		t.Errorf("name = %q, adapter = %v", d.Name(), d.adapter)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}

	if _, err := NewFromProvider(provider{dev: "not a device", queue: &noop.Queue{}}); !errors.Is(err, ErrNotHAL) {
		t.Errorf("NewFromProvider(bad device) = %v, want ErrNotHAL", err)
	}
}

func TestClosed(t *testing.T) {
	d, err := Open(gputypes.BackendEmpty)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.CreateBuffer("b", gpucore.BufferInfo{Size: 4}); !errors.Is(err, gpucore.ErrDeviceClosed) {
		t.Errorf("CreateBuffer after Close = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
