package gpucore

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestAccessWritesReads(t *testing.T) {
	tests := []struct {
		name   string
		access Access
		writes bool
		reads  bool
	}{
		{"none", AccessNone, false, false},
		{"shader read", AccessShaderRead, false, true},
		{"shader read write", AccessShaderRead | AccessShaderWrite, true, true},
		{"color write", AccessColorWrite, true, false},
		{"present", AccessPresent, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.access.Writes(); got != tt.writes {
				t.Errorf("Writes() = %v, want %v", got, tt.writes)
			}
			if got := tt.access.Reads(); got != tt.reads {
				t.Errorf("Reads() = %v, want %v", got, tt.reads)
			}
		})
	}
}

func TestMaskStrings(t *testing.T) {
	if got := (AccessShaderRead | AccessColorWrite).String(); got != "shader-read|color-write" {
		t.Errorf("Access.String() = %q", got)
	}
	if got := ScopeNone.String(); got != "none" {
		t.Errorf("ScopeNone.String() = %q", got)
	}
	if got := LayoutPresent.String(); got != "present" {
		t.Errorf("LayoutPresent.String() = %q", got)
	}
	if l, ok := ParseLayout("transfer-dst"); !ok || l != LayoutTransferDst {
		t.Errorf("ParseLayout(transfer-dst) = %v, %v", l, ok)
	}
	if q, ok := ParseQueueType("compute"); !ok || q != QueueCompute {
		t.Errorf("ParseQueueType(compute) = %v, %v", q, ok)
	}
}

func TestParseMasks(t *testing.T) {
	tests := []struct {
		in     string
		access Access
		ok     bool
	}{
		{"", AccessNone, true},
		{"none", AccessNone, true},
		{"shader-read", AccessShaderRead, true},
		{"color-read|color-write", AccessColorRead | AccessColorWrite, true},
		{"shader-read | transfer-write", AccessShaderRead | AccessTransferWrite, true},
		{"shader-read|bogus", AccessNone, false},
	}
	for _, tt := range tests {
		got, ok := ParseAccess(tt.in)
		if ok != tt.ok || got != tt.access {
			t.Errorf("ParseAccess(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.access, tt.ok)
		}
	}
	s := ScopeComputeShader | ScopeTransfer
	if got, ok := ParseScope(s.String()); !ok || got != s {
		t.Errorf("ParseScope(%q) = %v, %v", s.String(), got, ok)
	}
}

func TestRangeOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Range
		want bool
	}{
		{"whole vs whole", WholeRange, WholeRange, true},
		{"disjoint mips", Range{BaseMip: 0, MipCount: 1}, Range{BaseMip: 1, MipCount: 1}, false},
		{"disjoint layers", Range{LayerCount: 2}, Range{BaseLayer: 2, LayerCount: 2}, false},
		{"open ended mips", Range{BaseMip: 2}, Range{BaseMip: 5, MipCount: 1}, true},
		{"same mip different layers", Range{BaseMip: 1, MipCount: 1, BaseLayer: 0, LayerCount: 1},
			Range{BaseMip: 1, MipCount: 1, BaseLayer: 1, LayerCount: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRangeCovers(t *testing.T) {
	if !WholeRange.Covers(0, 0) {
		t.Error("whole range should cover unknown extent")
	}
	if !(Range{MipCount: 4, LayerCount: 1}).Covers(4, 1) {
		t.Error("explicit full range should cover")
	}
	if (Range{MipCount: 1}).Covers(4, 1) {
		t.Error("single mip should not cover 4 mips")
	}
	if (Range{MipCount: 1}).Covers(0, 0) {
		t.Error("explicit count should not cover unknown extent")
	}
	if got := (Range{BaseMip: 1}).Resolve(4, 2); got != (Range{BaseMip: 1, MipCount: 3, LayerCount: 2}) {
		t.Errorf("Resolve() = %+v", got)
	}
}

func TestResourceInfoVariant(t *testing.T) {
	img := ImageResource(ImageInfo{Format: gputypes.TextureFormatRGBA8Unorm, Width: 4, Height: 4, MipLevels: 1, ArrayLayers: 1, Samples: 1})
	buf := BufferResource(BufferInfo{Size: 256})

	if _, ok := img.Image(); !ok {
		t.Error("image variant should report image")
	}
	if _, ok := img.Buffer(); ok {
		t.Error("image variant should not report buffer")
	}
	if got := buf.MustBuffer().Size; got != 256 {
		t.Errorf("buffer size = %d", got)
	}
	if got := img.SizeBytes(); got != 64 {
		t.Errorf("image SizeBytes() = %d, want 64", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustImage on buffer should panic")
		}
	}()
	_ = buf.MustImage()
}

func TestResourceInfoEquality(t *testing.T) {
	a := BufferResource(BufferInfo{Size: 16, Usage: gputypes.BufferUsageStorage})
	b := BufferResource(BufferInfo{Size: 16, Usage: gputypes.BufferUsageStorage})
	c := BufferResource(BufferInfo{Size: 32, Usage: gputypes.BufferUsageStorage})
	if a != b {
		t.Error("identical infos should compare equal")
	}
	if a == c {
		t.Error("different sizes should compare unequal")
	}
}

func TestUsageTable(t *testing.T) {
	tests := []struct {
		usage  Usage
		kind   ResourceKind
		queue  QueueType
		access Access
		layout Layout
		legal  bool
	}{
		{UsageSampled, KindImage, QueueCompute, AccessShaderRead, LayoutShaderReadOnly, true},
		{UsageSampled, KindBuffer, QueueCompute, AccessShaderRead, LayoutUndefined, false},
		{UsageColorAttachment, KindImage, QueueCompute, AccessColorWrite, LayoutColorAttachment, false},
		{UsageDepthAttachment, KindImage, QueueGraphics, AccessDepthRead, LayoutDepthStencilReadOnly, true},
		{UsageDepthAttachment, KindImage, QueueGraphics, AccessDepthWrite, LayoutDepthStencilAttachment, true},
		{UsageCopyDst, KindBuffer, QueueTransfer, AccessTransferWrite, LayoutUndefined, true},
		{UsageVertex, KindBuffer, QueueTransfer, AccessVertexRead, LayoutUndefined, false},
	}
	for _, tt := range tests {
		t.Run(tt.usage.String(), func(t *testing.T) {
			legal := tt.usage.AllowsKind(tt.kind) && tt.usage.AllowsQueue(tt.queue)
			if legal != tt.legal {
				t.Errorf("legal = %v, want %v", legal, tt.legal)
			}
			if got := tt.usage.Layout(tt.kind, tt.access); got != tt.layout {
				t.Errorf("Layout() = %v, want %v", got, tt.layout)
			}
		})
	}
}

func TestUsageDefaultScope(t *testing.T) {
	if got := UsageSampled.DefaultScope(QueueCompute); got != ScopeComputeShader {
		t.Errorf("sampled on compute = %v", got)
	}
	if got := UsageSampled.DefaultScope(QueueGraphics); got != ScopeFragmentShader {
		t.Errorf("sampled on graphics = %v", got)
	}
	if got := UsageCopySrc.DefaultScope(QueueTransfer); got != ScopeTransfer {
		t.Errorf("copy-src = %v", got)
	}
	if u, ok := ParseUsage("color-attachment"); !ok || u != UsageColorAttachment {
		t.Errorf("ParseUsage = %v, %v", u, ok)
	}
}

func TestBarrierTransferHalves(t *testing.T) {
	rel := Barrier{SrcQueue: 0, DstQueue: 1, SrcScope: ScopeColorOutput, SrcAccess: AccessColorWrite}
	acq := Barrier{SrcQueue: 0, DstQueue: 1, DstScope: ScopeComputeShader, DstAccess: AccessShaderRead}
	same := Barrier{SrcQueue: QueueIgnored, DstQueue: QueueIgnored}
	if !rel.IsRelease() || rel.IsAcquire() {
		t.Error("release misclassified")
	}
	if !acq.IsAcquire() || acq.IsRelease() {
		t.Error("acquire misclassified")
	}
	if same.IsRelease() || same.IsAcquire() {
		t.Error("same-queue barrier misclassified")
	}
}

func TestStateUsage(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		access Access
		tex    gputypes.TextureUsage
		buf    gputypes.BufferUsage
	}{
		{"none", LayoutUndefined, AccessNone, 0, 0},
		{"sampled", LayoutShaderReadOnly, AccessShaderRead,
			gputypes.TextureUsageTextureBinding, gputypes.BufferUsageStorage},
		{"layout only", LayoutShaderReadOnly, AccessNone, gputypes.TextureUsageTextureBinding, 0},
		{"attachment", LayoutColorAttachment, AccessColorRead | AccessColorWrite,
			gputypes.TextureUsageRenderAttachment, 0},
		{"copy source", LayoutTransferSrc, AccessTransferRead,
			gputypes.TextureUsageCopySrc, gputypes.BufferUsageCopySrc},
		{"uniform", LayoutUndefined, AccessUniformRead, 0, gputypes.BufferUsageUniform},
		{"present", LayoutPresent, AccessPresent, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tex, buf := StateUsage(tt.layout, tt.access)
			if tex != tt.tex || buf != tt.buf {
				t.Errorf("StateUsage(%s, %s) = %v, %v, want %v, %v", tt.layout, tt.access, tex, buf, tt.tex, tt.buf)
			}
		})
	}
}
