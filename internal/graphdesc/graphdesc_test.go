package graphdesc

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/zclconf/go-cty/cty"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend/trace"
)

const temporal = `
import "swapchain" {
  image {
    format = "bgra8unorm"
    width  = screen.width
    height = screen.height
  }
}

import "history" {
  from = "accum"
  image {
    format = "rgba8unorm"
    width  = screen.width
    height = screen.height
  }
}

image "accum" {
  format = "rgba8unorm"
  width  = screen.width
  height = screen.height
}

buffer "stats" {
  size = 256
}

group "main" {}

stage "draw" {
  queue = "graphics"
  group = "main"
  use "history" {
    usage = "sampled"
  }
  use "accum" {
    usage = "color-attachment"
    clear = [0, 0, 0, 1]
  }
}

stage "count" {
  queue      = "compute"
  keep_alive = true
  enabled    = frame % 2 == 0
  use "accum" {
    usage = "sampled"
  }
  use "stats" {
    usage  = "storage"
    access = "shader-write"
  }
}

blit "present" {
  source = "accum"
  format = "bgra8unorm"
}

stage "copy" {
  queue = "graphics"
  use "present" {
    usage = "copy-src"
  }
  use "swapchain" {
    usage = "copy-dst"
  }
}

export "swapchain" {
  layout = "present"
  access = "present"
  scope  = "present"
}

export "accum" {
  layout = "shader-read-only"
  access = "shader-read"
  scope  = "fragment-shader"
}
`

func TestDecodeVars(t *testing.T) {
	f, err := ParseSource([]byte(temporal), "temporal.hcl")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		frame  uint64
		stages []string
	}{
		{0, []string{"draw", "count", "copy"}},
		{1, []string{"draw", "copy"}},
	}
	for _, tt := range tests {
		d, err := f.Decode(Vars{Width: 320, Height: 200, Frame: tt.frame})
		if err != nil {
			t.Fatalf("frame %d: Decode() = %v", tt.frame, err)
		}
		if got := d.Stages(); !slices.Equal(got, tt.stages) {
			t.Errorf("frame %d: Stages() = %v, want %v", tt.frame, got, tt.stages)
		}
		if got := d.Items[2].Image; got.Width != 320 || got.Height != 200 {
			t.Errorf("frame %d: accum is %dx%d", tt.frame, got.Width, got.Height)
		}
		if got := d.Imports(); !slices.Equal(got, []string{"swapchain"}) {
			t.Errorf("Imports() = %v", got)
		}
	}
}

func TestDecodeUserVars(t *testing.T) {
	src := `buffer "b" { size = var.size * 4 }`
	f, err := ParseSource([]byte(src), "vars.hcl")
	if err != nil {
		t.Fatal(err)
	}
	d, err := f.Decode(Vars{Values: map[string]cty.Value{"size": cty.NumberIntVal(16)}})
	if err != nil {
		t.Fatal(err)
	}
	if got := d.Items[0].Buffer.Size; got != 64 {
		t.Errorf("size = %d, want 64", got)
	}
	if _, err := f.Decode(Vars{}); err == nil {
		t.Error("Decode() without var.size succeeded")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `image "a" {`, "failed to parse"},
		{"unknown block", `texture "a" {}`, "failed to read"},
		{"missing attribute", `buffer "a" {}`, "Missing required argument"},
		{"format", `image "a" {
  format = "rgb565"
  width  = 4
  height = 4
}`, "format"},
		{"queue", `stage "s" { queue = "video" }`, "video"},
		{"usage", `stage "s" {
  queue = "graphics"
  use "a" { usage = "sampler" }
}`, "sampler"},
		{"access", `stage "s" {
  queue = "graphics"
  use "a" {
    usage  = "sampled"
    access = "shader-read|peek"
  }
}`, "peek"},
		{"clear count", `stage "s" {
  queue = "graphics"
  use "a" {
    usage = "color-attachment"
    clear = [1, 0]
  }
}`, "clear"},
		{"import kind", `import "a" {
  buffer { size = 4 }
  image {
    format = "rgba8unorm"
    width  = 1
    height = 1
  }
}`, "exactly one"},
		{"layout", `export "a" { layout = "linear" }`, "linear"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseSource([]byte(tt.src), "bad.hcl")
			if err == nil {
				_, err = f.Decode(Vars{})
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestApplyUndeclared(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"resource", `stage "s" {
  queue = "graphics"
  use "ghost" { usage = "sampled" }
}`},
		{"group", `stage "s" {
  queue = "graphics"
  group = "ghost"
}`},
		{"export", `export "ghost" {}`},
		{"blit source", `blit "b" { source = "ghost" }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseSource([]byte(tt.src), "undeclared.hcl")
			if err != nil {
				t.Fatal(err)
			}
			d, err := f.Decode(Vars{})
			if err != nil {
				t.Fatal(err)
			}
			dev := trace.New(trace.DefaultConfig())
			g, err := framegraph.New(dev)
			if err != nil {
				t.Fatal(err)
			}
			defer g.Close()
			bd := NewBindings(dev)
			defer bd.Close()
			err = g.Compile(context.Background(), func(b *framegraph.Builder) error {
				return d.Apply(b, bd)
			})
			if !errors.Is(err, ErrUndeclared) {
				t.Errorf("Compile() = %v, want ErrUndeclared", err)
			}
		})
	}
}

func TestApplyAcrossFrames(t *testing.T) {
	f, err := ParseSource([]byte(temporal), "temporal.hcl")
	if err != nil {
		t.Fatal(err)
	}
	dev := trace.New(trace.DefaultConfig())
	g, err := framegraph.New(dev)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	bd := NewBindings(dev)
	defer bd.Close()

	recorded := map[string]int{}
	bd.Recorder = func(stage string) framegraph.Recorder {
		return framegraph.RecordFunc(func(rc *framegraph.RecordContext) error {
			recorded[stage]++
			return nil
		})
	}

	ctx := context.Background()
	var swapchain any
	for frame := range uint64(3) {
		d, err := f.Decode(Vars{Width: 64, Height: 64, Frame: frame})
		if err != nil {
			t.Fatal(err)
		}
		if err := g.Compile(ctx, func(b *framegraph.Builder) error { return d.Apply(b, bd) }); err != nil {
			t.Fatalf("frame %d: Compile() = %v", frame, err)
		}
		p := g.Plan()
		imported := map[string]bool{}
		for _, r := range p.Resources {
			imported[r.Name] = r.Imported
		}
		if want := frame > 0; imported["history"] != want {
			t.Errorf("frame %d: history imported = %v, want %v", frame, imported["history"], want)
		}
		if e := bd.Export("accum"); e == nil || !e.Valid() {
			t.Errorf("frame %d: accum export missing", frame)
		}
		if err := g.Submit(ctx); err != nil {
			t.Fatalf("frame %d: Submit() = %v", frame, err)
		}
		bd.Advance()

		img := bd.images["swapchain"]
		if img == nil {
			t.Fatalf("frame %d: swapchain not created", frame)
		}
		if swapchain != nil && swapchain != img {
			t.Errorf("frame %d: swapchain recreated", frame)
		}
		swapchain = img
		if got := img.Info().Format; got != gputypes.TextureFormatBGRA8Unorm {
			t.Errorf("swapchain format %v", got)
		}
		if img.Info().Usage&gputypes.TextureUsageCopyDst == 0 {
			t.Errorf("swapchain usage %v lacks copy-dst", img.Info().Usage)
		}
	}
	if recorded["draw"] != 3 || recorded["count"] != 2 {
		t.Errorf("recorded = %v", recorded)
	}
	if err := g.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
}
