package command

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const shadowed = `
image "shadow" {
  format = "depth24plus-stencil8"
  width  = 1024
  height = 1024
}

image "color" {
  format = "rgba8unorm"
  width  = screen.width
  height = screen.height
}

import "backbuffer" {
  image {
    format = "rgba8unorm"
    width  = screen.width
    height = screen.height
  }
}

stage "shadows" {
  queue = "graphics"
  use "shadow" {
    usage = "depth-attachment"
    clear = [1, 0]
  }
}

stage "main" {
  queue = "graphics"
  use "shadow" {
    usage = "sampled"
  }
  use "color" {
    usage = "color-attachment"
    clear = [0, 0, 0, 1]
  }
}

stage "debug" {
  queue   = "graphics"
  enabled = var.debug
  use "color" {
    usage  = "color-attachment"
    access = "color-read|color-write"
  }
}

stage "copy" {
  queue = "graphics"
  use "color" {
    usage = "copy-src"
  }
  use "backbuffer" {
    usage = "copy-dst"
  }
}

export "backbuffer" {
  layout = "present"
  access = "present"
  scope  = "present"
}
`

const compute = `
buffer "counters" {
  size = 256
}

stage "count" {
  queue      = "compute"
  keep_alive = true
  use "counters" {
    usage  = "storage"
    access = "shader-write"
  }
}
`

func writeDesc(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.hcl")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	path := writeDesc(t, shadowed)
	simple := writeDesc(t, compute)
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{
			name: "compile",
			args: []string{"--backend", "trace", "--width", "640", "--height", "480", "--var", "debug=false", "compile", path},
			want: []string{"Frame 1", "shadows", "main", "copy", "backbuffer", "imported,exported"},
		},
		{
			name: "compile debug stage",
			args: []string{"-b", "trace", "--var", "debug=true", "compile", path},
			want: []string{"debug"},
		},
		{
			name: "dot",
			args: []string{"-b", "trace", "--var", "debug=false", "dot", path},
			want: []string{"digraph framegraph {", "frame 1", "shadows"},
		},
		{
			name: "run",
			args: []string{"-b", "trace", "--var", "debug=false", "run", "-n", "4", "--metrics", path},
			want: []string{"Ran", "4 frames", "on trace", "hits", "main", "recorded 4 times", "framegraph_compiles_total"},
		},
		{
			name: "run on noop",
			args: []string{"-b", "noop", "run", "-n", "2", simple},
			want: []string{"2 frames", "count", "recorded 2 times"},
		},
		{
			name: "backends",
			args: []string{"backends"},
			want: []string{"trace", "noop"},
		},
		{
			name:    "missing var",
			args:    []string{"-b", "trace", "compile", path},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			args:    []string{"-b", "nope", "--var", "debug=false", "compile", path},
			wantErr: true,
		},
		{
			name:    "missing file",
			args:    []string{"-b", "trace", "compile", filepath.Join(t.TempDir(), "none.hcl")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v\n%s", err, tt.wantErr, out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output lacks %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestDotToFile(t *testing.T) {
	path := writeDesc(t, shadowed)
	dst := filepath.Join(t.TempDir(), "plan.dot")
	if _, err := execute(t, "-b", "trace", "--var", "debug=true", "dot", "-o", dst, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "digraph framegraph {") {
		t.Errorf("unexpected DOT file:\n%s", data)
	}
}

func TestVarValues(t *testing.T) {
	vals := varValues(map[string]string{"n": "3", "on": "true", "name": "hdr"})
	if f, _ := vals["n"].AsBigFloat().Float64(); f != 3 {
		t.Errorf("n = %v", vals["n"])
	}
	if !vals["on"].True() {
		t.Errorf("on = %v", vals["on"])
	}
	if vals["name"].AsString() != "hdr" {
		t.Errorf("name = %v", vals["name"])
	}
}
