package gpucore

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

// resetRegistry clears all registered backends for test isolation.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories = make(map[string]Factory)
}

func TestRegisterAndOpen(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	Register("test", func() (Device, error) { return nil, nil })

	if _, err := Open("test"); err != nil {
		t.Fatalf("Open(test) error = %v", err)
	}
	_, err := Open("missing")
	if err == nil || !strings.Contains(err.Error(), "forgotten import") {
		t.Errorf("Open(missing) error = %v", err)
	}
	if got := Backends(); len(got) != 1 || got[0] != "test" {
		t.Errorf("Backends() = %v", got)
	}
}

func TestRegisterPanics(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	tests := []struct {
		name string
		fn   func()
	}{
		{"nil factory", func() { Register("nil", nil) }},
		{"duplicate", func() {
			Register("dup", func() (Device, error) { return nil, nil })
			Register("dup", func() (Device, error) { return nil, nil })
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestUnregister(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	Register("a", func() (Device, error) { return nil, nil })
	Unregister("a")
	Unregister("a")
	if len(Backends()) != 0 {
		t.Errorf("Backends() = %v, want empty", Backends())
	}
}

func TestOpenDefault(t *testing.T) {
	tests := []struct {
		name    string
		failing []string
		want    []string
		wantErr bool
	}{
		{"hardware first", nil, []string{"vulkan"}, false},
		{"falls back", []string{"vulkan"}, []string{"vulkan", "noop"}, false},
		{"unlisted last", []string{"vulkan", "noop", "trace"}, []string{"vulkan", "noop", "trace", "extra"}, false},
		{"all fail", []string{"vulkan", "noop", "trace", "extra"}, []string{"vulkan", "noop", "trace", "extra"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetRegistry()
			defer resetRegistry()

			var opened []string
			for _, name := range []string{"extra", "trace", "noop", "vulkan"} {
				Register(name, func() (Device, error) {
					opened = append(opened, name)
					if slices.Contains(tt.failing, name) {
						return nil, errors.New(name + " unavailable")
					}
					return nil, nil
				})
			}
			_, err := OpenDefault()
			if (err != nil) != tt.wantErr {
				t.Errorf("OpenDefault() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !slices.Equal(opened, tt.want) {
				t.Errorf("opened %v, want %v", opened, tt.want)
			}
		})
	}

	resetRegistry()
	if _, err := OpenDefault(); err == nil {
		t.Error("OpenDefault() with no backends succeeded")
	}
}
