package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/zclconf/go-cty/cty"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/graphdesc"
)

// session is one description compiled on one device.
type session struct {
	dev  gpucore.Device
	g    *framegraph.Graph
	file *graphdesc.File
	bind *graphdesc.Bindings
	vars graphdesc.Vars
	view *view
}

func openDevice(name string) (gpucore.Device, error) {
	if name == "" {
		return gpucore.OpenDefault()
	}
	return gpucore.Open(name)
}

// varValues converts --var strings to numbers or bools where they parse.
func varValues(in map[string]string) map[string]cty.Value {
	out := make(map[string]cty.Value, len(in))
	for k, v := range in {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = cty.NumberFloatVal(f)
		} else if b, err := strconv.ParseBool(v); err == nil {
			out[k] = cty.BoolVal(b)
		} else {
			out[k] = cty.StringVal(v)
		}
	}
	return out
}

func openSession(opts *Options, path string, v *view, extra ...framegraph.Option) (*session, error) {
	file, err := graphdesc.Parse(path)
	if err != nil {
		return nil, err
	}
	dev, err := openDevice(opts.Backend)
	if err != nil {
		return nil, err
	}
	gopts := append([]framegraph.Option{framegraph.WithDiagnosticHandler(v.diagnostic)}, extra...)
	g, err := framegraph.New(dev, gopts...)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return &session{
		dev:  dev,
		g:    g,
		file: file,
		bind: graphdesc.NewBindings(dev),
		vars: graphdesc.Vars{Width: opts.Width, Height: opts.Height, Values: varValues(opts.Vars)},
		view: v,
	}, nil
}

// compile declares and compiles frame n.
func (s *session) compile(ctx context.Context, n uint64) error {
	s.vars.Frame = n
	d, err := s.file.Decode(s.vars)
	if err != nil {
		return err
	}
	return s.g.Compile(ctx, func(b *framegraph.Builder) error {
		return d.Apply(b, s.bind)
	})
}

// frame compiles and submits frame n.
func (s *session) frame(ctx context.Context, n uint64) error {
	if err := s.compile(ctx, n); err != nil {
		return fmt.Errorf("frame %d: %w", n, err)
	}
	if err := s.g.Submit(ctx); err != nil {
		return fmt.Errorf("frame %d: %w", n, err)
	}
	s.bind.Advance()
	return nil
}

func (s *session) close() error {
	err := s.g.WaitIdle(context.Background())
	s.bind.Close()
	return errors.Join(err, s.g.Close(), s.dev.Close())
}

func deviceName(dev gpucore.Device) string {
	if n, ok := dev.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", dev)
}
