package graphdesc

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/gpucore"
)

var formats = map[string]gputypes.TextureFormat{
	"r8unorm":              gputypes.TextureFormatR8Unorm,
	"rgba8unorm":           gputypes.TextureFormatRGBA8Unorm,
	"bgra8unorm":           gputypes.TextureFormatBGRA8Unorm,
	"depth24plus-stencil8": gputypes.TextureFormatDepth24PlusStencil8,
}

var dimensions = map[string]gputypes.TextureDimension{
	"":   gputypes.TextureDimensionUndefined,
	"1d": gputypes.TextureDimension1D,
	"2d": gputypes.TextureDimension2D,
	"3d": gputypes.TextureDimension3D,
}

func parseFormat(s string) (gputypes.TextureFormat, error) {
	f, ok := formats[s]
	if !ok {
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: format %q", ErrUnknownName, s)
	}
	return f, nil
}

func parseQueue(s string) (gpucore.QueueType, error) {
	q, ok := gpucore.ParseQueueType(s)
	if !ok {
		return 0, fmt.Errorf("%w: queue type %q", ErrUnknownName, s)
	}
	return q, nil
}

func parseLayout(s string) (gpucore.Layout, error) {
	if s == "" {
		return gpucore.LayoutUndefined, nil
	}
	l, ok := gpucore.ParseLayout(s)
	if !ok {
		return 0, fmt.Errorf("%w: layout %q", ErrUnknownName, s)
	}
	return l, nil
}

func parseAccess(s string) (gpucore.Access, error) {
	a, ok := gpucore.ParseAccess(s)
	if !ok {
		return 0, fmt.Errorf("%w: access %q", ErrUnknownName, s)
	}
	return a, nil
}

func parseScope(s string) (gpucore.Scope, error) {
	sc, ok := gpucore.ParseScope(s)
	if !ok {
		return 0, fmt.Errorf("%w: scope %q", ErrUnknownName, s)
	}
	return sc, nil
}

func queueIndex(q *int) int {
	if q == nil {
		return gpucore.QueueIgnored
	}
	return *q
}

func (s *ImageSpec) info() (gpucore.ImageInfo, error) {
	f, err := parseFormat(s.Format)
	if err != nil {
		return gpucore.ImageInfo{}, err
	}
	dim, ok := dimensions[s.Dimension]
	if !ok {
		return gpucore.ImageInfo{}, fmt.Errorf("%w: dimension %q", ErrUnknownName, s.Dimension)
	}
	return gpucore.ImageInfo{
		Format:      f,
		Dimension:   dim,
		Width:       s.Width,
		Height:      s.Height,
		Depth:       s.Depth,
		MipLevels:   s.MipLevels,
		ArrayLayers: s.ArrayLayers,
		Samples:     s.Samples,
	}, nil
}

// physical returns the info of an image created outside the graph, with
// every count a physical image needs filled in.
func (s *ImageSpec) physical(usage gputypes.TextureUsage) (gpucore.ImageInfo, error) {
	info, err := s.info()
	if err != nil {
		return info, err
	}
	if info.Dimension == gputypes.TextureDimensionUndefined {
		info.Dimension = gputypes.TextureDimension2D
	}
	info.Depth = max(info.Depth, 1)
	info.MipLevels = max(info.MipLevels, 1)
	info.ArrayLayers = max(info.ArrayLayers, 1)
	info.Samples = max(info.Samples, 1)
	info.Usage = usage
	return info, nil
}

func (s *ImportSpec) check() error {
	if (s.Image == nil) == (s.Buffer == nil) {
		return fmt.Errorf("%w: import needs exactly one image or buffer block", ErrBadBlock)
	}
	if s.Image != nil {
		if _, err := s.Image.info(); err != nil {
			return err
		}
	}
	_, err := s.state()
	return err
}

type importState struct {
	layout gpucore.Layout
	access gpucore.Access
	scope  gpucore.Scope
	queue  int
}

func (s *ImportSpec) state() (importState, error) {
	l, err := parseLayout(s.Layout)
	if err != nil {
		return importState{}, err
	}
	a, err := parseAccess(s.Access)
	if err != nil {
		return importState{}, err
	}
	sc, err := parseScope(s.Scope)
	if err != nil {
		return importState{}, err
	}
	return importState{layout: l, access: a, scope: sc, queue: queueIndex(s.Queue)}, nil
}

func (s *StageSpec) enabled() bool { return s.Enabled == nil || *s.Enabled }

func (s *StageSpec) check() error {
	if _, err := parseQueue(s.Queue); err != nil {
		return err
	}
	for _, u := range s.Uses {
		if _, err := u.desc(); err != nil {
			return fmt.Errorf("use of %q: %w", u.Resource, err)
		}
	}
	return nil
}

func (u *UseSpec) desc() (framegraph.UseDesc, error) {
	usage, ok := gpucore.ParseUsage(u.Usage)
	if !ok {
		return framegraph.UseDesc{}, fmt.Errorf("%w: usage %q", ErrUnknownName, u.Usage)
	}
	a, err := parseAccess(u.Access)
	if err != nil {
		return framegraph.UseDesc{}, err
	}
	if a == gpucore.AccessNone {
		a = usage.DefaultAccess()
	}
	sc, err := parseScope(u.Scope)
	if err != nil {
		return framegraph.UseDesc{}, err
	}
	d := framegraph.UseDesc{
		Usage:  usage,
		Access: a,
		Scope:  sc,
		Range: gpucore.Range{
			BaseMip:    u.BaseMip,
			MipCount:   u.MipCount,
			BaseLayer:  u.BaseLayer,
			LayerCount: u.LayerCount,
		},
		Token: u.Token,
	}
	if u.Clear != nil {
		cv, err := u.clearValue(usage)
		if err != nil {
			return framegraph.UseDesc{}, err
		}
		d = d.ClearTo(cv)
	}
	return d, nil
}

func (u *UseSpec) clearValue(usage gpucore.Usage) (gpucore.ClearValue, error) {
	var cv gpucore.ClearValue
	switch {
	case usage == gpucore.UsageDepthAttachment && len(u.Clear) == 2:
		cv.Depth = float32(u.Clear[0])
		cv.Stencil = uint32(u.Clear[1])
	case usage == gpucore.UsageColorAttachment && len(u.Clear) == 4:
		for i, c := range u.Clear {
			cv.Color[i] = float32(c)
		}
	default:
		return cv, fmt.Errorf("%w: clear of %d values on a %s use", ErrBadBlock, len(u.Clear), usage)
	}
	return cv, nil
}

func (s *ExportSpec) desc() (framegraph.ExportDesc, error) {
	l, err := parseLayout(s.Layout)
	if err != nil {
		return framegraph.ExportDesc{}, err
	}
	a, err := parseAccess(s.Access)
	if err != nil {
		return framegraph.ExportDesc{}, err
	}
	sc, err := parseScope(s.Scope)
	if err != nil {
		return framegraph.ExportDesc{}, err
	}
	return framegraph.ExportDesc{Layout: l, Access: a, Scope: sc, Queue: queueIndex(s.Queue)}, nil
}
