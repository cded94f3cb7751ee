package graphdesc

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/gpucore"
)

// Bindings holds what a description keeps across frames: the physical
// resources behind its imports and the exports of the last submitted
// frame. A Bindings belongs to one device and one graph.
type Bindings struct {
	// Recorder, when set, returns the recorder of a stage.
	Recorder func(stage string) framegraph.Recorder

	dev     gpucore.Device
	images  map[string]gpucore.Image
	buffers map[string]gpucore.Buffer
	prev    map[string]*framegraph.Export
	next    map[string]*framegraph.Export
}

// NewBindings returns empty bindings creating imports on dev.
func NewBindings(dev gpucore.Device) *Bindings {
	return &Bindings{
		dev:     dev,
		images:  make(map[string]gpucore.Image),
		buffers: make(map[string]gpucore.Buffer),
		prev:    make(map[string]*framegraph.Export),
		next:    make(map[string]*framegraph.Export),
	}
}

// Export returns the export of the last applied description named after
// resource, or nil.
func (bd *Bindings) Export(resource string) *framegraph.Export { return bd.next[resource] }

// Advance makes the exports of the last applied description visible to
// "from" imports of the next one, releasing the ones they replace. Call it
// once the frame is submitted.
func (bd *Bindings) Advance() {
	for _, e := range bd.prev {
		e.Release()
	}
	bd.prev, bd.next = bd.next, make(map[string]*framegraph.Export)
}

// Close releases every export and destroys the imported resources. The
// device must be idle.
func (bd *Bindings) Close() {
	for _, e := range bd.prev {
		e.Release()
	}
	for _, e := range bd.next {
		e.Release()
	}
	for name, img := range bd.images {
		bd.dev.DestroyImage(img)
		delete(bd.images, name)
	}
	for name, buf := range bd.buffers {
		bd.dev.DestroyBuffer(buf)
		delete(bd.buffers, name)
	}
}

// importUsage unions the creation flags every use of name in d implies.
func (d *Description) importUsage(name string) (gputypes.TextureUsage, gputypes.BufferUsage) {
	var tex gputypes.TextureUsage
	var buf gputypes.BufferUsage
	for _, it := range d.Items {
		switch {
		case it.Kind == "stage":
			for _, u := range it.Stage.Uses {
				if u.Resource != name {
					continue
				}
				if usage, ok := gpucore.ParseUsage(u.Usage); ok {
					tex |= usage.TextureUsage()
					buf |= usage.BufferUsage()
				}
			}
		case (it.Kind == "blit" && it.Blit.Source == name) || (it.Kind == "resolve" && it.Resolve.Source == name):
			tex |= gputypes.TextureUsageCopySrc
		}
	}
	return tex, buf
}

// physical returns the resource backing an import, creating it on first use.
func (bd *Bindings) physical(d *Description, name string, s *ImportSpec) (gpucore.Image, gpucore.Buffer, error) {
	if s.Image != nil {
		if img, ok := bd.images[name]; ok {
			return img, nil, nil
		}
		tex, _ := d.importUsage(name)
		info, err := s.Image.physical(tex)
		if err != nil {
			return nil, nil, err
		}
		img, err := bd.dev.CreateImage(name, info)
		if err != nil {
			return nil, nil, fmt.Errorf("create import %q: %w", name, err)
		}
		bd.images[name] = img
		return img, nil, nil
	}
	if buf, ok := bd.buffers[name]; ok {
		return nil, buf, nil
	}
	_, usage := d.importUsage(name)
	buf, err := bd.dev.CreateBuffer(name, gpucore.BufferInfo{Size: s.Buffer.Size, Usage: usage})
	if err != nil {
		return nil, nil, fmt.Errorf("create import %q: %w", name, err)
	}
	bd.buffers[name] = buf
	return nil, buf, nil
}

// applier carries the handles declared so far by one Apply.
type applier struct {
	d      *Description
	b      *framegraph.Builder
	bd     *Bindings
	res    map[string]*framegraph.Resource
	groups map[string]*framegraph.Group
}

// Apply declares d's items on b in source order.
func (d *Description) Apply(b *framegraph.Builder, bd *Bindings) error {
	a := &applier{
		d:      d,
		b:      b,
		bd:     bd,
		res:    make(map[string]*framegraph.Resource),
		groups: make(map[string]*framegraph.Group),
	}
	clear(bd.next)
	for i := range d.Items {
		it := &d.Items[i]
		if err := a.apply(it); err != nil {
			return fmt.Errorf("%s: %s %q: %w", it.Range, it.Kind, it.Name, err)
		}
		if err := b.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) resource(name string) (*framegraph.Resource, error) {
	r, ok := a.res[name]
	if !ok {
		return nil, fmt.Errorf("%w: resource %q", ErrUndeclared, name)
	}
	return r, nil
}

func (a *applier) apply(it *Item) error {
	switch it.Kind {
	case "image":
		info, err := it.Image.info()
		if err != nil {
			return err
		}
		a.res[it.Name] = a.b.CreateImage(it.Name, info)
	case "buffer":
		a.res[it.Name] = a.b.CreateBuffer(it.Name, gpucore.BufferInfo{Size: it.Buffer.Size})
	case "import":
		return a.importResource(it.Name, it.Import)
	case "group":
		a.groups[it.Name] = a.b.CreateGroup(it.Name)
	case "stage":
		return a.stage(it.Name, it.Stage)
	case "blit":
		return a.blit(it.Name, it.Blit)
	case "resolve":
		src, err := a.resource(it.Resolve.Source)
		if err != nil {
			return err
		}
		a.res[it.Name] = a.b.Resolve(it.Name, src)
	case "export":
		r, err := a.resource(it.Name)
		if err != nil {
			return err
		}
		desc, err := it.Export.desc()
		if err != nil {
			return err
		}
		if e := a.b.Export(r, desc); e != nil {
			a.bd.next[it.Name] = e
		}
	}
	return nil
}

func (a *applier) importResource(name string, s *ImportSpec) error {
	if s.From != "" {
		if e := a.bd.prev[s.From]; e != nil && e.Valid() {
			desc := framegraph.FromExport(e)
			desc.ReadOnly = s.ReadOnly
			a.res[name] = a.b.Import(name, desc)
			return nil
		}
		if s.Image != nil {
			info, err := s.Image.info()
			if err != nil {
				return err
			}
			a.res[name] = a.b.CreateImage(name, info)
		} else {
			a.res[name] = a.b.CreateBuffer(name, gpucore.BufferInfo{Size: s.Buffer.Size})
		}
		return nil
	}
	st, err := s.state()
	if err != nil {
		return err
	}
	img, buf, err := a.bd.physical(a.d, name, s)
	if err != nil {
		return err
	}
	a.res[name] = a.b.Import(name, framegraph.ImportDesc{
		Image:    img,
		Buffer:   buf,
		Layout:   st.layout,
		Access:   st.access,
		Scope:    st.scope,
		Queue:    st.queue,
		ReadOnly: s.ReadOnly,
	})
	return nil
}

func (a *applier) stage(name string, s *StageSpec) error {
	if !s.enabled() {
		return nil
	}
	q, err := parseQueue(s.Queue)
	if err != nil {
		return err
	}
	var opts []framegraph.StageOption
	if s.KeepAlive {
		opts = append(opts, framegraph.KeepAlive())
	}
	if s.Group != "" {
		g, ok := a.groups[s.Group]
		if !ok {
			return fmt.Errorf("%w: group %q", ErrUndeclared, s.Group)
		}
		opts = append(opts, framegraph.InGroup(g))
	}
	if a.bd.Recorder != nil {
		if r := a.bd.Recorder(name); r != nil {
			opts = append(opts, framegraph.WithRecorder(r))
		}
	}
	st := a.b.CreateStage(name, q, opts...)
	if st == nil {
		return nil
	}
	for _, u := range s.Uses {
		r, err := a.resource(u.Resource)
		if err != nil {
			return err
		}
		desc, err := u.desc()
		if err != nil {
			return err
		}
		a.b.Use(st, r, desc)
	}
	return nil
}

func (a *applier) blit(name string, s *BlitSpec) error {
	src, err := a.resource(s.Source)
	if err != nil {
		return err
	}
	info, ok := src.Info().Image()
	if !ok {
		return fmt.Errorf("%w: blit of buffer %q", ErrBadBlock, s.Source)
	}
	if s.Format != "" {
		f, err := parseFormat(s.Format)
		if err != nil {
			return err
		}
		info.Format = f
	}
	if s.Width != 0 {
		info.Width = s.Width
	}
	if s.Height != 0 {
		info.Height = s.Height
	}
	info.Usage = 0
	info.Samples = 0
	a.res[name] = a.b.Blit(name, src, info)
	return nil
}
