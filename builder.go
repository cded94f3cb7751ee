package framegraph

import (
	"fmt"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/history"
	"github.com/gogpu/framegraph/internal/subres"
	"github.com/gogpu/gputypes"
)

// BuildFunc declares one frame's graph.
type BuildFunc func(b *Builder) error

type resourceState struct {
	handle   *Resource
	declared gpucore.ResourceInfo

	// Physical resource the logical one is bound to: an import or a
	// compatible export target. Unbound resources come from the pool.
	image  gpucore.Image
	buffer gpucore.Buffer

	imported bool
	imp      ImportDesc

	export *Export
	// exportVersion is the version current at Export, -1 if none yet.
	exportVersion int32
}

func (rs *resourceState) bound() bool { return rs.image != nil || rs.buffer != nil }

// Builder accumulates the declarations of one compile. Every mutating call
// returns nil once a call failed; Err reports the first failure.
type Builder struct {
	g     *Graph
	frame uint64
	rep   reporter

	hist    history.Graph
	res     []*resourceState
	stages  []*stageState
	groups  []*Group
	exports []*Export

	err error
}

func newBuilder(g *Graph, frame uint64) *Builder {
	return &Builder{
		g:     g,
		frame: frame,
		rep:   reporter{handler: g.opts.handler, trap: g.opts.trap},
	}
}

// Err returns the first validation error, or nil.
func (b *Builder) Err() error { return b.err }

// Frame returns the number of the frame being declared, starting at 1.
func (b *Builder) Frame() uint64 { return b.frame }

func (b *Builder) fail(cat Category, err error, objs ...Object) {
	if b.err == nil {
		b.err = err
	}
	b.rep.report(Diagnostic{
		Severity: SeverityError,
		Category: cat,
		Message:  err.Error(),
		Objects:  objs,
		Err:      err,
	})
}

func (b *Builder) warn(cat Category, msg string, objs ...Object) {
	b.rep.report(Diagnostic{Severity: SeverityWarning, Category: cat, Message: msg, Objects: objs})
}

func (b *Builder) addResource(name string, info gpucore.ResourceInfo) *resourceState {
	id := b.hist.AddResource(name, info, false, false)
	rs := &resourceState{
		handle:   &Resource{b: b, id: id, name: name},
		declared: info,
	}
	b.res = append(b.res, rs)
	return rs
}

// CreateImage declares a transient image. Width, Height and Format are
// required; zero MipLevels and ArrayLayers are inferred from the uses.
func (b *Builder) CreateImage(name string, info gpucore.ImageInfo) *Resource {
	if b.err != nil {
		return nil
	}
	if info.Width == 0 || info.Height == 0 || info.Format == gputypes.TextureFormatUndefined {
		b.fail(CategoryValidation, fmt.Errorf("%w: image %q is %dx%d format %d",
			ErrZeroCreateInfo, name, info.Width, info.Height, info.Format), resourceObject(name))
		return nil
	}
	return b.addResource(name, gpucore.ImageResource(info)).handle
}

// CreateBuffer declares a transient buffer.
func (b *Builder) CreateBuffer(name string, info gpucore.BufferInfo) *Resource {
	if b.err != nil {
		return nil
	}
	if info.Size == 0 {
		b.fail(CategoryValidation, fmt.Errorf("%w: buffer %q has zero size", ErrZeroCreateInfo, name),
			resourceObject(name))
		return nil
	}
	return b.addResource(name, gpucore.BufferResource(info)).handle
}

// Import declares an external physical resource, or one exported by a
// previous compile (see FromExport).
func (b *Builder) Import(name string, desc ImportDesc) *Resource {
	if b.err != nil {
		return nil
	}
	if e := desc.from; e != nil {
		if !e.Valid() || e.g != b.g {
			b.fail(CategoryValidation, fmt.Errorf("%w: %q imports export %q that is not valid",
				ErrIncompatibleImport, name, e.name), resourceObject(name))
			return nil
		}
		readOnly := desc.ReadOnly
		desc = ImportDesc{
			Image:    e.image,
			Buffer:   e.buffer,
			Layout:   e.final.Layout,
			Access:   e.final.Access,
			Scope:    e.final.Scope,
			Queue:    e.final.Queue,
			ReadOnly: readOnly,
			from:     e,
		}
		if e.done.Fence != nil {
			done := e.done
			desc.Wait = &done
		}
	}

	var info gpucore.ResourceInfo
	switch {
	case desc.Image != nil && desc.Buffer == nil:
		info = gpucore.ImageResource(desc.Image.Info())
	case desc.Buffer != nil && desc.Image == nil:
		info = gpucore.BufferResource(desc.Buffer.Info())
	default:
		b.fail(CategoryValidation, fmt.Errorf("%w: %q must name exactly one image or buffer",
			ErrIncompatibleImport, name), resourceObject(name))
		return nil
	}
	if info.Kind() == gpucore.KindBuffer && desc.Layout != gpucore.LayoutUndefined {
		b.fail(CategoryValidation, fmt.Errorf("%w: buffer %q imported with layout %s",
			ErrIncompatibleImport, name, desc.Layout), resourceObject(name))
		return nil
	}
	if desc.Queue < gpucore.QueueIgnored || desc.Queue >= len(b.g.queues) {
		b.fail(CategoryValidation, fmt.Errorf("%w: %q imported on queue %d",
			ErrIncompatibleImport, name, desc.Queue), resourceObject(name))
		return nil
	}

	rs := b.addResource(name, info)
	r := &b.hist.Resources[rs.handle.id]
	r.Imported = true
	r.ReadOnly = desc.ReadOnly
	rs.imported = true
	rs.imp = desc
	rs.image, rs.buffer = desc.Image, desc.Buffer
	return rs.handle
}

// CreateStage declares a stage on a queue type.
func (b *Builder) CreateStage(name string, q gpucore.QueueType, opts ...StageOption) *Stage {
	if b.err != nil {
		return nil
	}
	if q >= gpucore.QueueTypeCount || b.g.dev.QueueFor(q) < 0 {
		b.fail(CategoryValidation, fmt.Errorf("%w: stage %q on %s", ErrNoQueue, name, q), stageObject(name))
		return nil
	}
	st := b.addStage(name, q, stageUser)
	for _, opt := range opts {
		opt(st)
	}
	if st.group != nil && st.group.b != b {
		b.fail(CategoryValidation, fmt.Errorf("%w: stage %q group %q", ErrForeignHandle, name, st.group.name),
			stageObject(name))
		return nil
	}
	b.hist.Stages[st.handle.id].KeepAlive = st.keepAlive
	return st.handle
}

func (b *Builder) addStage(name string, q gpucore.QueueType, kind stageKind) *stageState {
	id := b.hist.AddStage(name, q)
	b.hist.Stages[id].Implicit = kind != stageUser
	st := &stageState{handle: &Stage{b: b, id: id, name: name}, kind: kind}
	b.stages = append(b.stages, st)
	return st
}

// CreateGroup declares a group for debug labels and batched preparation.
func (b *Builder) CreateGroup(name string, opts ...GroupOption) *Group {
	if b.err != nil {
		return nil
	}
	grp := &Group{b: b, name: name}
	for _, opt := range opts {
		opt(grp)
	}
	b.groups = append(b.groups, grp)
	return grp
}

// Use attaches a use of res to stage s and returns s.
func (b *Builder) Use(s *Stage, res *Resource, desc UseDesc) *Stage {
	if b.err != nil {
		return nil
	}
	if s == nil || res == nil {
		panic("framegraph: Use with nil stage or resource")
	}
	if s.b != b || res.b != b {
		b.fail(CategoryValidation, fmt.Errorf("%w: stage %q uses %q", ErrForeignHandle, s.name, res.name),
			stageObject(s.name), resourceObject(res.name))
		return nil
	}
	if b.stages[s.id].kind != stageUser {
		panic("framegraph: Use on an implicit stage")
	}
	if desc.Usage == gpucore.UsageHold {
		b.fail(CategoryValidation, fmt.Errorf("%w: %s is reserved", ErrInvalidAccess, desc.Usage),
			stageObject(s.name), resourceObject(res.name))
		return nil
	}
	if err := b.addUse(s, res, desc); err != nil {
		b.fail(CategoryValidation, err, stageObject(s.name), resourceObject(res.name))
		return nil
	}
	return s
}

// addUse validates and records one use.
func (b *Builder) addUse(s *Stage, res *Resource, desc UseDesc) error {
	st := b.stages[s.id]
	hs := &b.hist.Stages[s.id]
	rs := b.res[res.id]
	hr := &b.hist.Resources[res.id]
	kind := hr.Kind()

	if !desc.Usage.Valid() {
		return fmt.Errorf("%w: stage %q uses %q without a usage category", ErrMissingAccess, s.name, res.name)
	}
	if !desc.Usage.AllowsKind(kind) {
		return fmt.Errorf("%w: %s use of %s %q", ErrKindMismatch, desc.Usage, kind, res.name)
	}
	if !desc.Usage.AllowsQueue(hs.Queue) {
		return fmt.Errorf("%w: %s use in stage %q on %s", ErrQueueTypeMismatch, desc.Usage, s.name, hs.Queue)
	}

	access := desc.Access
	if access == gpucore.AccessNone {
		access = desc.Usage.DefaultAccess()
	}
	if access == gpucore.AccessNone {
		return fmt.Errorf("%w: %s use of %q", ErrMissingAccess, desc.Usage, res.name)
	}
	if !desc.Usage.AllowedAccess().Contains(access) {
		return fmt.Errorf("%w: %s use of %q with access %s", ErrInvalidAccess, desc.Usage, res.name, access)
	}
	scope := desc.Scope
	if scope == gpucore.ScopeNone {
		scope = desc.Usage.DefaultScope(hs.Queue)
	}
	if !desc.Usage.AllowedScope().Contains(scope) {
		return fmt.Errorf("%w: %s use of %q with scope %s", ErrInvalidAccess, desc.Usage, res.name, scope)
	}

	if err := checkRange(hr.Info, desc.Range, res.name); err != nil {
		return err
	}

	space := provisionalSpace(hr.Info)
	mask := space.Mask(desc.Range)
	for _, ref := range hs.Uses {
		other := b.hist.Use(ref)
		if desc.Token != 0 && other.Token == desc.Token {
			return fmt.Errorf("%w: token %d in stage %q", ErrDuplicateToken, desc.Token, s.name)
		}
		if ref.Resource == res.id && !subres.Disjoint(mask, space.Mask(other.Range)) {
			return fmt.Errorf("%w: stage %q uses %q twice", ErrOverlappingUse, s.name, res.name)
		}
	}

	writes := access.Writes()
	if writes && hr.ReadOnly {
		return fmt.Errorf("%w: stage %q writes %q", ErrReadOnlyWrite, s.name, res.name)
	}
	if writes && rs.export != nil {
		return fmt.Errorf("%w: stage %q writes %q", ErrWriteAfterExport, s.name, res.name)
	}

	if desc.Usage.IsAttachment() {
		img := hr.Info.MustImage()
		w, h := img.MipExtent(desc.Range.BaseMip)
		samples := max(img.Samples, 1)
		if !st.attached {
			st.attached = true
			st.attWidth, st.attHeight, st.attSamples = w, h, samples
		} else if w != st.attWidth || h != st.attHeight || samples != st.attSamples {
			return fmt.Errorf("%w: %q is %dx%d x%d, stage %q renders %dx%d x%d", ErrAttachmentMismatch,
				res.name, w, h, samples, s.name, st.attWidth, st.attHeight, st.attSamples)
		}
	}

	u := history.Use{
		Stage:  s.id,
		Usage:  desc.Usage,
		Access: access,
		Scope:  scope,
		Layout: desc.Usage.Layout(kind, access),
		Range:  desc.Range,
		Token:  desc.Token,
		Load:   gpucore.LoadOpDontCare,
	}
	switch {
	case desc.Clear != nil:
		u.Load = gpucore.LoadOpClear
		u.Clear = *desc.Clear
	case access.Reads():
		u.Load = gpucore.LoadOpLoad
	}
	b.hist.AddUse(res.id, u)
	return nil
}

// checkRange rejects ranges outside explicitly declared extents.
func checkRange(info gpucore.ResourceInfo, r gpucore.Range, name string) error {
	if info.Kind() == gpucore.KindBuffer {
		if r.BaseMip != 0 || r.BaseLayer != 0 || r.MipCount > 1 || r.LayerCount > 1 {
			return fmt.Errorf("%w: buffer %q has no subresources", ErrRangeOutOfBounds, name)
		}
		return nil
	}
	mips, layers := info.Extent()
	if mips > 0 && (r.BaseMip >= mips || r.MipEnd() > mips) {
		return fmt.Errorf("%w: %q mips %d+%d of %d", ErrRangeOutOfBounds, name, r.BaseMip, r.MipCount, mips)
	}
	if layers > 0 && (r.BaseLayer >= layers || r.LayerEnd() > layers) {
		return fmt.Errorf("%w: %q layers %d+%d of %d", ErrRangeOutOfBounds, name, r.BaseLayer, r.LayerCount, layers)
	}
	return nil
}

// provisionalSpace sizes unknown extents to the widest mask so open-ended
// ranges can be compared before inference.
func provisionalSpace(info gpucore.ResourceInfo) subres.Space {
	mips, layers := info.Extent()
	if mips == 0 {
		mips = 64
	}
	if layers == 0 {
		layers = 64
	}
	return subres.Space{Mips: mips, Layers: layers}
}

// Blit declares a new image holding a copy of src's current contents,
// scaled and converted to info.
func (b *Builder) Blit(name string, src *Resource, info gpucore.ImageInfo) *Resource {
	if b.err != nil {
		return nil
	}
	return b.blit(name, src, info, false)
}

// Resolve declares a single-sampled image holding the resolve of the
// multisampled image src.
func (b *Builder) Resolve(name string, src *Resource) *Resource {
	if b.err != nil {
		return nil
	}
	if src == nil {
		panic("framegraph: Resolve of nil resource")
	}
	info, ok := src.Info().Image()
	if !ok || info.Samples <= 1 {
		b.fail(CategoryValidation, fmt.Errorf("%w: resolve of single-sampled %q", ErrAttachmentMismatch, src.name),
			resourceObject(src.name))
		return nil
	}
	info.Samples = 1
	info.Usage = 0
	return b.blit(name, src, info, true)
}

func (b *Builder) blit(name string, src *Resource, info gpucore.ImageInfo, resolve bool) *Resource {
	if src == nil {
		panic("framegraph: Blit of nil resource")
	}
	if src.b != b {
		b.fail(CategoryValidation, fmt.Errorf("%w: blit source %q", ErrForeignHandle, src.name),
			resourceObject(src.name))
		return nil
	}
	srcInfo, ok := src.Info().Image()
	if !ok {
		b.fail(CategoryValidation, fmt.Errorf("%w: blit of buffer %q", ErrKindMismatch, src.name),
			resourceObject(src.name))
		return nil
	}
	dst := b.CreateImage(name, info)
	if dst == nil {
		return nil
	}
	cfg := gpucore.BlitConfig{
		Kind:      gpucore.KindImage,
		SrcFormat: srcInfo.Format,
		DstFormat: info.Format,
		Filter:    gpucore.BlitLinear,
		Resolve:   resolve,
	}
	if err := b.copyStage("blit:"+name, gpucore.QueueGraphics, src.id, dst.id, cfg); err != nil {
		b.fail(CategoryValidation, err, resourceObject(src.name), resourceObject(name))
		return nil
	}
	return dst
}

// copyStage adds an implicit stage reading src's current version into a
// new version of dst.
func (b *Builder) copyStage(name string, q gpucore.QueueType, src, dst history.ResourceID, cfg gpucore.BlitConfig) error {
	st := b.addStage(name, q, stageBlit)
	st.src, st.dst, st.blit = src, dst, cfg
	if err := b.addUse(st.handle, b.res[src].handle, CopySrc()); err != nil {
		return err
	}
	return b.addUse(st.handle, b.res[dst].handle, CopyDst())
}

// Export marks res's current version for hand-off once the frame's work
// on it completes. Later stages may still read it but not write it.
func (b *Builder) Export(res *Resource, desc ExportDesc) *Export {
	if b.err != nil {
		return nil
	}
	if res == nil {
		panic("framegraph: Export of nil resource")
	}
	if res.b != b {
		b.fail(CategoryValidation, fmt.Errorf("%w: export of %q", ErrForeignHandle, res.name),
			resourceObject(res.name))
		return nil
	}
	rs := b.res[res.id]
	if rs.export != nil {
		b.fail(CategoryValidation, fmt.Errorf("%w: %q", ErrDoubleExport, res.name), resourceObject(res.name))
		return nil
	}
	kind := rs.declared.Kind()
	if (desc.Image != nil && kind != gpucore.KindImage) || (desc.Buffer != nil && kind != gpucore.KindBuffer) {
		b.fail(CategoryValidation, fmt.Errorf("%w: export target of %s %q", ErrKindMismatch, kind, res.name),
			resourceObject(res.name))
		return nil
	}
	if desc.Queue < gpucore.QueueIgnored || desc.Queue >= len(b.g.queues) {
		b.fail(CategoryValidation, fmt.Errorf("%w: %q exported to queue %d", ErrInvalidAccess, res.name, desc.Queue),
			resourceObject(res.name))
		return nil
	}
	e := &Export{name: res.name, desc: desc, res: res.id, g: b.g}
	rs.export = e
	rs.exportVersion = b.hist.Latest(res.id)
	if rs.exportVersion >= 0 {
		b.hist.Resources[res.id].Versions[rs.exportVersion].Exported = true
	}
	b.exports = append(b.exports, e)
	return e
}
