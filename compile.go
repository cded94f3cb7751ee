package framegraph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/barrier"
	"github.com/gogpu/framegraph/internal/history"
	"github.com/gogpu/framegraph/internal/pool"
	"github.com/gogpu/framegraph/internal/schedule"
	"github.com/gogpu/gputypes"
)

type physical struct {
	image  gpucore.Image
	buffer gpucore.Buffer
	entry  *pool.Entry
}

type attachRef struct {
	res history.ResourceID
	use *history.Use
}

// graphStage is the unit of submission: one or more builder stages that
// share a queue slot and, for graphics work, one render pass.
type graphStage struct {
	members []history.StageID
	queue   int
	slot    int
	value   uint64
	group   *Group

	attach    []attachRef
	rendering *gpucore.RenderingInfo

	pre, post   []Barrier
	waits       []Wait
	importWaits []gpucore.FenceValue
	signals     []gpucore.FenceValue
	waitedOn    bool
}

// compiled is the working state of one compile and, once committed, the
// plan Submit records.
type compiled struct {
	g     *Graph
	b     *Builder
	frame uint64
	slot  *frameSlot

	culled     []history.StageID
	sched      *schedule.Result
	stageGroup []int32
	stages     []*graphStage
	timelines  [][]int
	base       []uint64

	// Per resource: groups touching it in global order.
	touched [][]int

	synth  *barrier.Result
	phys   []physical
	held   []*pool.Entry
	passes map[history.StageID]gpucore.BlitPass
	plan   *Plan

	submitted bool
}

func (c *compiled) physical(r *Resource) physical {
	if r.b != c.b {
		panic(fmt.Sprintf("framegraph: resource %q from another compile", r.name))
	}
	return c.phys[r.id]
}

func (c *compiled) info(r *Resource) gpucore.ResourceInfo {
	if r.b != c.b {
		panic(fmt.Sprintf("framegraph: resource %q from another compile", r.name))
	}
	return c.b.hist.Resources[r.id].Info
}

func (c *compiled) fail(cat Category, err error, objs ...Object) error {
	c.b.fail(cat, err, objs...)
	return err
}

// Compile declares one frame through build and compiles it into the plan
// the next Submit runs. On failure the previous plan and its physical
// resources stay untouched and the first error is returned.
func (g *Graph) Compile(ctx context.Context, build BuildFunc) error {
	if g.closed {
		return ErrClosed
	}
	start := time.Now()
	c, err := g.compile(ctx, build)
	compileDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		compilesTotal.WithLabelValues("error").Inc()
		return err
	}
	compilesTotal.WithLabelValues("ok").Inc()
	g.commit(c)
	Logger().Debug("framegraph: compiled",
		"frame", c.frame,
		"stages", len(c.stages),
		"culled", len(c.culled),
		"barriers", c.plan.BarrierCount(),
		"elapsed", time.Since(start))
	return nil
}

func (g *Graph) compile(ctx context.Context, build BuildFunc) (*compiled, error) {
	b := newBuilder(g, g.frames+1)
	if err := build(b); b.err != nil {
		return nil, b.err
	} else if err != nil {
		return nil, err
	}

	c := &compiled{g: g, b: b, frame: b.frame}
	c.zeroPass()
	c.culled = b.hist.Cull()
	stagesCulledTotal.Add(float64(len(c.culled)))
	if err := c.infer(); err != nil {
		return nil, err
	}
	if err := c.resolveExports(); err != nil {
		return nil, err
	}
	c.zeroPass()
	if err := c.infer(); err != nil {
		return nil, err
	}
	b.hist.ResolveMasks()

	sched, err := schedule.Run(&b.hist, len(g.queues), g.dev.QueueFor)
	if err != nil {
		var se *schedule.CycleError
		if errors.As(err, &se) {
			ce := &CycleError{Stages: se.Names}
			objs := make([]Object, len(se.Names))
			for i, n := range se.Names {
				objs[i] = stageObject(n)
			}
			return nil, c.fail(CategoryScheduling, ce, objs...)
		}
		return nil, c.fail(CategoryScheduling, err)
	}
	c.sched = sched
	c.buildStages()

	slot, err := g.acquireFrame(ctx)
	if err != nil {
		return nil, err
	}
	c.slot = slot

	if err := c.prepare(); err != nil {
		return nil, err
	}
	c.synthesize()
	if err := c.acquire(); err != nil {
		return nil, err
	}
	c.finish()
	return c, nil
}

// zeroPass gives every transient resource whose first version does not
// start with a whole-range write an implicit clear as its new version 0.
func (c *compiled) zeroPass() {
	h := &c.b.hist
	for id, rs := range c.b.res {
		rid := history.ResourceID(id)
		if rs.imported || h.DiscardsContents(rid) {
			continue
		}
		first, ok := h.FirstLiveUse(rid)
		if !ok {
			continue
		}
		q := h.Stages[h.Use(first).Stage].Queue
		if !gpucore.UsageClear.AllowsQueue(q) {
			q = gpucore.QueueGraphics
		}
		st := c.b.addStage("clear:"+rs.handle.name, q, stageClear)
		st.dst = rid
		kind := h.Resources[rid].Kind()
		h.PrependWrite(rid, history.Use{
			Stage:  st.handle.id,
			Usage:  gpucore.UsageClear,
			Access: gpucore.AccessTransferWrite,
			Scope:  gpucore.ScopeTransfer,
			Layout: gpucore.UsageClear.Layout(kind, gpucore.AccessTransferWrite),
			Load:   gpucore.LoadOpDontCare,
		})
		if rs.exportVersion >= 0 {
			rs.exportVersion++
		}
	}
}

func (c *compiled) live(id history.ResourceID) bool {
	_, ok := c.b.hist.FirstLiveUse(id)
	return ok
}

// infer computes every live resource's final creation info from its
// declaration and uses. Bound resources keep their physical info and only
// have their required usage checked.
func (c *compiled) infer() error {
	h := &c.b.hist
	for id, rs := range c.b.res {
		rid := history.ResourceID(id)
		r := &h.Resources[rid]
		if !c.live(rid) {
			r.Info = rs.declared
			continue
		}
		var texUsage gputypes.TextureUsage
		var bufUsage gputypes.BufferUsage
		var mipEnd, layerEnd uint32
		for v := range r.Versions {
			for _, u := range r.Versions[v].Uses {
				if u.Culled {
					continue
				}
				texUsage |= u.Usage.TextureUsage()
				bufUsage |= u.Usage.BufferUsage()
				mipEnd = max(mipEnd, rangeEnd(u.Range.BaseMip, u.Range.MipCount))
				layerEnd = max(layerEnd, rangeEnd(u.Range.BaseLayer, u.Range.LayerCount))
			}
		}

		if rs.imported || rs.bound() {
			if e := rs.imp.from; e != nil {
				c.g.imported[e.name] = c.g.imported[e.name].or(texUsage, bufUsage)
			}
			if err := c.checkBoundUsage(rs, texUsage, bufUsage); err != nil {
				return err
			}
			r.Info = rs.declared
			continue
		}
		// A pooled export must also support its final state and whatever
		// later imports of it asked for.
		if e := rs.export; e != nil && e.desc.Image == nil && e.desc.Buffer == nil {
			f := c.g.imported[e.name].or(gpucore.StateUsage(e.desc.Layout, e.desc.Access))
			texUsage |= f.texture
			bufUsage |= f.buffer
		}

		switch rs.declared.Kind() {
		case gpucore.KindImage:
			im := rs.declared.MustImage()
			im.Usage |= texUsage
			if im.MipLevels == 0 {
				im.MipLevels = max(mipEnd, 1)
			}
			if im.ArrayLayers == 0 {
				im.ArrayLayers = max(layerEnd, 1)
			}
			im.Samples = max(im.Samples, 1)
			im.Depth = max(im.Depth, 1)
			if !c.g.dev.FormatSupported(im) {
				return c.fail(CategoryResource, fmt.Errorf("%w: %q %s", ErrUnsupportedFormat,
					rs.handle.name, gpucore.ImageResource(im)), resourceObject(rs.handle.name))
			}
			r.Info = gpucore.ImageResource(im)
		case gpucore.KindBuffer:
			bi := rs.declared.MustBuffer()
			bi.Usage |= bufUsage
			r.Info = gpucore.BufferResource(bi)
		}
	}
	return nil
}

// usageFlags is a pair of creation usage masks, one per resource kind.
type usageFlags struct {
	texture gputypes.TextureUsage
	buffer  gputypes.BufferUsage
}

func (f usageFlags) or(tex gputypes.TextureUsage, buf gputypes.BufferUsage) usageFlags {
	return usageFlags{texture: f.texture | tex, buffer: f.buffer | buf}
}

func (c *compiled) checkBoundUsage(rs *resourceState, tex gputypes.TextureUsage, buf gputypes.BufferUsage) error {
	ok := true
	switch rs.declared.Kind() {
	case gpucore.KindImage:
		have := rs.declared.MustImage().Usage
		ok = have == 0 || have&tex == tex
	case gpucore.KindBuffer:
		have := rs.declared.MustBuffer().Usage
		ok = have == 0 || have&buf == buf
	}
	if ok {
		return nil
	}
	return c.fail(CategoryValidation, fmt.Errorf("%w: physical resource of %q lacks usage flags its uses need",
		ErrIncompatibleImport, rs.handle.name), resourceObject(rs.handle.name))
}

func rangeEnd(base, count uint32) uint32 {
	if count == 0 {
		return base + 1
	}
	return base + count
}

// resolveExports binds exported resources to their targets, inserting a
// blit into a fresh resource when the target is incompatible, and gives
// exported versions no stage uses a hold stage.
func (c *compiled) resolveExports() error {
	b := c.b
	h := &b.hist
	for _, e := range b.exports {
		id := e.res
		rs := b.res[id]
		if rs.exportVersion < 0 && len(h.Resources[id].Versions) > 0 {
			rs.exportVersion = 0
			h.Resources[id].Versions[0].Exported = true
		}

		var target gpucore.ResourceInfo
		switch {
		case e.desc.Image != nil && rs.image != e.desc.Image:
			target = gpucore.ImageResource(e.desc.Image.Info())
		case e.desc.Buffer != nil && rs.buffer != e.desc.Buffer:
			target = gpucore.BufferResource(e.desc.Buffer.Info())
		}
		hasTarget := target.Kind() != 0
		blit := hasTarget && (rs.bound() || !compatible(h.Resources[id].Info, target))
		if !blit && (rs.exportVersion < 0 || h.Resources[id].Versions[rs.exportVersion].LiveUses() == 0) {
			c.hold(id)
		}
		if !hasTarget {
			continue
		}
		if !blit {
			rs.image, rs.buffer = e.desc.Image, e.desc.Buffer
			rs.declared = target
			h.Resources[id].Info = target
			continue
		}

		b.warn(CategoryPerformance, fmt.Sprintf("export of %q needs a copy into its target", rs.handle.name),
			resourceObject(rs.handle.name))
		dst := b.addResource("export:"+rs.handle.name, target)
		dst.image, dst.buffer = e.desc.Image, e.desc.Buffer
		cfg := gpucore.BlitConfig{Kind: target.Kind()}
		q := gpucore.QueueTransfer
		if target.Kind() == gpucore.KindImage {
			src := h.Resources[id].Info.MustImage()
			tgt := target.MustImage()
			cfg.SrcFormat, cfg.DstFormat = src.Format, tgt.Format
			cfg.Filter = gpucore.BlitLinear
			cfg.Resolve = src.Samples > 1 && max(tgt.Samples, 1) == 1
			q = gpucore.QueueGraphics
		}
		if rs.exportVersion >= 0 {
			h.Resources[id].Versions[rs.exportVersion].Exported = false
		}
		rs.export = nil
		if err := b.copyStage("blit:"+dst.handle.name, q, id, dst.handle.id, cfg); err != nil {
			return c.fail(CategoryValidation, err, resourceObject(rs.handle.name))
		}
		dst.export = e
		dst.exportVersion = 0
		h.Resources[dst.handle.id].Versions[0].Exported = true
		e.res = dst.handle.id
	}
	return nil
}

// hold adds an implicit stage keeping id's exported version alive.
func (c *compiled) hold(id history.ResourceID) {
	b := c.b
	h := &b.hist
	rs := b.res[id]
	st := b.addStage("hold:"+rs.handle.name, c.holdQueue(id), stageHold)
	ref := h.AddUse(id, history.Use{Stage: st.handle.id, Usage: gpucore.UsageHold})
	rs.exportVersion = ref.Version
	h.Resources[id].Versions[ref.Version].Exported = true
}

// holdQueue returns the queue type of the resource's last live user, or of
// its import queue.
func (c *compiled) holdQueue(id history.ResourceID) gpucore.QueueType {
	h := &c.b.hist
	r := &h.Resources[id]
	for v := len(r.Versions) - 1; v >= 0; v-- {
		uses := r.Versions[v].Uses
		for u := len(uses) - 1; u >= 0; u-- {
			if !uses[u].Culled {
				return h.Stages[uses[u].Stage].Queue
			}
		}
	}
	if rs := c.b.res[id]; rs.imported && rs.imp.Queue >= 0 {
		for t := gpucore.QueueType(0); t < gpucore.QueueTypeCount; t++ {
			if c.g.dev.QueueFor(t) == rs.imp.Queue {
				return t
			}
		}
	}
	return gpucore.QueueGraphics
}

// compatible reports whether a resource with info have can live directly
// in a physical resource with info target.
func compatible(have, target gpucore.ResourceInfo) bool {
	if have.Kind() != target.Kind() {
		return false
	}
	if have.Kind() == gpucore.KindBuffer {
		a, t := have.MustBuffer(), target.MustBuffer()
		return t.Size >= a.Size && (t.Usage == 0 || t.Usage&a.Usage == a.Usage)
	}
	a, t := have.MustImage(), target.MustImage()
	return a.Format == t.Format &&
		a.Width == t.Width && a.Height == t.Height &&
		max(a.Depth, 1) == max(t.Depth, 1) &&
		max(a.Samples, 1) == max(t.Samples, 1) &&
		t.MipLevels >= a.MipLevels && t.ArrayLayers >= a.ArrayLayers &&
		(t.Usage == 0 || t.Usage&a.Usage == a.Usage)
}

// buildStages groups scheduled stages into graph stages. A graphics stage
// joins the previous one's render pass when it directly follows it in the
// global order on the same queue and binds exactly the same attachments.
func (c *compiled) buildStages() {
	h := &c.b.hist
	s := c.sched
	c.stageGroup = make([]int32, len(h.Stages))
	for i := range c.stageGroup {
		c.stageGroup[i] = -1
	}
	c.timelines = make([][]int, len(c.g.queues))
	c.base = make([]uint64, len(c.g.queues))
	for q, qs := range c.g.queues {
		c.base[q] = qs.allocated
	}

	prev := history.StageID(-1)
	for _, id := range s.Order {
		if prev >= 0 && c.mergeable(prev, id) {
			gi := c.stageGroup[prev]
			c.stages[gi].members = append(c.stages[gi].members, id)
			c.stageGroup[id] = gi
			prev = id
			continue
		}
		q := s.Queue[id]
		gs := &graphStage{
			members: []history.StageID{id},
			queue:   q,
			slot:    len(c.timelines[q]),
			group:   c.b.stages[id].group,
		}
		gs.value = c.base[q] + uint64(gs.slot) + 1
		c.stageGroup[id] = int32(len(c.stages))
		c.timelines[q] = append(c.timelines[q], len(c.stages))
		c.stages = append(c.stages, gs)
		prev = id
	}

	for _, gs := range c.stages {
		for _, ref := range h.Stages[gs.members[0]].Uses {
			u := h.Use(ref)
			if !u.Culled && u.Usage.IsAttachment() {
				gs.attach = append(gs.attach, attachRef{res: ref.Resource, use: u})
			}
		}
	}

	c.touched = make([][]int, len(h.Resources))
	for _, id := range s.Order {
		gi := int(c.stageGroup[id])
		for _, ref := range h.Stages[id].Uses {
			if h.Use(ref).Culled {
				continue
			}
			t := c.touched[ref.Resource]
			if len(t) == 0 || t[len(t)-1] != gi {
				c.touched[ref.Resource] = append(t, gi)
			}
		}
	}
}

type attachKey struct {
	res    history.ResourceID
	rng    gpucore.Range
	layout gpucore.Layout
}

func (c *compiled) attachments(id history.StageID) ([]attachKey, bool) {
	h := &c.b.hist
	var keys []attachKey
	for _, ref := range h.Stages[id].Uses {
		u := h.Use(ref)
		if u.Culled {
			continue
		}
		if !u.Usage.IsAttachment() {
			return nil, false
		}
		keys = append(keys, attachKey{res: ref.Resource, rng: u.Range, layout: u.Layout})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].res < keys[j].res })
	return keys, len(keys) > 0
}

func (c *compiled) mergeable(a, b history.StageID) bool {
	h := &c.b.hist
	sa, sb := c.b.stages[a], c.b.stages[b]
	if sa.kind != stageUser || sb.kind != stageUser || sa.group != sb.group {
		return false
	}
	if h.Stages[a].Queue != gpucore.QueueGraphics || h.Stages[b].Queue != gpucore.QueueGraphics ||
		c.sched.Queue[a] != c.sched.Queue[b] {
		return false
	}
	// Only a stage that is itself the head of its graph stage may open
	// the pass; later members already matched it.
	ka, okA := c.attachments(c.stages[c.stageGroup[a]].members[0])
	kb, okB := c.attachments(b)
	return okA && okB && slices.Equal(ka, kb)
}

// prepare runs group prepare callbacks, then stage ones, in schedule
// order.
func (c *compiled) prepare() error {
	h := &c.b.hist
	liveGroups := make(map[*Group]bool)
	for _, id := range c.sched.Order {
		if grp := c.b.stages[id].group; grp != nil {
			liveGroups[grp] = true
		}
	}
	for _, grp := range c.b.groups {
		if grp.prepare == nil || !liveGroups[grp] {
			continue
		}
		err := grp.prepare(&PrepareContext{Frame: c.frame, Group: grp.name, c: c})
		if err := c.checkCallback(err, "prepare group "+grp.name, Object{Kind: ObjectGroup, Name: grp.name}); err != nil {
			return err
		}
	}
	for _, id := range c.sched.Order {
		st := c.b.stages[id]
		p, ok := st.recorder.(Preparer)
		if !ok {
			continue
		}
		pc := &PrepareContext{Frame: c.frame, Stage: h.Stages[id].Name, UserData: st.userData, c: c}
		if st.group != nil {
			pc.Group = st.group.name
		}
		if err := c.checkCallback(p.Prepare(pc), "prepare stage "+pc.Stage, stageObject(pc.Stage)); err != nil {
			return err
		}
	}
	return nil
}

// checkCallback turns ErrUnimplemented into a warning and any other error
// into a compile failure.
func (c *compiled) checkCallback(err error, what string, obj Object) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnimplemented):
		c.g.rep.report(Diagnostic{
			Severity: SeverityWarning,
			Category: CategoryUnimplemented,
			Message:  what + ": " + err.Error(),
			Objects:  []Object{obj},
			Err:      err,
		})
		return nil
	default:
		return c.fail(CategoryValidation, fmt.Errorf("framegraph: %s: %w", what, err), obj)
	}
}

// synthesize derives barriers and waits, and attaches import waits and
// export signals to the graph stages holding the first and last uses.
func (c *compiled) synthesize() {
	b := c.b
	in := &barrier.Input{
		Graph:      &b.hist,
		Order:      c.sched.Order,
		Group:      c.stageGroup,
		GroupQueue: make([]int, len(c.stages)),
		Imports:    make(map[history.ResourceID]barrier.State),
		Exports:    make(map[history.ResourceID]barrier.State),
	}
	for i, gs := range c.stages {
		in.GroupQueue[i] = gs.queue
	}
	for id, rs := range b.res {
		if rs.imported && len(c.touched[id]) > 0 {
			in.Imports[history.ResourceID(id)] = barrier.State{
				Layout: rs.imp.Layout,
				Access: rs.imp.Access,
				Scope:  rs.imp.Scope,
				Queue:  rs.imp.Queue,
			}
		}
	}
	for _, e := range b.exports {
		in.Exports[e.res] = barrier.State{
			Layout: e.desc.Layout,
			Access: e.desc.Access,
			Scope:  e.desc.Scope,
			Queue:  e.desc.Queue,
		}
	}
	c.synth = barrier.Synthesize(in)

	for i, gs := range c.stages {
		for _, w := range c.synth.Waits[i] {
			src := c.stages[w.Group]
			src.waitedOn = true
			gs.waits = append(gs.waits, Wait{Queue: w.Queue, Value: src.value})
		}
	}
	for id, rs := range b.res {
		t := c.touched[id]
		if !rs.imported || rs.imp.Wait == nil || len(t) == 0 {
			continue
		}
		gs := c.stages[t[0]]
		if rs.imp.Wait.Fence == c.g.queues[gs.queue].fence {
			continue
		}
		gs.importWaits = append(gs.importWaits, *rs.imp.Wait)
	}
	for _, e := range b.exports {
		t := c.touched[e.res]
		if e.desc.Signal == nil || len(t) == 0 {
			continue
		}
		gs := c.stages[t[len(t)-1]]
		gs.signals = append(gs.signals, *e.desc.Signal)
	}
}

// clocks returns, per graph stage, the timeline values known complete
// before it starts through the cross-queue waits alone.
func (c *compiled) clocks() []pool.Clock {
	n := len(c.g.queues)
	vc := make([]pool.Clock, len(c.stages))
	for i := range c.stages {
		cl := make(pool.Clock, n)
		for _, w := range c.synth.Waits[i] {
			src := c.stages[w.Group]
			cl = cl.Join(vc[w.Group])
			cl[src.queue] = max(cl[src.queue], src.value)
		}
		vc[i] = cl
	}
	return vc
}

// acquire binds every live resource to a physical one: its import or
// export target, or a pool entry whose previous lifetime provably ended
// before the resource's first use.
func (c *compiled) acquire() error {
	b := c.b
	h := &b.hist
	c.phys = make([]physical, len(h.Resources))
	vc := c.clocks()
	signaled := c.g.signaled()

	ids := make([]int, 0, len(h.Resources))
	for id := range h.Resources {
		if len(c.touched[id]) > 0 {
			ids = append(ids, id)
		}
	}
	sort.SliceStable(ids, func(i, j int) bool { return c.touched[ids[i]][0] < c.touched[ids[j]][0] })

	for _, id := range ids {
		rs := b.res[id]
		notAfter := make(pool.Clock, len(c.g.queues))
		for _, gi := range c.touched[id] {
			gs := c.stages[gi]
			notAfter[gs.queue] = max(notAfter[gs.queue], gs.value)
		}
		if rs.bound() {
			c.phys[id] = physical{image: rs.image, buffer: rs.buffer}
			if from := rs.imp.from; from != nil && from.entry != nil {
				c.g.pool.Retain(from.entry)
				c.g.pool.Extend(from.entry, notAfter)
				c.held = append(c.held, from.entry)
			}
			continue
		}
		notBefore := signaled.Join(vc[c.touched[id][0]])
		before := c.g.pool.Stats()
		e, err := c.g.pool.Acquire(rs.handle.name, h.Resources[id].Info, notBefore, notAfter)
		if err != nil {
			c.releaseHeld()
			if errors.Is(err, pool.ErrBudgetExceeded) {
				err = fmt.Errorf("%w: %w", ErrOutOfMemory, err)
			}
			return c.fail(CategoryResource, err, resourceObject(rs.handle.name))
		}
		if c.g.pool.Stats().Hits > before.Hits {
			poolAcquiresTotal.WithLabelValues("hit").Inc()
		} else {
			poolAcquiresTotal.WithLabelValues("miss").Inc()
		}
		c.phys[id] = physical{image: e.Image, buffer: e.Buffer, entry: e}
		c.held = append(c.held, e)
	}

	c.passes = make(map[history.StageID]gpucore.BlitPass)
	for _, id := range c.sched.Order {
		st := b.stages[id]
		if st.kind != stageBlit {
			continue
		}
		p, err := c.g.passes.Get(st.blit)
		if err != nil {
			c.releaseHeld()
			return c.fail(CategoryResource, err, stageObject(h.Stages[id].Name))
		}
		c.passes[id] = p
	}
	return nil
}

func (c *compiled) releaseHeld() {
	for _, e := range c.held {
		c.g.pool.Release(e)
	}
	c.held = nil
}

// finish converts logical barriers to device barriers, fills render pass
// descriptions and builds the plan.
func (c *compiled) finish() {
	h := &c.b.hist
	for i, gs := range c.stages {
		gs.pre = c.deviceBarriers(c.synth.Pre[i])
		gs.post = c.deviceBarriers(c.synth.Post[i])
		if len(gs.attach) == 0 {
			continue
		}
		st := c.b.stages[gs.members[0]]
		info := &gpucore.RenderingInfo{
			Label:  h.Stages[gs.members[0]].Name,
			Width:  st.attWidth,
			Height: st.attHeight,
		}
		for _, a := range gs.attach {
			r := &h.Resources[a.res]
			mips, layers := r.Info.Extent()
			att := gpucore.Attachment{
				Image:  c.phys[a.res].image,
				Range:  a.use.Range.Resolve(mips, layers),
				Layout: a.use.Layout,
				Load:   a.use.Load,
				Store:  gpucore.StoreOpStore,
				Clear:  a.use.Clear,
			}
			if a.use.Usage == gpucore.UsageDepthAttachment {
				info.Depth = &att
			} else {
				info.Color = append(info.Color, att)
			}
		}
		gs.rendering = info
	}
	for _, gs := range c.stages {
		if len(gs.pre) > 0 || len(gs.post) > 0 {
			for _, bar := range gs.pre {
				barriersTotal.WithLabelValues(barrierKind(bar.Barrier)).Inc()
			}
			for _, bar := range gs.post {
				barriersTotal.WithLabelValues(barrierKind(bar.Barrier)).Inc()
			}
		}
	}
	c.plan = c.buildPlan()
}

func barrierKind(b gpucore.Barrier) string {
	switch {
	case b.IsRelease():
		return "release"
	case b.IsAcquire():
		return "acquire"
	case b.OldLayout != b.NewLayout:
		return "transition"
	default:
		return "memory"
	}
}

func (c *compiled) deviceBarriers(bs []barrier.Barrier) []Barrier {
	if len(bs) == 0 {
		return nil
	}
	h := &c.b.hist
	var out []Barrier
	for _, lb := range bs {
		r := &h.Resources[lb.Resource]
		p := c.phys[lb.Resource]
		base := gpucore.Barrier{
			Image:     p.image,
			Buffer:    p.buffer,
			SrcScope:  lb.SrcScope,
			DstScope:  lb.DstScope,
			SrcAccess: lb.SrcAccess,
			DstAccess: lb.DstAccess,
			OldLayout: lb.OldLayout,
			NewLayout: lb.NewLayout,
			SrcQueue:  lb.SrcQueue,
			DstQueue:  lb.DstQueue,
		}
		if r.Kind() == gpucore.KindBuffer {
			out = append(out, Barrier{Resource: r.Name, Barrier: base})
			continue
		}
		for _, rng := range r.Space.Ranges(lb.Mask) {
			bar := base
			bar.Range = rng
			out = append(out, Barrier{Resource: r.Name, Barrier: bar})
		}
	}
	return out
}

// commit makes c the pending plan: the previous plan's pool references
// are dropped, exports are bound and the pools are trimmed.
func (g *Graph) commit(c *compiled) {
	if g.pending != nil {
		for _, e := range g.pending.b.exports {
			e.invalidate()
		}
	}
	for _, e := range g.held {
		g.pool.Release(e)
	}
	g.held = c.held
	g.pending = c

	live := g.exports[:0]
	for _, e := range g.exports {
		if e.Valid() {
			live = append(live, e)
		}
	}
	g.exports = live
	for _, e := range c.b.exports {
		c.bindExport(e)
		g.exports = append(g.exports, e)
	}

	signaling := make(pool.Clock, len(g.queues))
	for q := range g.queues {
		signaling[q] = c.base[q] + uint64(len(c.timelines[q]))
	}
	destroyed := g.pool.Cleanup(g.signaled(), signaling)
	evicted := g.passes.EndCompile()
	poolBytes.Set(float64(g.pool.Stats().Bytes))
	if destroyed > 0 || evicted > 0 {
		Logger().Debug("framegraph: pools trimmed", "resources", destroyed, "passes", evicted)
	}
}

func (c *compiled) bindExport(e *Export) {
	h := &c.b.hist
	p := c.phys[e.res]
	e.info = h.Resources[e.res].Info
	e.image, e.buffer = p.image, p.buffer
	e.final = c.synth.Final[e.res]
	if t := c.touched[e.res]; len(t) > 0 {
		gs := c.stages[t[len(t)-1]]
		e.done = gpucore.FenceValue{Fence: c.g.queues[gs.queue].fence, Value: gs.value}
		if e.final.Queue == gpucore.QueueIgnored {
			e.final.Queue = gs.queue
		}
	}
	if p.entry != nil {
		c.g.pool.Pin(p.entry)
		e.entry = p.entry
	}
	e.valid = true
}
