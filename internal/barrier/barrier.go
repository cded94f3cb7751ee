// Package barrier derives the barriers and cross-queue waits a schedule
// needs.
//
// Each resource's state is a list of disjoint subresource regions. Uses are
// replayed in execution order; the part of every region a use touches is
// split off, compared with the use and updated. Hazards produce barriers:
// read-after-write needs an execution and memory dependency, write-after-read
// an execution dependency, and a layout change always needs a barrier.
// Contents are owned by the queue that produced them. A read on another
// queue takes a share: a release after the producing graph stage, an
// acquire on the reader and a wait between them. Reads on different queues
// are never ordered against each other; a later write or layout change
// waits for all of them.
package barrier

import (
	"slices"
	"sort"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/history"
	"github.com/gogpu/framegraph/internal/subres"
)

// State is an external resource state at import or export.
type State struct {
	Layout gpucore.Layout
	Access gpucore.Access
	Scope  gpucore.Scope
	Queue  int
}

// Barrier is a logical barrier on a subresource rectangle.
type Barrier struct {
	Resource  history.ResourceID
	Mask      subres.Mask
	SrcScope  gpucore.Scope
	DstScope  gpucore.Scope
	SrcAccess gpucore.Access
	DstAccess gpucore.Access
	OldLayout gpucore.Layout
	NewLayout gpucore.Layout
	SrcQueue  int
	DstQueue  int
}

// Wait makes a graph stage wait for another queue's graph stage.
type Wait struct {
	Queue int
	Group int32
}

// Input is everything the synthesizer reads.
type Input struct {
	Graph *history.Graph

	// Order is the global execution order of builder stages.
	Order []history.StageID

	// Group maps each builder stage to its graph stage, -1 when culled.
	Group []int32

	// GroupQueue holds the queue index of each graph stage.
	GroupQueue []int

	Imports map[history.ResourceID]State
	Exports map[history.ResourceID]State
}

// Result holds per-graph-stage barriers and waits.
type Result struct {
	Pre   [][]Barrier
	Post  [][]Barrier
	Waits [][]Wait

	// Final is the state each exported resource is left in.
	Final map[history.ResourceID]State
}

// Count returns the total number of barriers.
func (r *Result) Count() int {
	n := 0
	for i := range r.Pre {
		n += len(r.Pre[i]) + len(r.Post[i])
	}
	return n
}

// region is the state of a subresource rectangle. Its contents are owned by
// the queue that produced them; other queues read them through a share
// acquired from the producing graph stage, so reads of one version on
// several queues stay unordered.
type region struct {
	mask   subres.Mask
	layout gpucore.Layout
	fresh  bool

	owner int
	// group produced the contents, -1 for imported or fresh ones.
	group int32
	// ownerLast is the last graph stage on the owner queue touching them.
	ownerLast int32

	written     bool
	writeScope  gpucore.Scope
	writeAccess gpucore.Access

	// reads holds one entry per queue that read the contents.
	reads []queueRead

	last      int32
	lastQueue int
}

type queueRead struct {
	queue int
	group int32
	scope gpucore.Scope

	visibleScope  gpucore.Scope
	visibleAccess gpucore.Access
}

func (r *region) read(q int) *queueRead {
	for i := range r.reads {
		if r.reads[i].queue == q {
			return &r.reads[i]
		}
	}
	return nil
}

func (r *region) addRead(q int) *queueRead {
	if rd := r.read(q); rd != nil {
		return rd
	}
	r.reads = append(r.reads, queueRead{queue: q, group: -1})
	return &r.reads[len(r.reads)-1]
}

// adopt gives contents no queue owns yet to q.
func (r *region) adopt(q int) {
	if r.owner != gpucore.QueueIgnored {
		return
	}
	r.owner = q
	r.lastQueue = q
	for i := range r.reads {
		if r.reads[i].queue == gpucore.QueueIgnored {
			r.reads[i].queue = q
		}
	}
}

// source returns the scope and access queue q last touched the contents
// with, the scope a barrier on q has to wait for.
func (r *region) source(q int) (gpucore.Scope, gpucore.Access) {
	var scope gpucore.Scope
	var access gpucore.Access
	if q == r.owner && r.written {
		scope, access = r.writeScope, r.writeAccess
	}
	if rd := r.read(q); rd != nil {
		scope |= rd.scope
		if q != r.owner {
			scope |= rd.visibleScope
		}
	}
	return scope, access
}

// visible reports whether the contents are visible to scope and access on q.
func (r *region) visible(q int, scope gpucore.Scope, access gpucore.Access) bool {
	if !r.written {
		return true
	}
	rd := r.read(q)
	return rd != nil && rd.visibleScope.Contains(scope) && rd.visibleAccess.Contains(access)
}

type synth struct {
	in      *Input
	res     *Result
	regions map[history.ResourceID][]region
}

// Synthesize replays the schedule and returns the barriers it needs.
func Synthesize(in *Input) *Result {
	n := len(in.GroupQueue)
	s := &synth{
		in: in,
		res: &Result{
			Pre:   make([][]Barrier, n),
			Post:  make([][]Barrier, n),
			Waits: make([][]Wait, n),
			Final: make(map[history.ResourceID]State),
		},
		regions: make(map[history.ResourceID][]region),
	}
	g := in.Graph
	for _, id := range in.Order {
		grp := in.Group[id]
		q := in.GroupQueue[grp]
		for _, ref := range g.Stages[id].Uses {
			u := g.Use(ref)
			if u.Culled {
				continue
			}
			s.use(ref.Resource, u, grp, q)
		}
	}
	s.exports()
	for i := range s.res.Pre {
		s.res.Pre[i] = merge(s.res.Pre[i])
		s.res.Post[i] = merge(s.res.Post[i])
	}
	return s.res
}

func (s *synth) initial(id history.ResourceID) []region {
	if rs, ok := s.regions[id]; ok {
		return rs
	}
	res := s.in.Graph.Resource(id)
	r := region{
		mask:      res.Space.Whole(),
		fresh:     true,
		owner:     gpucore.QueueIgnored,
		group:     -1,
		ownerLast: -1,
		last:      -1,
		lastQueue: gpucore.QueueIgnored,
	}
	if imp, ok := s.in.Imports[id]; ok {
		r.fresh = false
		r.layout = imp.Layout
		r.owner = imp.Queue
		r.lastQueue = imp.Queue
		if imp.Access.Writes() {
			r.written = true
			r.writeScope = imp.Scope
			r.writeAccess = imp.Access & gpucore.AccessWriteMask
		} else if imp.Scope != gpucore.ScopeNone {
			r.reads = []queueRead{{queue: imp.Queue, group: -1, scope: imp.Scope}}
		}
	}
	return []region{r}
}

func (s *synth) use(id history.ResourceID, u *history.Use, grp int32, q int) {
	regions := s.initial(id)
	next := make([]region, 0, len(regions)+2)
	for _, r := range regions {
		inter := r.mask.Intersect(u.Mask)
		if inter.Empty() {
			next = append(next, r)
			continue
		}
		for _, rest := range subres.Subtract(r.mask, u.Mask) {
			rr := r
			rr.mask = rest
			rr.reads = slices.Clone(r.reads)
			next = append(next, rr)
		}
		part := r
		part.mask = inter
		s.apply(id, &part, u, grp, q)
		next = append(next, part)
	}
	s.regions[id] = next
}

func (s *synth) apply(id history.ResourceID, r *region, u *history.Use, grp int32, q int) {
	r.adopt(q)
	defer func() {
		r.last, r.lastQueue = grp, q
		if q == r.owner {
			r.ownerLast = grp
		}
		r.fresh = false
	}()

	if u.Usage == gpucore.UsageHold {
		return
	}

	// Uses inside one graph stage are attachment uses sharing a render
	// pass; the pass orders them.
	if r.last == grp {
		if u.Writes() {
			r.written = true
			r.writeScope |= u.Scope
			r.writeAccess |= u.Access & gpucore.AccessWriteMask
		} else {
			r.addRead(q).scope |= u.Scope
		}
		r.layout = u.Layout
		return
	}

	holds := q == r.owner || r.read(q) != nil
	layoutChange := r.layout != u.Layout
	if u.Writes() || (layoutChange && (holds || len(r.reads) > 0)) {
		s.exclusive(id, r, u, grp, q, holds)
		return
	}
	if !holds {
		s.share(id, r, u, grp, q)
		return
	}

	if !r.visible(q, u.Scope, u.Access) {
		b := s.barrier(id, r, u)
		b.SrcScope, b.SrcAccess = r.source(q)
		s.res.Pre[grp] = append(s.res.Pre[grp], b)
		rd := r.addRead(q)
		rd.visibleScope |= u.Scope
		rd.visibleAccess |= u.Access
	}
	rd := r.addRead(q)
	rd.group = grp
	rd.scope |= u.Scope
}

func (s *synth) barrier(id history.ResourceID, r *region, u *history.Use) Barrier {
	return Barrier{
		Resource:  id,
		Mask:      r.mask,
		OldLayout: r.layout,
		NewLayout: u.Layout,
		DstScope:  u.Scope,
		DstAccess: u.Access,
		SrcQueue:  gpucore.QueueIgnored,
		DstQueue:  gpucore.QueueIgnored,
	}
}

// share gives queue q read access to contents another queue produced: a
// release after the producing graph stage, an acquire before grp and a
// wait between the two. Other readers are not waited for.
func (s *synth) share(id history.ResourceID, r *region, u *history.Use, grp int32, q int) {
	acq := s.barrier(id, r, u)
	acq.SrcQueue, acq.DstQueue = r.owner, q
	if r.group >= 0 {
		rel := acq
		rel.DstScope, rel.DstAccess = gpucore.ScopeNone, gpucore.AccessNone
		rel.SrcScope, rel.SrcAccess = r.writeScope, r.writeAccess
		s.res.Post[r.group] = append(s.res.Post[r.group], rel)
		s.wait(grp, r.owner, r.group)
	}
	s.res.Pre[grp] = append(s.res.Pre[grp], acq)

	rd := r.addRead(q)
	rd.group = grp
	rd.scope = u.Scope
	rd.visibleScope, rd.visibleAccess = u.Scope, u.Access
	r.layout = u.Layout
}

// exclusive handles a use that changes the contents or their layout: every
// read on another queue is waited for, ownership moves to q if needed, and
// q becomes the producer.
func (s *synth) exclusive(id history.ResourceID, r *region, u *history.Use, grp int32, q int, holds bool) {
	for _, rd := range r.reads {
		if rd.queue != q && rd.group >= 0 {
			s.wait(grp, rd.queue, rd.group)
		}
	}

	transfer := !holds
	if transfer {
		src := r.ownerLast
		acq := s.barrier(id, r, u)
		acq.NewLayout = r.layout
		acq.SrcQueue, acq.DstQueue = r.owner, q
		if src >= 0 {
			rel := acq
			rel.DstScope, rel.DstAccess = gpucore.ScopeNone, gpucore.AccessNone
			rel.SrcScope, rel.SrcAccess = r.source(r.owner)
			s.res.Post[src] = append(s.res.Post[src], rel)
			s.wait(grp, r.owner, src)
		}
		s.res.Pre[grp] = append(s.res.Pre[grp], acq)
	}

	srcScope, srcAccess := r.source(q)
	if transfer {
		srcScope, srcAccess = u.Scope, gpucore.AccessNone
	}
	layoutChange := r.layout != u.Layout
	need := layoutChange || (!transfer && srcScope != gpucore.ScopeNone)
	if need && r.fresh && u.Layout.IsAttachment() {
		need = false
	}
	if need {
		b := s.barrier(id, r, u)
		b.SrcScope, b.SrcAccess = srcScope, srcAccess
		s.res.Pre[grp] = append(s.res.Pre[grp], b)
	}

	r.owner = q
	r.group = grp
	r.layout = u.Layout
	r.reads = nil
	if u.Writes() {
		r.written = true
		r.writeScope = u.Scope
		r.writeAccess = u.Access & gpucore.AccessWriteMask
		return
	}
	r.written = true
	r.writeScope, r.writeAccess = u.Scope, gpucore.AccessNone
	r.reads = []queueRead{{queue: q, group: grp, scope: u.Scope, visibleScope: u.Scope, visibleAccess: u.Access}}
}

// wait records that graph stage grp waits for graph stage src on queue.
func (s *synth) wait(grp int32, queue int, src int32) {
	if queue == s.in.GroupQueue[grp] {
		return
	}
	ws := s.res.Waits[grp]
	for i := range ws {
		if ws[i].Queue == queue {
			ws[i].Group = max(ws[i].Group, src)
			return
		}
	}
	s.res.Waits[grp] = append(ws, Wait{Queue: queue, Group: src})
}

func (s *synth) exports() {
	ids := make([]history.ResourceID, 0, len(s.in.Exports))
	for id := range s.in.Exports {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		e := s.in.Exports[id]
		final := e
		for _, r := range s.regions[id] {
			if r.last < 0 {
				continue
			}
			q := r.lastQueue
			if final.Queue == gpucore.QueueIgnored {
				final.Queue = q
			}
			transfer := e.Queue != gpucore.QueueIgnored && q != gpucore.QueueIgnored && e.Queue != q
			layoutChange := e.Layout != r.layout
			srcScope, srcAccess := r.source(q)
			b := Barrier{
				Resource:  id,
				Mask:      r.mask,
				SrcScope:  srcScope,
				SrcAccess: srcAccess,
				OldLayout: r.layout,
				NewLayout: e.Layout,
			}
			switch {
			case transfer:
				b.SrcQueue, b.DstQueue = q, e.Queue
			case layoutChange || (e.Access != gpucore.AccessNone && !r.visible(q, e.Scope, e.Access)):
				b.DstScope, b.DstAccess = e.Scope, e.Access
				b.SrcQueue, b.DstQueue = gpucore.QueueIgnored, gpucore.QueueIgnored
			default:
				continue
			}
			// The final transition follows the reads of every queue.
			for _, rd := range r.reads {
				if rd.group >= 0 && rd.group != r.last {
					s.wait(r.last, rd.queue, rd.group)
				}
			}
			s.res.Post[r.last] = append(s.res.Post[r.last], b)
		}
		s.res.Final[id] = final
	}
}

// merge folds barriers that differ only in a mask whose union is a rectangle.
func merge(bs []Barrier) []Barrier {
	if len(bs) < 2 {
		return bs
	}
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(bs) && !changed; i++ {
			for j := i + 1; j < len(bs); j++ {
				a, b := bs[i], bs[j]
				a.Mask, b.Mask = subres.Mask{}, subres.Mask{}
				if a != b {
					continue
				}
				m, ok := subres.Merge(bs[i].Mask, bs[j].Mask)
				if !ok {
					continue
				}
				bs[i].Mask = m
				bs = append(bs[:j], bs[j+1:]...)
				changed = true
				break
			}
		}
	}
	return bs
}
