// Package schedule orders the live stages of a history onto queue
// timelines.
//
// Each resource keeps a cursor (version, uses done). A stage is ready when
// every one of its uses is the next acceptable use of its resource: a write
// only when nothing of its version ran yet, a read once the version's
// writer ran. Reads of one version may run in any order. Ready stages are
// taken greedily from per-queue-type buckets until no bucket makes
// progress; whatever is left forms a dependency cycle.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/history"
)

// ErrCyclicDependency is wrapped by CycleError.
var ErrCyclicDependency = errors.New("schedule: cyclic dependency")

// CycleError lists the stages that could not be scheduled.
type CycleError struct {
	Stages []history.StageID
	Names  []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: stages %s", ErrCyclicDependency, strings.Join(e.Names, ", "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicDependency }

// Result is a complete schedule.
type Result struct {
	// Order is the global execution order. Within one queue it matches the
	// queue's timeline; across queues it is a valid topological order.
	Order []history.StageID

	// Queue and Slot give each stage's queue index and timeline position,
	// -1 for culled stages.
	Queue []int
	Slot  []int32

	// Timelines lists the stages of each queue index in order.
	Timelines [][]history.StageID
}

type cursor struct {
	version int32
	done    int
}

type scheduler struct {
	g       *history.Graph
	cursors []cursor
}

// Run schedules every live stage of g. queueOf maps a queue type to a
// queue index in [0, queues). Version.Order is filled as a side effect.
func Run(g *history.Graph, queues int, queueOf func(gpucore.QueueType) int) (*Result, error) {
	s := &scheduler{g: g, cursors: make([]cursor, len(g.Resources))}
	for r := range g.Resources {
		for v := range g.Resources[r].Versions {
			g.Resources[r].Versions[v].Order = g.Resources[r].Versions[v].Order[:0]
		}
		s.normalize(history.ResourceID(r), &s.cursors[r])
	}

	res := &Result{
		Queue:     make([]int, len(g.Stages)),
		Slot:      make([]int32, len(g.Stages)),
		Timelines: make([][]history.StageID, queues),
	}
	var buckets [gpucore.QueueTypeCount][]history.StageID
	pending := 0
	for i := range g.Stages {
		res.Queue[i], res.Slot[i] = -1, -1
		st := &g.Stages[i]
		if st.Culled {
			continue
		}
		buckets[st.Queue] = append(buckets[st.Queue], history.StageID(i))
		pending++
	}

	for progress := true; progress && pending > 0; {
		progress = false
		for t := range buckets {
			for i := 0; i < len(buckets[t]); {
				id := buckets[t][i]
				if !s.tryRun(id) {
					i++
					continue
				}
				q := queueOf(gpucore.QueueType(t))
				res.Queue[id] = q
				res.Slot[id] = int32(len(res.Timelines[q]))
				res.Timelines[q] = append(res.Timelines[q], id)
				res.Order = append(res.Order, id)
				buckets[t] = append(buckets[t][:i], buckets[t][i+1:]...)
				pending--
				progress = true
				i = 0
			}
		}
	}

	if pending > 0 {
		cerr := &CycleError{}
		for t := range buckets {
			cerr.Stages = append(cerr.Stages, buckets[t]...)
		}
		sort.Slice(cerr.Stages, func(i, j int) bool { return cerr.Stages[i] < cerr.Stages[j] })
		for _, id := range cerr.Stages {
			cerr.Names = append(cerr.Names, g.Stages[id].Name)
		}
		for r := range g.Resources {
			for v := range g.Resources[r].Versions {
				g.Resources[r].Versions[v].Order = nil
			}
		}
		return nil, cerr
	}
	return res, nil
}

// normalize skips versions whose live uses all ran.
func (s *scheduler) normalize(r history.ResourceID, c *cursor) {
	vers := s.g.Resources[r].Versions
	for int(c.version) < len(vers) && c.done >= vers[c.version].LiveUses() {
		c.version++
		c.done = 0
	}
}

// tryRun simulates the stage's uses in (resource, version, writer-first)
// order against copies of the cursors and commits them if all succeed.
func (s *scheduler) tryRun(id history.StageID) bool {
	st := &s.g.Stages[id]
	refs := make([]history.Ref, 0, len(st.Uses))
	for _, ref := range st.Uses {
		if !s.g.Use(ref).Culled {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Use < b.Use
	})

	local := make(map[history.ResourceID]cursor, len(refs))
	for _, ref := range refs {
		c, ok := local[ref.Resource]
		if !ok {
			c = s.cursors[ref.Resource]
		}
		if c.version != ref.Version {
			return false
		}
		ver := s.g.Version(ref)
		if ref.Use == 0 && ver.HasWriter() {
			if c.done != 0 {
				return false
			}
		} else if ver.HasWriter() && !ver.Uses[0].Culled && c.done == 0 {
			return false
		}
		c.done++
		s.normalize(ref.Resource, &c)
		local[ref.Resource] = c
	}

	for r, c := range local {
		s.cursors[r] = c
	}
	for _, ref := range refs {
		ver := s.g.Version(ref)
		ver.Order = append(ver.Order, ref.Use)
	}
	return true
}
