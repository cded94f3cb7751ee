package framegraph

import (
	"fmt"
	"strings"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/history"
)

// Plan is the inspectable result of a compile: graph stages on their queue
// timelines with the barriers and waits between them.
type Plan struct {
	Frame     uint64
	Stages    []GraphStage
	Timelines [][]int
	Edges     []Edge
	Culled    []string
	Resources []PlannedResource
}

// GraphStage is one submission unit of a plan.
type GraphStage struct {
	Index int
	Name  string
	Queue int
	Slot  int
	// Value is the queue timeline value signalled once the stage completed.
	Value uint64

	// Substages lists the builder stages merged into this one, in order.
	Substages []string
	Group     string

	Pre   []Barrier
	Post  []Barrier
	Waits []Wait

	Rendering *gpucore.RenderingInfo
}

// Barrier is a device barrier tagged with the logical resource it covers.
type Barrier struct {
	Resource string
	gpucore.Barrier
}

func (b Barrier) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s->%s", b.Resource, b.OldLayout, b.NewLayout)
	switch {
	case b.IsRelease():
		fmt.Fprintf(&sb, " release q%d->q%d", b.SrcQueue, b.DstQueue)
	case b.IsAcquire():
		fmt.Fprintf(&sb, " acquire q%d->q%d", b.SrcQueue, b.DstQueue)
	}
	return sb.String()
}

// Wait makes a graph stage wait until queue Queue's timeline reached Value.
type Wait struct {
	Queue int
	Value uint64
}

// Edge is a data dependency between graph stages.
type Edge struct {
	From, To int
	Resource string
}

// PlannedResource describes one live logical resource.
type PlannedResource struct {
	Name     string
	Info     gpucore.ResourceInfo
	Imported bool
	Exported bool
	Versions int
	Physical string
}

// BarrierCount returns the number of device barriers in the plan.
func (p *Plan) BarrierCount() int {
	n := 0
	for i := range p.Stages {
		n += len(p.Stages[i].Pre) + len(p.Stages[i].Post)
	}
	return n
}

// Stage returns the graph stage containing the builder stage name.
func (p *Plan) Stage(name string) (*GraphStage, bool) {
	for i := range p.Stages {
		for _, s := range p.Stages[i].Substages {
			if s == name {
				return &p.Stages[i], true
			}
		}
	}
	return nil, false
}

// Resource returns the planned resource called name.
func (p *Plan) Resource(name string) (*PlannedResource, bool) {
	for i := range p.Resources {
		if p.Resources[i].Name == name {
			return &p.Resources[i], true
		}
	}
	return nil, false
}

func (c *compiled) buildPlan() *Plan {
	h := &c.b.hist
	p := &Plan{
		Frame:     c.frame,
		Stages:    make([]GraphStage, len(c.stages)),
		Timelines: c.timelines,
	}
	for i, gs := range c.stages {
		ps := GraphStage{
			Index:     i,
			Name:      h.Stages[gs.members[0]].Name,
			Queue:     gs.queue,
			Slot:      gs.slot,
			Value:     gs.value,
			Pre:       gs.pre,
			Post:      gs.post,
			Waits:     gs.waits,
			Rendering: gs.rendering,
		}
		if gs.group != nil {
			ps.Group = gs.group.name
		}
		for _, m := range gs.members {
			ps.Substages = append(ps.Substages, h.Stages[m].Name)
		}
		p.Stages[i] = ps
	}
	for _, id := range c.culled {
		p.Culled = append(p.Culled, h.Stages[id].Name)
	}

	type edgeKey struct {
		from, to int
		res      history.ResourceID
	}
	seen := make(map[edgeKey]bool)
	for r := range h.Resources {
		res := &h.Resources[r]
		for v := range res.Versions {
			ver := &res.Versions[v]
			if !ver.HasWriter() || ver.Uses[0].Culled {
				continue
			}
			from := int(c.stageGroup[ver.Uses[0].Stage])
			for _, u := range ver.Uses[1:] {
				if u.Culled {
					continue
				}
				to := int(c.stageGroup[u.Stage])
				k := edgeKey{from, to, history.ResourceID(r)}
				if to == from || seen[k] {
					continue
				}
				seen[k] = true
				p.Edges = append(p.Edges, Edge{From: from, To: to, Resource: res.Name})
			}
			// The next version's writer depends on every reader of this one.
			if v+1 < len(res.Versions) {
				next := &res.Versions[v+1]
				if next.HasWriter() && !next.Uses[0].Culled {
					to := int(c.stageGroup[next.Uses[0].Stage])
					k := edgeKey{from, to, history.ResourceID(r)}
					if to != from && !seen[k] && ver.LiveUses() == 1 {
						seen[k] = true
						p.Edges = append(p.Edges, Edge{From: from, To: to, Resource: res.Name})
					}
				}
			}
		}
	}

	for r := range h.Resources {
		if len(c.touched[r]) == 0 {
			continue
		}
		res := &h.Resources[r]
		rs := c.b.res[r]
		pr := PlannedResource{
			Name:     res.Name,
			Info:     res.Info,
			Imported: rs.imported,
			Exported: rs.export != nil,
			Versions: len(res.Versions),
		}
		switch ph := c.phys[r]; {
		case ph.image != nil:
			pr.Physical = ph.image.Label()
		case ph.buffer != nil:
			pr.Physical = ph.buffer.Label()
		}
		p.Resources = append(p.Resources, pr)
	}
	return p
}
