// Package history stores the resource-version-use arena of one compile.
//
// Every logical resource owns an ordered chain of versions. A write always
// opens a new version and is that version's first use; reads attach to the
// latest version. Stages refer to their uses through (resource, version,
// use) index triples, so the arena never holds pointers between entries.
package history

import (
	"fmt"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/subres"
)

// ResourceID indexes Graph.Resources.
type ResourceID int32

// StageID indexes Graph.Stages.
type StageID int32

// Ref locates one use in the arena.
type Ref struct {
	Resource ResourceID
	Version  int32
	Use      int32
}

// Use is one stage's use of one version.
type Use struct {
	Stage  StageID
	Usage  gpucore.Usage
	Access gpucore.Access
	Scope  gpucore.Scope
	Layout gpucore.Layout
	Range  gpucore.Range
	Token  uint64
	Load   gpucore.LoadOp
	Clear  gpucore.ClearValue

	// Mask is filled by ResolveMasks once resource extents are final.
	Mask subres.Mask

	Culled bool
}

// Writes reports whether the use modifies the resource.
func (u *Use) Writes() bool { return u.Access.Writes() }

// Version is one state of a resource's contents.
type Version struct {
	Uses []Use

	// Order lists live use indices in execution order. The scheduler
	// fills it; reads of a version may run in any order.
	Order []int32

	Exported bool
}

// HasWriter reports whether the version starts with a write.
func (v *Version) HasWriter() bool {
	return len(v.Uses) > 0 && v.Uses[0].Writes()
}

// LiveReads reports whether any use other than the writer is not culled.
func (v *Version) LiveReads() bool {
	start := 0
	if v.HasWriter() {
		start = 1
	}
	for i := start; i < len(v.Uses); i++ {
		if !v.Uses[i].Culled {
			return true
		}
	}
	return false
}

// LiveUses returns the number of uses that are not culled.
func (v *Version) LiveUses() int {
	n := 0
	for i := range v.Uses {
		if !v.Uses[i].Culled {
			n++
		}
	}
	return n
}

// Resource is one logical resource.
type Resource struct {
	Name     string
	Info     gpucore.ResourceInfo
	Imported bool
	ReadOnly bool
	Space    subres.Space
	Versions []Version
}

// Kind returns the resource kind.
func (r *Resource) Kind() gpucore.ResourceKind { return r.Info.Kind() }

// Stage is one unit of work.
type Stage struct {
	Name      string
	Queue     gpucore.QueueType
	Uses      []Ref
	KeepAlive bool
	Implicit  bool
	Culled    bool
}

// Graph is the arena.
type Graph struct {
	Resources []Resource
	Stages    []Stage
}

// AddResource appends a resource with no versions.
func (g *Graph) AddResource(name string, info gpucore.ResourceInfo, imported, readOnly bool) ResourceID {
	g.Resources = append(g.Resources, Resource{
		Name:     name,
		Info:     info,
		Imported: imported,
		ReadOnly: readOnly,
	})
	return ResourceID(len(g.Resources) - 1)
}

// AddStage appends a stage with no uses.
func (g *Graph) AddStage(name string, q gpucore.QueueType) StageID {
	g.Stages = append(g.Stages, Stage{Name: name, Queue: q})
	return StageID(len(g.Stages) - 1)
}

// Resource returns the resource with the given id.
func (g *Graph) Resource(id ResourceID) *Resource { return &g.Resources[id] }

// Stage returns the stage with the given id.
func (g *Graph) Stage(id StageID) *Stage { return &g.Stages[id] }

// Use returns the use a ref points to.
func (g *Graph) Use(r Ref) *Use {
	return &g.Resources[r.Resource].Versions[r.Version].Uses[r.Use]
}

// Version returns the version a ref points to.
func (g *Graph) Version(r Ref) *Version {
	return &g.Resources[r.Resource].Versions[r.Version]
}

// Latest returns the index of the newest version, or -1.
func (g *Graph) Latest(id ResourceID) int32 {
	return int32(len(g.Resources[id].Versions)) - 1
}

// AddUse records a use of resource id by the stage u.Stage. A write opens a
// new version; a read joins the latest version, opening version 0 if the
// resource has none.
func (g *Graph) AddUse(id ResourceID, u Use) Ref {
	res := &g.Resources[id]
	if u.Writes() || len(res.Versions) == 0 {
		res.Versions = append(res.Versions, Version{})
	}
	v := int32(len(res.Versions) - 1)
	ver := &res.Versions[v]
	ver.Uses = append(ver.Uses, u)
	ref := Ref{Resource: id, Version: v, Use: int32(len(ver.Uses) - 1)}
	st := &g.Stages[u.Stage]
	st.Uses = append(st.Uses, ref)
	return ref
}

// PrependWrite inserts a new version 0 whose only use is the write u, and
// renumbers every ref to the resource.
func (g *Graph) PrependWrite(id ResourceID, u Use) Ref {
	if !u.Writes() {
		panic(fmt.Sprintf("history: PrependWrite with non-writing access %s", u.Access))
	}
	res := &g.Resources[id]
	res.Versions = append([]Version{{Uses: []Use{u}}}, res.Versions...)
	for s := range g.Stages {
		for i := range g.Stages[s].Uses {
			if g.Stages[s].Uses[i].Resource == id {
				g.Stages[s].Uses[i].Version++
			}
		}
	}
	ref := Ref{Resource: id, Version: 0, Use: 0}
	g.Stages[u.Stage].Uses = append(g.Stages[u.Stage].Uses, ref)
	return ref
}

// FirstLiveUse returns the first live use of the first version that has
// one, in declaration order.
func (g *Graph) FirstLiveUse(id ResourceID) (Ref, bool) {
	res := &g.Resources[id]
	for v := range res.Versions {
		for u := range res.Versions[v].Uses {
			if !res.Versions[v].Uses[u].Culled {
				return Ref{Resource: id, Version: int32(v), Use: int32(u)}, true
			}
		}
	}
	return Ref{}, false
}

// ResolveMasks sets every resource's space from its info and converts use
// ranges to masks.
func (g *Graph) ResolveMasks() {
	for r := range g.Resources {
		res := &g.Resources[r]
		res.Space = subres.SpaceOf(res.Info)
		for v := range res.Versions {
			for u := range res.Versions[v].Uses {
				use := &res.Versions[v].Uses[u]
				use.Mask = res.Space.Mask(use.Range)
			}
		}
	}
}

// Writes returns the refs of uses of stage s that write.
func (g *Graph) Writes(s StageID) []Ref {
	var out []Ref
	for _, ref := range g.Stages[s].Uses {
		if g.Use(ref).Writes() {
			out = append(out, ref)
		}
	}
	return out
}
