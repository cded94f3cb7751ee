package history

import "github.com/gogpu/framegraph/gpucore"

// Cull marks dead stages and their uses as culled, repeating until nothing
// changes, and returns the stages culled by this call in the order found.
//
// A stage is culled when it is not kept alive, writes at least one version,
// and every version it writes is dead. A version is dead when it is not
// exported, has no live reads, and is either the last version or fully
// overwritten by the next one.
func (g *Graph) Cull() []StageID {
	var culled []StageID
	for {
		changed := false
		for s := range g.Stages {
			st := &g.Stages[s]
			if st.Culled || st.KeepAlive {
				continue
			}
			writes := g.Writes(StageID(s))
			if len(writes) == 0 {
				continue
			}
			dead := true
			for _, w := range writes {
				if !g.versionDead(w.Resource, w.Version) {
					dead = false
					break
				}
			}
			if !dead {
				continue
			}
			st.Culled = true
			for _, ref := range st.Uses {
				g.Use(ref).Culled = true
			}
			culled = append(culled, StageID(s))
			changed = true
		}
		if !changed {
			return culled
		}
	}
}

func (g *Graph) versionDead(id ResourceID, v int32) bool {
	res := &g.Resources[id]
	ver := &res.Versions[v]
	if ver.Exported || ver.LiveReads() {
		return false
	}
	if int(v) == len(res.Versions)-1 {
		return true
	}
	return g.overwrites(id, v+1)
}

// overwrites reports whether version v starts with a write of the whole
// resource that does not read the previous contents. An attachment cleared
// on load discards them even when the pass reads it afterwards.
func (g *Graph) overwrites(id ResourceID, v int32) bool {
	res := &g.Resources[id]
	ver := &res.Versions[v]
	if !ver.HasWriter() {
		return false
	}
	w := &ver.Uses[0]
	if w.Access.Reads() && w.Load != gpucore.LoadOpClear {
		return false
	}
	mips, layers := res.Info.Extent()
	return w.Range.Covers(mips, layers)
}

// DiscardsContents reports whether version 0 of the resource starts with a
// whole-range write that ignores previous contents, so no clear is needed.
func (g *Graph) DiscardsContents(id ResourceID) bool {
	if len(g.Resources[id].Versions) == 0 {
		return true
	}
	return g.overwrites(id, 0)
}
