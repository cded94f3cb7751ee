package framegraph

import (
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/barrier"
	"github.com/gogpu/framegraph/internal/history"
	"github.com/gogpu/framegraph/internal/pool"
)

// Resource is a logical image or buffer declared in one compile. Handles
// are only valid with the Builder that created them and with the
// RecordContext of the plan compiled from it.
type Resource struct {
	b    *Builder
	id   history.ResourceID
	name string
}

// Name returns the resource name.
func (r *Resource) Name() string { return r.name }

// Info returns the creation info as declared. The compiled info, with
// usage flags and extents inferred, is available from the Plan.
func (r *Resource) Info() gpucore.ResourceInfo { return r.b.res[r.id].declared }

// ImportDesc describes an external physical resource brought into the
// graph, and the state it is in.
//
// Queue is the queue index owning the resource, or gpucore.QueueIgnored
// when ownership is not tracked. Wait, when set, is a fence value the first
// use waits for.
type ImportDesc struct {
	Image  gpucore.Image
	Buffer gpucore.Buffer

	Layout gpucore.Layout
	Access gpucore.Access
	Scope  gpucore.Scope
	Queue  int

	Wait     *gpucore.FenceValue
	ReadOnly bool

	from *Export
}

// FromExport returns an import of the resource a previous compile exported.
// The import starts in the state the export left it in.
func FromExport(e *Export) ImportDesc {
	return ImportDesc{from: e}
}

// ExportDesc describes how a resource is handed to an external owner once
// the frame's work on it completes.
//
// Image or Buffer optionally names the physical resource to export into.
// A compatible target backs the resource directly; an incompatible one
// gets a blit. Queue is the queue index that owns the resource afterwards,
// or gpucore.QueueIgnored to leave it with its last user. Signal, when set,
// is signalled by the submission containing the last use.
type ExportDesc struct {
	Image  gpucore.Image
	Buffer gpucore.Buffer

	Layout gpucore.Layout
	Access gpucore.Access
	Scope  gpucore.Scope
	Queue  int

	Signal *gpucore.FenceValue
}

// Export is the handle of an exported resource. It becomes valid once the
// compile that declared it succeeds and stays valid until Release.
type Export struct {
	name string
	desc ExportDesc
	res  history.ResourceID

	g        *Graph
	valid    bool
	released bool

	info   gpucore.ResourceInfo
	image  gpucore.Image
	buffer gpucore.Buffer
	entry  *pool.Entry
	final  barrier.State
	done   gpucore.FenceValue
}

// Name returns the exported resource's name.
func (e *Export) Name() string { return e.name }

// Valid reports whether the export is bound to a physical resource.
func (e *Export) Valid() bool { return e.valid && !e.released }

// Info returns the compiled creation info.
func (e *Export) Info() gpucore.ResourceInfo { return e.info }

// Image returns the exported physical image, nil for buffers.
func (e *Export) Image() gpucore.Image { return e.image }

// Buffer returns the exported physical buffer, nil for images.
func (e *Export) Buffer() gpucore.Buffer { return e.buffer }

// Layout returns the layout the resource is left in.
func (e *Export) Layout() gpucore.Layout { return e.final.Layout }

// Queue returns the queue index owning the resource after the frame.
func (e *Export) Queue() int { return e.final.Queue }

// Done returns the fence value reached once the frame's last use of the
// resource completed.
func (e *Export) Done() gpucore.FenceValue { return e.done }

// Release gives a pooled physical resource back to the pool. Releasing
// twice is a no-op. Exports bound to caller-owned targets only become
// invalid.
func (e *Export) Release() {
	if e.released {
		return
	}
	e.released = true
	if e.entry != nil && e.valid && e.g != nil && !e.g.closed {
		e.g.pool.Unpin(e.entry)
	}
	e.entry = nil
}

func (e *Export) invalidate() {
	e.Release()
	e.valid = false
}
