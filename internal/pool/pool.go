// Package pool recycles physical resources across and within frames.
//
// Entries are keyed by their exact creation info and guarded by a
// timeline-based safe-reuse test: an entry may back a new logical resource
// only when its release point happens-before the new resource's first use.
package pool

import (
	"errors"
	"fmt"

	"github.com/gogpu/framegraph/gpucore"
)

// Pool errors.
var (
	// ErrBudgetExceeded is returned when an allocation would exceed the budget.
	ErrBudgetExceeded = errors.New("pool: memory budget exceeded")

	// ErrClosed is returned when operating on a closed pool.
	ErrClosed = errors.New("pool: closed")
)

// Clock is a point in execution: per queue index, the timeline value of
// the latest stage known to have completed before it.
type Clock []uint64

// LessEq reports whether every component of c is at most the matching
// component of o. Missing components count as zero.
func (c Clock) LessEq(o Clock) bool {
	for i, v := range c {
		var w uint64
		if i < len(o) {
			w = o[i]
		}
		if v > w {
			return false
		}
	}
	return true
}

// Join returns the component-wise maximum.
func (c Clock) Join(o Clock) Clock {
	out := make(Clock, max(len(c), len(o)))
	copy(out, c)
	for i, v := range o {
		out[i] = max(out[i], v)
	}
	return out
}

// Meet returns the component-wise minimum.
func (c Clock) Meet(o Clock) Clock {
	out := make(Clock, max(len(c), len(o)))
	for i := range out {
		var a, b uint64
		if i < len(c) {
			a = c[i]
		}
		if i < len(o) {
			b = o[i]
		}
		out[i] = min(a, b)
	}
	return out
}

// Entry is one pooled physical resource.
type Entry struct {
	Info   gpucore.ResourceInfo
	Image  gpucore.Image
	Buffer gpucore.Buffer

	refs    int
	pins    int
	release Clock
}

// Refs returns the reference count. The pool itself holds one reference.
func (e *Entry) Refs() int { return e.refs }

// ReleasePoint returns the clock after which the entry is free again.
func (e *Entry) ReleasePoint() Clock { return e.release }

// Stats contains pool statistics.
type Stats struct {
	Entries   int
	Bytes     uint64
	Hits      uint64
	Misses    uint64
	Destroyed uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Pool[%d entries, %d KB, %d hits, %d misses, %d destroyed]",
		s.Entries, s.Bytes/1024, s.Hits, s.Misses, s.Destroyed)
}

// Config holds pool configuration.
type Config struct {
	// MaxMemoryMB caps the bytes held by the pool. Zero means no cap.
	MaxMemoryMB int
}

// Pool is the physical resource pool. It is not safe for concurrent use.
type Pool struct {
	dev     gpucore.Device
	budget  uint64
	entries []*Entry
	stats   Stats
	closed  bool
}

// New creates a pool allocating through dev.
func New(dev gpucore.Device, cfg Config) *Pool {
	var budget uint64
	if cfg.MaxMemoryMB > 0 {
		budget = uint64(cfg.MaxMemoryMB) * 1024 * 1024
	}
	return &Pool{dev: dev, budget: budget}
}

// Acquire returns an entry with exactly the given info whose release point
// is at most notBefore, bumping its reference count and moving its release
// point to notAfter. Without a match it creates a new entry with two
// references: the pool's and the caller's.
func (p *Pool) Acquire(label string, info gpucore.ResourceInfo, notBefore, notAfter Clock) (*Entry, error) {
	if p.closed {
		return nil, ErrClosed
	}
	for _, e := range p.entries {
		if e.pins > 0 || e.Info != info || !e.release.LessEq(notBefore) {
			continue
		}
		e.refs++
		e.release = append(e.release[:0], notAfter...)
		p.stats.Hits++
		return e, nil
	}

	size := info.SizeBytes()
	if p.budget > 0 && p.stats.Bytes+size > p.budget {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d of %d in use",
			ErrBudgetExceeded, label, size, p.stats.Bytes, p.budget)
	}
	e := &Entry{Info: info, refs: 2, release: append(Clock(nil), notAfter...)}
	switch info.Kind() {
	case gpucore.KindImage:
		img, err := p.dev.CreateImage(label, info.MustImage())
		if err != nil {
			return nil, fmt.Errorf("pool: create image %s: %w", label, err)
		}
		e.Image = img
	case gpucore.KindBuffer:
		buf, err := p.dev.CreateBuffer(label, info.MustBuffer())
		if err != nil {
			return nil, fmt.Errorf("pool: create buffer %s: %w", label, err)
		}
		e.Buffer = buf
	default:
		return nil, fmt.Errorf("pool: invalid resource info for %s", label)
	}
	p.entries = append(p.entries, e)
	p.stats.Misses++
	p.stats.Entries++
	p.stats.Bytes += size
	return e, nil
}

// Extend moves an acquired entry's release point forward to at least c.
func (p *Pool) Extend(e *Entry, c Clock) {
	e.release = e.release.Join(c)
}

// Retain adds a caller reference without moving the release point.
func (p *Pool) Retain(e *Entry) {
	e.refs++
}

// Pin adds a reference and keeps the entry out of Acquire until Unpin,
// preserving its contents for an external owner.
func (p *Pool) Pin(e *Entry) {
	e.refs++
	e.pins++
}

// Unpin drops a reference taken by Pin.
func (p *Pool) Unpin(e *Entry) {
	if e.pins == 0 {
		panic("pool: Unpin of an entry that is not pinned")
	}
	e.pins--
	e.refs--
}

// Release drops a caller reference.
func (p *Pool) Release(e *Entry) {
	if e.refs <= 1 {
		panic("pool: Release of an entry with no caller reference")
	}
	e.refs--
}

// Cleanup clamps every release point to signaling, the values the queues
// will reach once submitted work finishes, then destroys entries only the
// pool references whose release point has already signaled.
func (p *Pool) Cleanup(signaled, signaling Clock) int {
	kept := p.entries[:0]
	destroyed := 0
	for _, e := range p.entries {
		e.release = e.release.Meet(signaling)
		if e.refs == 1 && e.release.LessEq(signaled) {
			p.destroy(e)
			destroyed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(p.entries); i++ {
		p.entries[i] = nil
	}
	p.entries = kept
	return destroyed
}

func (p *Pool) destroy(e *Entry) {
	if e.Image != nil {
		p.dev.DestroyImage(e.Image)
	}
	if e.Buffer != nil {
		p.dev.DestroyBuffer(e.Buffer)
	}
	p.stats.Destroyed++
	p.stats.Entries--
	p.stats.Bytes -= e.Info.SizeBytes()
}

// Stats returns a snapshot of the pool statistics.
func (p *Pool) Stats() Stats { return p.stats }

// Close destroys every entry regardless of references. The caller must
// have waited for the device to go idle.
func (p *Pool) Close() {
	if p.closed {
		return
	}
	for _, e := range p.entries {
		p.destroy(e)
	}
	p.entries = nil
	p.closed = true
}
