package pool

import (
	"fmt"
	"sort"

	"github.com/gogpu/framegraph/gpucore"
)

// DefaultEvictAfter is the number of consecutive compiles a pass may go
// unused before it is destroyed.
const DefaultEvictAfter = 3

type passEntry struct {
	pass   gpucore.BlitPass
	unused int
	used   bool
}

// Passes caches auxiliary blit passes by configuration.
type Passes struct {
	dev        gpucore.Device
	evictAfter int
	passes     map[gpucore.BlitConfig]*passEntry
}

// NewPasses creates a pass pool. evictAfter <= 0 selects DefaultEvictAfter.
func NewPasses(dev gpucore.Device, evictAfter int) *Passes {
	if evictAfter <= 0 {
		evictAfter = DefaultEvictAfter
	}
	return &Passes{
		dev:        dev,
		evictAfter: evictAfter,
		passes:     make(map[gpucore.BlitConfig]*passEntry),
	}
}

// Get returns the pass for cfg, creating it on first use, and marks it
// used by the current compile.
func (p *Passes) Get(cfg gpucore.BlitConfig) (gpucore.BlitPass, error) {
	if e, ok := p.passes[cfg]; ok {
		e.used = true
		return e.pass, nil
	}
	pass, err := p.dev.CreateBlitPass(cfg)
	if err != nil {
		return nil, fmt.Errorf("pool: create blit pass: %w", err)
	}
	p.passes[cfg] = &passEntry{pass: pass, used: true}
	return pass, nil
}

// EndCompile ages passes the finished compile did not use and destroys
// those unused for more than the eviction threshold. It returns the number
// of passes destroyed.
func (p *Passes) EndCompile() int {
	keys := make([]gpucore.BlitConfig, 0, len(p.passes))
	for k := range p.passes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessConfig(keys[i], keys[j]) })

	evicted := 0
	for _, k := range keys {
		e := p.passes[k]
		if e.used {
			e.used = false
			e.unused = 0
			continue
		}
		e.unused++
		if e.unused > p.evictAfter {
			e.pass.Destroy()
			delete(p.passes, k)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of cached passes.
func (p *Passes) Len() int { return len(p.passes) }

// Close destroys every cached pass.
func (p *Passes) Close() {
	for k, e := range p.passes {
		e.pass.Destroy()
		delete(p.passes, k)
	}
}

func lessConfig(a, b gpucore.BlitConfig) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.SrcFormat != b.SrcFormat {
		return a.SrcFormat < b.SrcFormat
	}
	if a.DstFormat != b.DstFormat {
		return a.DstFormat < b.DstFormat
	}
	if a.Filter != b.Filter {
		return a.Filter < b.Filter
	}
	return !a.Resolve && b.Resolve
}
