// Package subres tracks image subresources as rectangles in mip x layer
// space, each axis stored as a 64-bit mask.
//
// An axis with more than 64 entries collapses to a single bit covering the
// whole axis, so such resources are tracked as one unit along that axis.
package subres

import (
	"math/bits"

	"github.com/gogpu/framegraph/gpucore"
)

// Space is the mip and layer extent of one resource.
type Space struct {
	Mips   uint32
	Layers uint32
}

// SpaceOf returns the space of a resource info. Unknown counts become 1.
func SpaceOf(info gpucore.ResourceInfo) Space {
	m, l := info.Extent()
	return Space{Mips: max(m, 1), Layers: max(l, 1)}
}

// Mask is a rectangle: every layer in Layers of every mip in Mips.
type Mask struct {
	Mips   uint64
	Layers uint64
}

func axisMask(base, count, total uint32) uint64 {
	if total > 64 {
		return 1
	}
	if count == 0 {
		if base >= total {
			return 0
		}
		count = total - base
	}
	end := min(base+count, total)
	if base >= end {
		return 0
	}
	n := end - base
	if n == 64 {
		return ^uint64(0)
	}
	return ((uint64(1) << n) - 1) << base
}

func axisFull(total uint32) uint64 {
	return axisMask(0, 0, total)
}

// Whole returns the mask covering every subresource.
func (s Space) Whole() Mask {
	return Mask{Mips: axisFull(s.Mips), Layers: axisFull(s.Layers)}
}

// Mask converts a range into a mask clipped to the space.
func (s Space) Mask(r gpucore.Range) Mask {
	return Mask{
		Mips:   axisMask(r.BaseMip, r.MipCount, s.Mips),
		Layers: axisMask(r.BaseLayer, r.LayerCount, s.Layers),
	}
}

// Ranges splits a mask into contiguous ranges, mips outer, layers inner.
func (s Space) Ranges(m Mask) []gpucore.Range {
	if m.Empty() {
		return nil
	}
	mipRuns := runs(m.Mips, s.Mips)
	layerRuns := runs(m.Layers, s.Layers)
	out := make([]gpucore.Range, 0, len(mipRuns)*len(layerRuns))
	for _, mr := range mipRuns {
		for _, lr := range layerRuns {
			out = append(out, gpucore.Range{
				BaseMip: mr[0], MipCount: mr[1],
				BaseLayer: lr[0], LayerCount: lr[1],
			})
		}
	}
	return out
}

// runs returns [base, count] pairs of consecutive set bits.
func runs(m uint64, total uint32) [][2]uint32 {
	if total > 64 {
		return [][2]uint32{{0, total}}
	}
	var out [][2]uint32
	for m != 0 {
		base := bits.TrailingZeros64(m)
		n := bits.TrailingZeros64(^(m >> base))
		out = append(out, [2]uint32{uint32(base), uint32(n)})
		if base+n >= 64 {
			break
		}
		m &^= ((uint64(1) << n) - 1) << base
	}
	return out
}

// Empty reports whether the mask selects nothing.
func (m Mask) Empty() bool { return m.Mips == 0 || m.Layers == 0 }

// Intersect returns the common rectangle of m and o.
func (m Mask) Intersect(o Mask) Mask {
	return Mask{Mips: m.Mips & o.Mips, Layers: m.Layers & o.Layers}
}

// Overlaps reports whether m and o share a subresource.
func (m Mask) Overlaps(o Mask) bool { return !m.Intersect(o).Empty() }

// Contains reports whether o lies entirely inside m.
func (m Mask) Contains(o Mask) bool {
	return o.Empty() || (o.Mips&^m.Mips == 0 && o.Layers&^m.Layers == 0)
}

// Subtract returns m with o removed as at most two disjoint rectangles:
// the mips of m outside o across all layers of m, and the shared mips
// restricted to the layers of m outside o.
func Subtract(m, o Mask) []Mask {
	if !m.Overlaps(o) {
		if m.Empty() {
			return nil
		}
		return []Mask{m}
	}
	var out []Mask
	if a := (Mask{Mips: m.Mips &^ o.Mips, Layers: m.Layers}); !a.Empty() {
		out = append(out, a)
	}
	if b := (Mask{Mips: m.Mips & o.Mips, Layers: m.Layers &^ o.Layers}); !b.Empty() {
		out = append(out, b)
	}
	return out
}

// Merge combines two rectangles when their union is itself a rectangle.
func Merge(a, b Mask) (Mask, bool) {
	switch {
	case a.Mips == b.Mips:
		return Mask{Mips: a.Mips, Layers: a.Layers | b.Layers}, true
	case a.Layers == b.Layers:
		return Mask{Mips: a.Mips | b.Mips, Layers: a.Layers}, true
	case a.Contains(b):
		return a, true
	case b.Contains(a):
		return b, true
	default:
		return Mask{}, false
	}
}

// Disjoint reports whether two ranges of one resource can be used by the
// same stage: they must differ in every mip or in every layer.
func Disjoint(a, b Mask) bool {
	return a.Mips&b.Mips == 0 || a.Layers&b.Layers == 0
}
