package gpucore

import (
	"math/bits"
	"slices"
	"strconv"
	"strings"
)

// QueueType identifies the kind of hardware queue a stage runs on.
type QueueType uint8

// Queue types. The values double as scheduler bucket indices.
const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer
	QueuePresent

	// QueueTypeCount is the number of queue types.
	QueueTypeCount = 4
)

// String returns the queue type name.
func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	case QueuePresent:
		return "present"
	default:
		return "queue(" + itoa(uint64(q)) + ")"
	}
}

// ParseQueueType converts a queue type name back into a QueueType.
func ParseQueueType(s string) (QueueType, bool) {
	for q := QueueType(0); q < QueueTypeCount; q++ {
		if q.String() == s {
			return q, true
		}
	}
	return 0, false
}

// QueueMask is a set of queue types.
type QueueMask uint8

// Has reports whether q is in the set.
func (m QueueMask) Has(q QueueType) bool { return m&(1<<q) != 0 }

// QueueMaskOf builds a mask from queue types.
func QueueMaskOf(qs ...QueueType) QueueMask {
	var m QueueMask
	for _, q := range qs {
		m |= 1 << q
	}
	return m
}

// QueueIgnored marks a barrier that does not transfer queue ownership, or
// an import/export state with no owning queue.
const QueueIgnored = -1

// Access is a bitmask of memory access kinds.
type Access uint32

// Access flags.
const (
	AccessIndirectRead Access = 1 << iota
	AccessIndexRead
	AccessVertexRead
	AccessUniformRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorRead
	AccessColorWrite
	AccessDepthRead
	AccessDepthWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessPresent

	// AccessNone is the empty mask.
	AccessNone Access = 0
)

// AccessWriteMask holds every access flag that modifies memory.
const AccessWriteMask = AccessShaderWrite | AccessColorWrite | AccessDepthWrite |
	AccessTransferWrite | AccessHostWrite

// AccessReadMask holds every access flag that only reads memory.
const AccessReadMask = AccessIndirectRead | AccessIndexRead | AccessVertexRead |
	AccessUniformRead | AccessShaderRead | AccessColorRead | AccessDepthRead |
	AccessTransferRead | AccessHostRead | AccessPresent

// Writes reports whether a contains any write flag.
func (a Access) Writes() bool { return a&AccessWriteMask != 0 }

// Reads reports whether a contains any read flag.
func (a Access) Reads() bool { return a&AccessReadMask != 0 }

// Contains reports whether every flag of b is in a.
func (a Access) Contains(b Access) bool { return a&b == b }

var accessNames = []string{
	"indirect-read", "index-read", "vertex-read", "uniform-read",
	"shader-read", "shader-write", "color-read", "color-write",
	"depth-read", "depth-write", "transfer-read", "transfer-write",
	"host-read", "host-write", "present",
}

// String returns the flags joined with '|'.
func (a Access) String() string {
	return maskString(uint64(a), accessNames)
}

// ParseAccess converts a '|'-joined flag list back into an Access.
func ParseAccess(s string) (Access, bool) {
	m, ok := parseMask(s, accessNames)
	return Access(m), ok
}

// Scope is a bitmask of pipeline stages an access happens in.
type Scope uint32

// Scope flags.
const (
	ScopeDrawIndirect Scope = 1 << iota
	ScopeVertexInput
	ScopeVertexShader
	ScopeFragmentShader
	ScopeEarlyFragmentTests
	ScopeLateFragmentTests
	ScopeColorOutput
	ScopeComputeShader
	ScopeTransfer
	ScopeHost
	ScopePresent

	// ScopeNone is the empty mask.
	ScopeNone Scope = 0
)

// ScopeAllGraphics covers every graphics pipeline stage.
const ScopeAllGraphics = ScopeDrawIndirect | ScopeVertexInput | ScopeVertexShader |
	ScopeFragmentShader | ScopeEarlyFragmentTests | ScopeLateFragmentTests | ScopeColorOutput

// ScopeAll covers every stage.
const ScopeAll = ScopeAllGraphics | ScopeComputeShader | ScopeTransfer | ScopeHost | ScopePresent

// Contains reports whether every flag of b is in s.
func (s Scope) Contains(b Scope) bool { return s&b == b }

var scopeNames = []string{
	"draw-indirect", "vertex-input", "vertex-shader", "fragment-shader",
	"early-fragment-tests", "late-fragment-tests", "color-output",
	"compute-shader", "transfer", "host", "present",
}

// String returns the flags joined with '|'.
func (s Scope) String() string {
	return maskString(uint64(s), scopeNames)
}

// ParseScope converts a '|'-joined flag list back into a Scope.
func ParseScope(s string) (Scope, bool) {
	m, ok := parseMask(s, scopeNames)
	return Scope(m), ok
}

// Layout is the memory layout an image is kept in while it is used.
// Buffers always use LayoutUndefined.
type Layout uint8

// Image layouts.
const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

var layoutNames = [...]string{
	"undefined", "general", "color-attachment", "depth-stencil-attachment",
	"depth-stencil-read-only", "shader-read-only", "transfer-src",
	"transfer-dst", "present",
}

// String returns the layout name.
func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return "layout(" + itoa(uint64(l)) + ")"
}

// ParseLayout converts a layout name back into a Layout.
func ParseLayout(s string) (Layout, bool) {
	for i, n := range layoutNames {
		if n == s {
			return Layout(i), true
		}
	}
	return 0, false
}

// IsAttachment reports whether the layout is a render-pass attachment layout.
func (l Layout) IsAttachment() bool {
	return l == LayoutColorAttachment || l == LayoutDepthStencilAttachment ||
		l == LayoutDepthStencilReadOnly
}

// Range selects mip levels and array layers of an image. A zero count
// means "all remaining", so the zero Range covers the whole resource.
// Buffers ignore Range.
type Range struct {
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// WholeRange covers every subresource.
var WholeRange = Range{}

// MipEnd returns one past the last mip, or 0 when the range is open-ended.
func (r Range) MipEnd() uint32 {
	if r.MipCount == 0 {
		return 0
	}
	return r.BaseMip + r.MipCount
}

// LayerEnd returns one past the last layer, or 0 when the range is open-ended.
func (r Range) LayerEnd() uint32 {
	if r.LayerCount == 0 {
		return 0
	}
	return r.BaseLayer + r.LayerCount
}

// Overlaps reports whether two ranges share at least one subresource.
func (r Range) Overlaps(o Range) bool {
	return spanOverlaps(r.BaseMip, r.MipEnd(), o.BaseMip, o.MipEnd()) &&
		spanOverlaps(r.BaseLayer, r.LayerEnd(), o.BaseLayer, o.LayerEnd())
}

// Covers reports whether r spans all mips and layers of a resource with
// the given counts. A zero count means the extent is not known yet, and
// only an open-ended range covers it.
func (r Range) Covers(mips, layers uint32) bool {
	return r.BaseMip == 0 && r.BaseLayer == 0 &&
		covers(r.MipCount, mips) && covers(r.LayerCount, layers)
}

// Resolve returns r with open-ended counts replaced by the remaining
// extent of a resource with the given counts.
func (r Range) Resolve(mips, layers uint32) Range {
	if r.MipCount == 0 && mips > r.BaseMip {
		r.MipCount = mips - r.BaseMip
	}
	if r.LayerCount == 0 && layers > r.BaseLayer {
		r.LayerCount = layers - r.BaseLayer
	}
	return r
}

func covers(count, total uint32) bool {
	if count == 0 {
		return true
	}
	return total != 0 && count >= total
}

// spanOverlaps treats end == 0 as unbounded.
func spanOverlaps(aBase, aEnd, bBase, bEnd uint32) bool {
	if aEnd != 0 && aEnd <= bBase {
		return false
	}
	if bEnd != 0 && bEnd <= aBase {
		return false
	}
	return true
}

func maskString(m uint64, names []string) string {
	if m == 0 {
		return "none"
	}
	var sb strings.Builder
	for m != 0 {
		i := bits.TrailingZeros64(m)
		m &^= 1 << i
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		if i < len(names) {
			sb.WriteString(names[i])
		} else {
			sb.WriteString("bit" + itoa(uint64(i)))
		}
	}
	return sb.String()
}

// parseMask splits a '|'-joined list of names into a bitmask. "none" and
// the empty string yield zero.
func parseMask(s string, names []string) (uint64, bool) {
	if s == "" || s == "none" {
		return 0, true
	}
	var m uint64
	for _, part := range strings.Split(s, "|") {
		i := slices.Index(names, strings.TrimSpace(part))
		if i < 0 {
			return 0, false
		}
		m |= 1 << i
	}
	return m, true
}

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }
