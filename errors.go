package framegraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/schedule"
)

// Validation errors. The first one a Builder hits becomes its sticky error.
var (
	// ErrDuplicateToken is returned when two uses in one stage carry the
	// same non-zero token.
	ErrDuplicateToken = errors.New("framegraph: duplicate use token in stage")

	// ErrOverlappingUse is returned when a stage uses one resource twice
	// with overlapping subresources.
	ErrOverlappingUse = errors.New("framegraph: overlapping uses of one resource in a stage")

	// ErrQueueTypeMismatch is returned when a usage category is not legal
	// on the stage's queue type.
	ErrQueueTypeMismatch = errors.New("framegraph: usage not supported on queue type")

	// ErrMissingAccess is returned when a use has no usage category or no
	// access flags.
	ErrMissingAccess = errors.New("framegraph: use has no access")

	// ErrInvalidAccess is returned when access or scope flags are not legal
	// for the usage category.
	ErrInvalidAccess = errors.New("framegraph: access not allowed for usage")

	// ErrKindMismatch is returned when a usage category does not apply to
	// the resource kind.
	ErrKindMismatch = errors.New("framegraph: usage not allowed for resource kind")

	// ErrAttachmentMismatch is returned when the attachments of a stage
	// differ in extent or sample count.
	ErrAttachmentMismatch = errors.New("framegraph: attachment extent or sample count mismatch")

	// ErrZeroCreateInfo is returned for resources declared with zero size
	// or an undefined format.
	ErrZeroCreateInfo = errors.New("framegraph: zero-valued creation info")

	// ErrDoubleExport is returned when a resource is exported twice.
	ErrDoubleExport = errors.New("framegraph: resource exported twice")

	// ErrWriteAfterExport is returned when a resource is written after
	// its export.
	ErrWriteAfterExport = errors.New("framegraph: write after export")

	// ErrReadOnlyWrite is returned when a read-only import is written.
	ErrReadOnlyWrite = errors.New("framegraph: write to read-only resource")

	// ErrIncompatibleImport is returned when an import description does not
	// match its physical resource, or names a released export.
	ErrIncompatibleImport = errors.New("framegraph: incompatible import")

	// ErrRangeOutOfBounds is returned when a subresource range exceeds the
	// declared mip or layer count.
	ErrRangeOutOfBounds = errors.New("framegraph: subresource range out of bounds")

	// ErrForeignHandle is returned when a handle from another compile is
	// passed to a Builder.
	ErrForeignHandle = errors.New("framegraph: handle from another compile")
)

// Resource and lifecycle errors.
var (
	// ErrCyclicDependency is wrapped by CycleError.
	ErrCyclicDependency = schedule.ErrCyclicDependency

	// ErrUnsupportedFormat is returned when the device cannot create an
	// image with the inferred creation info.
	ErrUnsupportedFormat = errors.New("framegraph: unsupported image format")

	// ErrOutOfMemory wraps device allocation failures.
	ErrOutOfMemory = gpucore.ErrOutOfMemory

	// ErrUnimplemented marks a path a backend does not implement. It is
	// reported as a warning diagnostic, not a failure.
	ErrUnimplemented = gpucore.ErrUnimplemented

	// ErrClosed is returned by calls on a closed Graph.
	ErrClosed = errors.New("framegraph: graph closed")

	// ErrNotCompiled is returned by Submit without a pending plan, and by
	// WriteDOT before the first successful compile.
	ErrNotCompiled = errors.New("framegraph: no compiled plan to submit")

	// ErrNoQueue is returned when the device has no queue for a stage's
	// queue type.
	ErrNoQueue = errors.New("framegraph: no queue for queue type")
)

// CycleError names the stages that could not be scheduled because their
// dependencies form a cycle.
type CycleError struct {
	Stages []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: stages %s", ErrCyclicDependency, strings.Join(e.Stages, ", "))
}

// Unwrap returns ErrCyclicDependency.
func (e *CycleError) Unwrap() error { return ErrCyclicDependency }

// AsCycleError returns the CycleError in err's chain, if any.
func AsCycleError(err error) (*CycleError, bool) {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
