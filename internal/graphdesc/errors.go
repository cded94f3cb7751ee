package graphdesc

import "errors"

var (
	// ErrUnknownName is returned for a format, queue, usage, layout, access
	// or scope name that does not exist.
	ErrUnknownName = errors.New("graphdesc: unknown name")

	// ErrBadBlock is returned for a block whose attributes contradict each
	// other.
	ErrBadBlock = errors.New("graphdesc: invalid block")

	// ErrUndeclared is returned when a block refers to a resource or group
	// not declared above it.
	ErrUndeclared = errors.New("graphdesc: undeclared name")
)
