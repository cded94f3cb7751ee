package native

import "errors"

// Native backend errors.
var (
	// ErrNoAdapter is returned when the hal backend exposes no adapter.
	ErrNoAdapter = errors.New("native: no GPU adapter available")

	// ErrBackendNotRegistered is returned when the requested hal backend
	// was not compiled in.
	ErrBackendNotRegistered = errors.New("native: hal backend not registered")

	// ErrNotHAL is returned by NewFromProvider when the provider's device or
	// queue is not a hal object.
	ErrNotHAL = errors.New("native: provider does not expose hal device and queue")

	// ErrForeignObject is returned for objects created by another device.
	ErrForeignObject = errors.New("native: object belongs to another device")

	// ErrNeverSignaled is returned when a wait targets a fence value no
	// submission has signaled yet.
	ErrNeverSignaled = errors.New("native: wait on a value that is never signaled")

	// ErrEncoderState is returned for commands issued in the wrong pass.
	ErrEncoderState = errors.New("native: command not valid in current encoder state")

	// ErrNoPipeline is returned by Dispatch and Draw without a bound pipeline.
	ErrNoPipeline = errors.New("native: no pipeline bound")
)
