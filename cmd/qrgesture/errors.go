package main

import "fmt"

// ClassifyError reports a payload that could not be turned into an Action.
// The detection state treats it as "no detection this frame".
type ClassifyError struct {
	Payload string
	Reason  string
}

func (e *ClassifyError) Error() string {
	return fmt.Sprintf("classify payload (%d bytes): %s", len(e.Payload), e.Reason)
}

// HandlerFailure wraps an error (or recovered panic) from an action handler.
// The dispatcher converts it into a failure StatusMessage; it never escapes.
type HandlerFailure struct {
	Kind ActionKind
	Err  error
}

func (e *HandlerFailure) Error() string {
	return fmt.Sprintf("%s handler: %v", e.Kind, e.Err)
}

func (e *HandlerFailure) Unwrap() error { return e.Err }

// DeviceError is a capture-side failure (device missing, feed closed or stalled).
// It is the only error class that terminates the frame loop.
type DeviceError struct {
	Device string
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture device %s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// errUnsupportedPlatform is returned by executors on operating systems
// without a known command for the requested operation.
type errUnsupportedPlatform struct {
	goos string
	op   string
}

func (e errUnsupportedPlatform) Error() string {
	return fmt.Sprintf("%s is not supported on %s", e.op, e.goos)
}
