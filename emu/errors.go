package emu

import "errors"

// Sentinel errors returned by the register file, memory image and evaluator.
// Call sites wrap them with context; match with errors.Is.
var (
	// ErrUndefined reports a read of a register that was never written, or
	// a partial write that needs parent bits that do not exist yet.
	ErrUndefined = errors.New("undefined register")

	// ErrMemoryAccess reports an access to an unmapped address, a transfer
	// crossing a segment boundary, or an invalid mapping request.
	ErrMemoryAccess = errors.New("invalid memory access")

	// ErrInvalidWidth reports a transfer width outside {1,2,4,8} or an IL
	// node the evaluator cannot dispatch.
	ErrInvalidWidth = errors.New("invalid width")

	// ErrUnimplemented reports a declared but unimplemented operation.
	ErrUnimplemented = errors.New("unimplemented")

	// ErrUnresolvedCall reports a call target with no registered hook and
	// no resolvable instruction stream.
	ErrUnresolvedCall = errors.New("unresolved call target")
)

// errHalt signals a clean stream termination out of the evaluator. It never
// escapes Step.
var errHalt = errors.New("halt")
