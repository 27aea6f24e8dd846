package common

import "github.com/pkg/errors"

// Error taxonomy for the molding pipeline. All transforms are pure and
// deterministic, so none of these are retried; only ErrFatalResource
// concerns a non-deterministic external resource, and it must always
// propagate to the caller.
var (
	// ErrInvalidInput covers wrong channel counts, non-positive
	// dimensions, and mistyped or non-contiguous buffers.
	ErrInvalidInput = errors.New("invalid input")

	// ErrShapeMismatch covers batch images of differing molded size and
	// tensor rank/shape violations.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrOutOfRange covers rasterization targets that cannot be satisfied
	// without writing outside the canvas.
	ErrOutOfRange = errors.New("out of range")

	// ErrFatalResource covers accelerator session and transfer failures.
	ErrFatalResource = errors.New("fatal resource failure")
)
