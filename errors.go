package repaint

import "errors"

// Package-level sentinel errors. Callers test with errors.Is; most are
// wrapped with per-site context before returning.
var (
	// ErrFormatUnsupported is returned when a buffer's pixel format is
	// unknown to the registry or rejected by the backend. The surface
	// keeps its previous buffer.
	ErrFormatUnsupported = errors.New("repaint: pixel format not supported")

	// ErrBufferDestroyed is returned when attaching a buffer whose
	// destroy signal has already fired.
	ErrBufferDestroyed = errors.New("repaint: buffer already destroyed")

	// ErrMakeCurrent is returned when the output's GPU context could
	// not be bound. The frame is skipped; the renderer stays usable.
	ErrMakeCurrent = errors.New("repaint: make-current failed")

	// ErrColorTransform is returned when a color transform cannot be
	// materialized into shader resources.
	ErrColorTransform = errors.New("repaint: color transform not materializable")

	// ErrAcquireFence is returned when waiting on a surface's acquire
	// fence fails. The surface is treated as bufferless for the frame.
	ErrAcquireFence = errors.New("repaint: acquire fence wait failed")

	// ErrCaptureSize is returned when a capture destination does not
	// match the source rectangle.
	ErrCaptureSize = errors.New("repaint: capture destination size mismatch")

	// ErrCaptureStride is returned when a capture destination stride is
	// not a multiple of four bytes.
	ErrCaptureStride = errors.New("repaint: capture destination stride not a multiple of 4")
)
