package celltrack

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch is returned when frame or buffer dimensions disagree.
	// Tracker.Run reports source/sink mismatches before the first frame is processed.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrIDOverflow is returned when a new identity would not fit into the output label type.
	ErrIDOverflow = errors.New("cell ID space exhausted")
	// ErrInterrupted is returned when processing stopped at a frame boundary because the context was cancelled.
	// It is neither success nor failure: the partial output written so far is consistent.
	ErrInterrupted = errors.New("interrupted")
)
