package celltrack

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ProgressFunc is an observational callback: it never influences tracking decisions.
// It is called synchronously, so it must return quickly.
type ProgressFunc func(current, total int, message string)

// Config configures a per field-of-view tracking run
type Config struct {
	// FOV names the field of view in logs and results
	FOV      string
	Label    LabelOptions
	Resolver ResolverConfig
	// ProgressEvery throttles Progress to every N frames (the last frame is always reported). Default 10
	ProgressEvery int
	Progress      ProgressFunc
	// Logger defaults to a discarding logger
	Logger *slog.Logger
}

// Result is the track table of one run handed over to downstream consumers
type Result struct {
	RunID           uuid.UUID
	FOV             string
	TotalFrames     int
	FramesProcessed int
	// Tracks ordered by global ID
	Tracks []Track
}

// Good returns tracks whose identity was never ambiguous
func (res *Result) Good() []Track {
	out := make([]Track, 0, len(res.Tracks))
	for _, track := range res.Tracks {
		if track.Good {
			out = append(out, track)
		}
	}
	return out
}

// Ambiguous returns tracks that took part in a split or a merge
func (res *Result) Ambiguous() []Track {
	out := make([]Track, 0)
	for _, track := range res.Tracks {
		if !track.Good {
			out = append(out, track)
		}
	}
	return out
}

// Summary aggregates the track table
func (res *Result) Summary() Summary {
	return Summarize(res.Tracks)
}

// Tracker runs the labeler -> overlap -> resolver -> relabeler pipeline over one field of view.
// A Tracker holds no state between runs, so a single instance may serve several goroutines.
type Tracker struct {
	cfg    Config
	logger *slog.Logger
}

// NewTracker creates new instance of Tracker
func NewTracker(cfg Config) *Tracker {
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tracker{
		cfg:    cfg,
		logger: logger,
	}
}

// WithFOV returns a copy of the tracker reporting under another field of view name
func (tr *Tracker) WithFOV(fov string) *Tracker {
	cfg := tr.cfg
	cfg.FOV = fov
	return &Tracker{
		cfg:    cfg,
		logger: tr.logger,
	}
}

// Run tracks every frame of src and writes the global-ID rasters into dst, one frame at a time.
//
// Shape problems are reported before the first frame. Cancellation of ctx is checked at frame
// boundaries only: the returned error then matches ErrInterrupted, every frame before the
// reported one is fully written and nothing of later frames is. On ID overflow the frames
// before the failing one stay written. The partial Result is returned alongside any error
// raised once processing started.
func (tr *Tracker) Run(ctx context.Context, src FrameSource, dst LabelSink) (*Result, error) {
	if err := checkShapes(src, dst); err != nil {
		return nil, errors.Wrapf(err, "fov %q", tr.cfg.FOV)
	}
	frames, height, width := src.Shape()

	result := &Result{
		RunID:       uuid.New(),
		FOV:         tr.cfg.FOV,
		TotalFrames: frames,
	}
	logger := tr.logger.With("fov", tr.cfg.FOV, "run_id", result.RunID.String())
	logger.Info("tracking started", "frames", frames, "height", height, "width", width, "connectivity", tr.cfg.Label.Connectivity.String())

	resolver := NewResolver(tr.cfg.Resolver)
	buf := make([]uint16, height*width)
	var prev *FrameBlobs
	for t := 0; t < frames; t++ {
		select {
		case <-ctx.Done():
			result.Tracks = resolver.Tracks()
			logger.Warn("tracking interrupted", "frame", t, "cause", context.Cause(ctx))
			return result, errors.Wrapf(ErrInterrupted, "fov %q stopped before frame %d", tr.cfg.FOV, t)
		default:
		}

		frame, err := src.Frame(t)
		if err != nil {
			result.Tracks = resolver.Tracks()
			return result, errors.Wrapf(err, "Can't read frame %d", t)
		}
		if frame.Height != height || frame.Width != width || len(frame.Pix) != height*width {
			result.Tracks = resolver.Tracks()
			return result, errors.Wrapf(ErrShapeMismatch, "frame %d is %dx%d, stack is %dx%d", t, frame.Height, frame.Width, height, width)
		}

		blobs := Label(frame, tr.cfg.Label)
		blobs.Index = t
		var ov *Overlaps
		if prev != nil {
			ov, err = ComputeOverlaps(prev, &blobs)
			if err != nil {
				result.Tracks = resolver.Tracks()
				return result, err
			}
		}
		ids, err := resolver.Step(&blobs, ov)
		if err != nil {
			result.Tracks = resolver.Tracks()
			logger.Error("tracking failed", "frame", t, "error", err)
			return result, err
		}
		if err := Relabel(&blobs, ids, buf); err != nil {
			result.Tracks = resolver.Tracks()
			return result, err
		}
		if err := dst.WriteFrame(t, buf); err != nil {
			result.Tracks = resolver.Tracks()
			return result, errors.Wrapf(err, "Can't write frame %d", t)
		}
		result.FramesProcessed = t + 1
		prev = &blobs

		logger.Debug("frame resolved", "frame", t, "blobs", blobs.Len(), "terminated", len(resolver.Terminated()), "next_id", resolver.NextID())
		if tr.cfg.Progress != nil && ((t+1)%tr.cfg.ProgressEvery == 0 || t == frames-1) {
			tr.cfg.Progress(t+1, frames, "tracking "+tr.cfg.FOV)
		}
	}

	result.Tracks = resolver.Tracks()
	summary := result.Summary()
	logger.Info("tracking finished", "tracks", summary.Tracks, "good", summary.Good, "ambiguous", summary.Ambiguous)
	return result, nil
}

// checkShapes validates source and sink before any frame is touched
func checkShapes(src FrameSource, dst LabelSink) error {
	if src == nil || dst == nil {
		return errors.New("frame source and label sink are required")
	}
	frames, height, width := src.Shape()
	if frames < 0 || height < 0 || width < 0 {
		return errors.Wrapf(ErrShapeMismatch, "invalid source shape %dx%dx%d", frames, height, width)
	}
	dstFrames, dstHeight, dstWidth := dst.Shape()
	if frames != dstFrames || height != dstHeight || width != dstWidth {
		return errors.Wrapf(ErrShapeMismatch, "source is %dx%dx%d, output is %dx%dx%d", frames, height, width, dstFrames, dstHeight, dstWidth)
	}
	if validator, ok := src.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}
