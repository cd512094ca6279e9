package batch

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/LdDl/cell-tracker-go/celltrack"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Job is one field of view. Open is called inside the worker, so sources and sinks of pending
// jobs are not held open while waiting. The returned close function may be nil.
type Job struct {
	FOV  string
	Open func() (celltrack.FrameSource, celltrack.LabelSink, func() error, error)
}

// StaticJob wraps an already opened source and sink
func StaticJob(fov string, src celltrack.FrameSource, dst celltrack.LabelSink) Job {
	return Job{
		FOV: fov,
		Open: func() (celltrack.FrameSource, celltrack.LabelSink, func() error, error) {
			return src, dst, nil, nil
		},
	}
}

// Outcome is the result of one job. Result may be non-nil together with Err (partial run).
type Outcome struct {
	FOV      string
	Result   *celltrack.Result
	Err      error
	Duration time.Duration
}

// Runner processes independent fields of view with a bounded number of workers.
// A failing FOV is reported in its Outcome and never stops the others.
type Runner struct {
	tracker *celltrack.Tracker
	workers int
	logger  *slog.Logger
	// OnDone is called from worker goroutines as soon as a job finishes, so it must be safe for concurrent use
	OnDone func(ctx context.Context, outcome Outcome) error
}

// NewRunner creates new instance of Runner. Non-positive workers falls back to 1
func NewRunner(tracker *celltrack.Tracker, workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		tracker: tracker,
		workers: workers,
		logger:  logger,
	}
}

// Run processes all jobs and returns their outcomes in job order.
// Cancelling ctx interrupts running jobs at their next frame boundary and skips jobs that did not start.
func (r *Runner) Run(ctx context.Context, jobs []Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i := range jobs {
		i := i
		g.Go(func() error {
			outcomes[i] = r.runJob(ctx, jobs[i])
			return nil
		})
	}
	g.Wait()
	r.logger.Info("batch finished", "jobs", len(jobs), "failed", len(Failed(outcomes)), "interrupted", len(Interrupted(outcomes)))
	return outcomes
}

func (r *Runner) runJob(ctx context.Context, job Job) (outcome Outcome) {
	outcome.FOV = job.FOV
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			outcome.Err = errors.Errorf("fov %q panicked: %v", job.FOV, rec)
		}
		outcome.Duration = time.Since(start)
		switch {
		case IsInterrupted(outcome):
			r.logger.Warn("fov interrupted", "fov", job.FOV, "error", outcome.Err)
		case outcome.Err != nil:
			r.logger.Error("fov failed", "fov", job.FOV, "error", outcome.Err)
		}
		if r.OnDone != nil {
			if err := r.OnDone(ctx, outcome); err != nil && outcome.Err == nil {
				outcome.Err = errors.Wrapf(err, "fov %q post-processing", job.FOV)
				r.logger.Error("fov post-processing failed", "fov", job.FOV, "error", err)
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		outcome.Err = errors.Wrapf(celltrack.ErrInterrupted, "fov %q not started", job.FOV)
		return outcome
	}
	if job.Open == nil {
		outcome.Err = errors.Errorf("fov %q has nothing to open", job.FOV)
		return outcome
	}
	src, dst, closeFn, err := job.Open()
	if err != nil {
		outcome.Err = errors.Wrapf(err, "Can't open fov %q", job.FOV)
		return outcome
	}
	outcome.Result, outcome.Err = r.tracker.WithFOV(job.FOV).Run(ctx, src, dst)
	if closeFn != nil {
		if err := closeFn(); err != nil && outcome.Err == nil {
			outcome.Err = errors.Wrapf(err, "Can't close fov %q", job.FOV)
		}
	}
	return outcome
}

// IsInterrupted reports whether outcome was stopped by cancellation rather than by a failure
func IsInterrupted(outcome Outcome) bool {
	return errors.Is(outcome.Err, celltrack.ErrInterrupted)
}

// Failed returns outcomes with errors other than interruption
func Failed(outcomes []Outcome) []Outcome {
	out := make([]Outcome, 0)
	for _, outcome := range outcomes {
		if outcome.Err != nil && !IsInterrupted(outcome) {
			out = append(out, outcome)
		}
	}
	return out
}

// Interrupted returns outcomes of jobs that were cancelled before they finished or started
func Interrupted(outcomes []Outcome) []Outcome {
	out := make([]Outcome, 0)
	for _, outcome := range outcomes {
		if IsInterrupted(outcome) {
			out = append(out, outcome)
		}
	}
	return out
}
