package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/LdDl/cell-tracker-go/celltrack"
	"github.com/LdDl/cell-tracker-go/internal/batch"
	"github.com/LdDl/cell-tracker-go/internal/config"
	"github.com/LdDl/cell-tracker-go/internal/store"
)

const (
	exitOK          = 0
	exitFailed      = 1
	exitUsage       = 2
	exitInterrupted = 130
)

var (
	configPath = flag.String("config", "", "Path to YAML config (falls back to $"+config.EnvConfigPath+")")
	outDir     = flag.String("out", "tracked", "Output root: labeled frames of every FOV go to <out>/<fov> (or <out>/<fov>.raw)")
	dbPath     = flag.String("db", "", "SQLite database for track tables (overrides config db_path)")
	workers    = flag.Int("workers", 0, "Number of FOVs processed in parallel (overrides config workers)")
	evalDir    = flag.String("eval", "", "Ground-truth root: labeled frames of every FOV are read from <eval>/<fov> (or <eval>/<fov>.raw)")
	rawShape   = flag.String("raw", "", "Treat inputs as raw stack files of given shape FRAMESxHEIGHTxWIDTH")
	rawDepth   = flag.Int("depth", 1, "Bytes per pixel of raw inputs: 1 (uint8) or 2 (little-endian uint16)")
	listRuns   = flag.Bool("runs", false, "List stored runs and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <fov> [<fov>...]\n\nEvery <fov> is a directory with one PNG mask per frame, or a raw stack file when -raw is set.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Can't load configuration: %v\n", err)
		return exitUsage
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *workers > 0 {
		cfg.Workers = workers
	}

	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      cfg.GetLogLevel(),
			TimeFormat: "15:04:05",
		}),
	)

	lay := layout{out: *outDir, eval: *evalDir, depth: *rawDepth}
	if *rawShape != "" {
		shape, err := parseShape(*rawShape)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Bad -raw: %v\n", err)
			return exitUsage
		}
		lay.raw = &shape
	}

	db, err := store.Open(cfg.GetDBPath())
	if err != nil {
		logger.Error("can't open database", "path", cfg.GetDBPath(), "error", err)
		return exitFailed
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listRuns {
		if err := printRuns(ctx, os.Stdout, db); err != nil {
			logger.Error("can't list runs", "error", err)
			return exitFailed
		}
		return exitOK
	}

	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		return exitUsage
	}

	trackerCfg := cfg.TrackerConfig(logger)
	trackerCfg.Progress = func(current, total int, message string) {
		logger.Debug(message, "frame", current, "frames", total)
	}
	runner := batch.NewRunner(celltrack.NewTracker(trackerCfg), cfg.GetWorkers(), logger)
	runner.OnDone = saveOutcome(db, logger, lay, cfg.GetMinIoU())

	jobs := make([]batch.Job, 0, len(inputs))
	for _, input := range inputs {
		jobs = append(jobs, lay.job(input))
	}
	logger.Info("tracking", "fovs", len(jobs), "workers", cfg.GetWorkers(), "db", cfg.GetDBPath())
	start := time.Now()
	outcomes := runner.Run(ctx, jobs)

	code := report(os.Stdout, os.Stderr, outcomes)
	switch code {
	case exitInterrupted:
		logger.Warn("interrupted", "interrupted", len(batch.Interrupted(outcomes)), "total", len(outcomes), "elapsed", time.Since(start))
	case exitFailed:
		logger.Error("some fields of view failed", "failed", len(batch.Failed(outcomes)), "total", len(outcomes), "elapsed", time.Since(start))
	default:
		logger.Info("done", "elapsed", time.Since(start))
	}
	return code
}

// saveOutcome stores every finished run and, when ground truth is configured, its evaluation
func saveOutcome(db *store.Store, logger *slog.Logger, lay layout, minIoU float64) func(context.Context, batch.Outcome) error {
	return func(ctx context.Context, outcome batch.Outcome) error {
		if outcome.Result == nil {
			return nil
		}
		// Partial results are kept too: their frames_processed tells how far the run got
		if err := db.SaveResult(context.WithoutCancel(ctx), outcome.Result); err != nil {
			return err
		}
		if lay.eval == "" || outcome.Err != nil {
			return nil
		}
		return evaluate(ctx, db, logger, lay, outcome.Result, minIoU)
	}
}

// report prints per-FOV summaries and returns the process exit code.
// Failures take precedence over interruptions.
func report(stdout, stderr io.Writer, outcomes []batch.Outcome) int {
	for _, outcome := range outcomes {
		if outcome.Result == nil || outcome.Err != nil {
			continue
		}
		summary := outcome.Result.Summary()
		fmt.Fprintf(stdout, "%s\trun=%s\tframes=%d/%d\ttracks=%d\tgood=%d\tambiguous=%d\tmean_lifetime=%.1f\tmean_path=%.1f\n",
			outcome.FOV, outcome.Result.RunID, outcome.Result.FramesProcessed, outcome.Result.TotalFrames,
			summary.Tracks, summary.Good, summary.Ambiguous, summary.MeanLifetime, summary.MeanPathLength)
	}

	interrupted := batch.Interrupted(outcomes)
	for _, outcome := range interrupted {
		processed, total := 0, 0
		if outcome.Result != nil {
			processed, total = outcome.Result.FramesProcessed, outcome.Result.TotalFrames
		}
		fmt.Fprintf(stderr, "INTERRUPTED %s: frames=%d/%d\n", outcome.FOV, processed, total)
	}
	failed := batch.Failed(outcomes)
	for _, outcome := range failed {
		fmt.Fprintf(stderr, "FAILED %s: %v\n", outcome.FOV, outcome.Err)
	}
	switch {
	case len(failed) > 0:
		return exitFailed
	case len(interrupted) > 0:
		return exitInterrupted
	default:
		return exitOK
	}
}

// evaluate compares labeled output of a finished run with its ground truth and stores the report
func evaluate(ctx context.Context, db *store.Store, logger *slog.Logger, lay layout, res *celltrack.Result, minIoU float64) error {
	truth, closeTruth, err := lay.openTruth(res.FOV)
	if err != nil {
		return err
	}
	defer closeTruth()
	predicted, closePredicted, err := lay.openOutput(res.FOV)
	if err != nil {
		return err
	}
	defer closePredicted()
	evaluation, err := celltrack.Evaluate(truth, predicted, minIoU)
	if err != nil {
		return err
	}
	logger.Info("evaluated", "fov", res.FOV, "mota", evaluation.MOTA(), "precision", evaluation.Precision(), "recall", evaluation.Recall(), "id_switches", evaluation.IDSwitches)
	return db.SaveEvaluation(context.WithoutCancel(ctx), res.RunID, evaluation)
}

func printRuns(ctx context.Context, w io.Writer, db *store.Store) error {
	runs, err := db.Runs(ctx)
	if err != nil {
		return err
	}
	for _, info := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\tframes=%d/%d\ttracks=%d\n",
			info.CreatedAt.Format(time.RFC3339), info.RunID, info.FOV, info.FramesProcessed, info.TotalFrames, info.Tracks)
	}
	return nil
}
