package store

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/LdDl/cell-tracker-go/celltrack"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// schema.sql creates tables for tracking runs, their track tables and evaluation reports.
//
//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned when a run ID is unknown
var ErrRunNotFound = errors.New("run not found")

// Store persists track tables of finished runs in SQLite
type Store struct {
	db *sql.DB
}

// RunInfo is a row of the runs table
type RunInfo struct {
	RunID           uuid.UUID
	FOV             string
	TotalFrames     int
	FramesProcessed int
	Tracks          int
	CreatedAt       time.Time
}

// Open opens (or creates) the database at path and applies the schema
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open database")
	}
	// SQLite has a single writer; batch workers queue on this connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Can't apply schema")
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveResult stores run metadata and its whole track table in one transaction.
// Saving the same run again replaces the previous rows.
func (s *Store) SaveResult(ctx context.Context, res *celltrack.Result) error {
	if res == nil {
		return errors.New("nil result")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "Can't begin transaction")
	}
	defer tx.Rollback()

	runID := res.RunID.String()
	if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE run_id = ?`, runID); err != nil {
		return errors.Wrap(err, "Can't clear previous tracks")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, fov, total_frames, frames_processed, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			fov = excluded.fov,
			total_frames = excluded.total_frames,
			frames_processed = excluded.frames_processed
	`, runID, res.FOV, res.TotalFrames, res.FramesProcessed, time.Now().UTC().UnixNano())
	if err != nil {
		return errors.Wrapf(err, "Can't store run %s", runID)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracks (run_id, track_id, first_frame, last_frame, state, good, parent_id, merged_into, frames, centroid_x, centroid_y, velocity_x, velocity_y, path_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "Can't prepare track insert")
	}
	defer stmt.Close()
	for _, track := range res.Tracks {
		_, err := stmt.ExecContext(ctx,
			runID, track.ID, track.FirstFrame, track.LastFrame, track.State.String(), track.Good,
			track.ParentID, track.MergedInto, track.Frames,
			track.LastCentroid.X, track.LastCentroid.Y, track.Velocity.X, track.Velocity.Y, track.PathLength,
		)
		if err != nil {
			return errors.Wrapf(err, "Can't store track %d", track.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "Can't commit run")
	}
	return nil
}

// LoadTracks returns track table of a run ordered by global ID
func (s *Store) LoadTracks(ctx context.Context, runID uuid.UUID) ([]celltrack.Track, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID.String()).Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, "Can't look up run")
	}
	if exists == 0 {
		return nil, errors.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, first_frame, last_frame, state, good, parent_id, merged_into, frames, centroid_x, centroid_y, velocity_x, velocity_y, path_length
		FROM tracks
		WHERE run_id = ?
		ORDER BY track_id
	`, runID.String())
	if err != nil {
		return nil, errors.Wrap(err, "Can't query tracks")
	}
	defer rows.Close()

	tracks := make([]celltrack.Track, 0)
	for rows.Next() {
		var track celltrack.Track
		var state string
		err := rows.Scan(
			&track.ID, &track.FirstFrame, &track.LastFrame, &state, &track.Good,
			&track.ParentID, &track.MergedInto, &track.Frames,
			&track.LastCentroid.X, &track.LastCentroid.Y, &track.Velocity.X, &track.Velocity.Y, &track.PathLength,
		)
		if err != nil {
			return nil, errors.Wrap(err, "Can't scan track")
		}
		track.State = celltrack.TrackActive
		if state == celltrack.TrackTerminated.String() {
			track.State = celltrack.TrackTerminated
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "Can't iterate tracks")
	}
	return tracks, nil
}

// Runs lists stored runs, newest first
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.fov, r.total_frames, r.frames_processed, r.created_at,
			(SELECT COUNT(*) FROM tracks t WHERE t.run_id = r.run_id)
		FROM runs r
		ORDER BY r.created_at DESC, r.run_id
	`)
	if err != nil {
		return nil, errors.Wrap(err, "Can't query runs")
	}
	defer rows.Close()

	runs := make([]RunInfo, 0)
	for rows.Next() {
		var info RunInfo
		var runID string
		var createdAt int64
		if err := rows.Scan(&runID, &info.FOV, &info.TotalFrames, &info.FramesProcessed, &createdAt, &info.Tracks); err != nil {
			return nil, errors.Wrap(err, "Can't scan run")
		}
		info.RunID, err = uuid.Parse(runID)
		if err != nil {
			return nil, errors.Wrapf(err, "Malformed run ID %q", runID)
		}
		info.CreatedAt = time.Unix(0, createdAt).UTC()
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "Can't iterate runs")
	}
	return runs, nil
}

// SaveEvaluation stores ground-truth comparison of a stored run
func (s *Store) SaveEvaluation(ctx context.Context, runID uuid.UUID, report celltrack.EvaluationReport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations (run_id, frames, truth_objects, true_positives, false_positives, false_negatives, id_switches, mota)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			frames = excluded.frames,
			truth_objects = excluded.truth_objects,
			true_positives = excluded.true_positives,
			false_positives = excluded.false_positives,
			false_negatives = excluded.false_negatives,
			id_switches = excluded.id_switches,
			mota = excluded.mota
	`, runID.String(), report.Frames, report.TruthObjects, report.TruePositives, report.FalsePositives,
		report.FalseNegatives, report.IDSwitches, report.MOTA())
	if err != nil {
		return errors.Wrapf(err, "Can't store evaluation of run %s", runID)
	}
	return nil
}

// LoadEvaluation returns stored evaluation of a run
func (s *Store) LoadEvaluation(ctx context.Context, runID uuid.UUID) (celltrack.EvaluationReport, error) {
	var report celltrack.EvaluationReport
	err := s.db.QueryRowContext(ctx, `
		SELECT frames, truth_objects, true_positives, false_positives, false_negatives, id_switches
		FROM evaluations
		WHERE run_id = ?
	`, runID.String()).Scan(&report.Frames, &report.TruthObjects, &report.TruePositives, &report.FalsePositives, &report.FalseNegatives, &report.IDSwitches)
	if errors.Is(err, sql.ErrNoRows) {
		return report, errors.Wrapf(ErrRunNotFound, "evaluation of run %s", runID)
	}
	if err != nil {
		return report, errors.Wrap(err, "Can't load evaluation")
	}
	return report, nil
}
