package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gazelaundry/pkg/calibration"
	"gazelaundry/pkg/db"
)

// KeyLastCalibrationLabel holds the quality label of the latest session.
const KeyLastCalibrationLabel = "last_calibration_label"

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	CalibrationStore
	StateStore
	calibration.Recorder

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Calibration ---

func (s *SQLiteStore) SaveCalibration(ctx context.Context, o *calibration.Outcome) error {
	query := `INSERT OR REPLACE INTO calibration_runs
		(id, started_at, finished_at, points, resampled, completed, success, avg_error, rating, label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		o.RunID.String(), o.StartedAt.UTC(), o.FinishedAt.UTC(),
		o.Points, o.Resampled, o.Completed, o.Success,
		o.AverageError, o.Rating, o.Label,
	)
	if err != nil {
		return fmt.Errorf("save calibration %s: %w", o.RunID, err)
	}
	return nil
}

// RecordCalibration implements calibration.Recorder.
func (s *SQLiteStore) RecordCalibration(ctx context.Context, o calibration.Outcome) error {
	if err := s.SaveCalibration(ctx, &o); err != nil {
		return err
	}
	return s.SetState(ctx, KeyLastCalibrationLabel, o.Label)
}

// ListCalibrations returns up to limit runs, newest first. A limit of 0 or
// less returns all runs.
func (s *SQLiteStore) ListCalibrations(ctx context.Context, limit int) ([]calibration.Outcome, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, points, resampled, completed, success, avg_error, rating, label
		 FROM calibration_runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calibration.Outcome
	for rows.Next() {
		o, err := scanCalibration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// LatestCalibration returns the most recently finished run, or nil if
// there is none.
func (s *SQLiteStore) LatestCalibration(ctx context.Context) (*calibration.Outcome, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, points, resampled, completed, success, avg_error, rating, label
		 FROM calibration_runs ORDER BY finished_at DESC LIMIT 1`)
	o, err := scanCalibration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCalibration(sc scanner) (*calibration.Outcome, error) {
	var (
		o        calibration.Outcome
		id       string
		started  sql.NullTime
		finished sql.NullTime
		label    sql.NullString
	)
	err := sc.Scan(&id, &started, &finished, &o.Points, &o.Resampled, &o.Completed, &o.Success,
		&o.AverageError, &o.Rating, &label)
	if err != nil {
		return nil, err
	}
	if o.RunID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	if started.Valid {
		o.StartedAt = started.Time
	}
	if finished.Valid {
		o.FinishedAt = finished.Time
	}
	o.Label = label.String
	return &o, nil
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now().UTC())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}
