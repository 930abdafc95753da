package lutstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/ilut/internal/db"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/version"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunComplete  = "complete"
	RunPartial   = "partial"
	RunCancelled = "cancelled"
)

// Run is one invocation of the build orchestrator against the store.
type Run struct {
	RunID      string     `json:"run_id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Requested  int        `json:"requested"`
	Existing   int        `json:"existing"`
	Evaluated  int        `json:"evaluated"`
	Failed     int        `json:"failed"`
	Workers    int        `json:"workers"`
	Version    string     `json:"builder_version"`
}

// Failure is a sample that could not be produced during a run.
type Failure struct {
	Key        lut.SampleKey `json:"key"`
	Attempts   int           `json:"attempts"`
	Reason     string        `json:"reason"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// BeginRun records the start of a build. If run.RunID is empty a UUID is
// generated.
func (s *Store) BeginRun(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	run.Status = RunRunning
	if run.Version == "" {
		run.Version = version.Version
	}
	return db.RetryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO build_runs (run_id, status, started_at, requested, existing, workers, builder_version)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Status, run.StartedAt.UnixNano(), run.Requested, run.Existing, run.Workers, run.Version)
		if err != nil {
			return fmt.Errorf("begin run: %w", err)
		}
		return nil
	})
}

// FinishRun stores the final status and counters of run.
func (s *Store) FinishRun(ctx context.Context, run *Run) error {
	finished := s.now()
	run.FinishedAt = &finished
	return db.RetryOnBusy(func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE build_runs
			SET status = ?, finished_at = ?, evaluated = ?, failed = ?
			WHERE run_id = ?`,
			run.Status, finished.UnixNano(), run.Evaluated, run.Failed, run.RunID)
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("finish run: unknown run %s", run.RunID)
		}
		return nil
	})
}

// RecordFailure appends a failed sample to the run's failure log.
func (s *Store) RecordFailure(ctx context.Context, runID string, f Failure) error {
	if f.RecordedAt.IsZero() {
		f.RecordedAt = s.now()
	}
	args := append([]interface{}{runID}, keyArgs(f.Key)...)
	args = append(args, f.Attempts, f.Reason, f.RecordedAt.UnixNano())
	return db.RetryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO build_failures (
				run_id, band, solar_zenith, water_vapour, ozone, aot, altitude,
				attempts, reason, recorded_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return fmt.Errorf("record failure: %w", err)
		}
		return nil
	})
}

// Failures returns the failures logged for runID in insertion order.
func (s *Store) Failures(ctx context.Context, runID string) ([]Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT band, solar_zenith, water_vapour, ozone, aot, altitude, attempts, reason, recorded_at
		FROM build_failures WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var at int64
		p := &f.Key.Point
		if err := rows.Scan(&f.Key.Band, &p.SolarZenith, &p.WaterVapour, &p.Ozone, &p.AOT, &p.Altitude,
			&f.Attempts, &f.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.RecordedAt = time.Unix(0, at)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Runs lists every recorded run, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, status, started_at, finished_at, requested, existing, evaluated, failed, workers, builder_version
		FROM build_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.RunID, &r.Status, &started, &finished,
			&r.Requested, &r.Existing, &r.Evaluated, &r.Failed, &r.Workers, &r.Version); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			t := time.Unix(0, finished.Int64)
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
