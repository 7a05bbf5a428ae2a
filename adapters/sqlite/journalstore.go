package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ssciwr/afwizard/ports"
)

// JournalStore implements ports.Journal using SQLite.
type JournalStore struct {
	db *DB
}

// NewJournalStore creates a new journal store.
func NewJournalStore(db *DB) *JournalStore {
	return &JournalStore{db: db}
}

// RecordRun stores a new run with its segment bindings.
func (s *JournalStore) RecordRun(ctx context.Context, run ports.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, dataset, output, status, message, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Dataset, run.Output, run.Status, run.Message,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}

	for i, seg := range run.Segments {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_segments (run_id, position, class, pipeline_hash, pipeline_title)
			 VALUES (?, ?, ?, ?, ?)`,
			run.ID, i, seg.Class, seg.PipelineHash, seg.PipelineTitle,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert run segment: %w", err)
		}
	}

	return tx.Commit()
}

// FinishRun closes a run with its final status and optional message.
func (s *JournalStore) FinishRun(ctx context.Context, id, status, message string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, message = ?, finished_at = ? WHERE id = ?`,
		status, message, at.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not recorded", id)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *JournalStore) Runs(ctx context.Context, limit int) ([]ports.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset, output, status, message, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []ports.Run
	for rows.Next() {
		var run ports.Run
		var startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&run.ID, &run.Dataset, &run.Output, &run.Status, &run.Message, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finishedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at: %w", err)
			}
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		segments, err := s.segments(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Segments = segments
	}
	return runs, nil
}

func (s *JournalStore) segments(ctx context.Context, runID string) ([]ports.RunSegment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT class, pipeline_hash, pipeline_title
		 FROM run_segments WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run segments: %w", err)
	}
	defer rows.Close()

	var segments []ports.RunSegment
	for rows.Next() {
		var seg ports.RunSegment
		if err := rows.Scan(&seg.Class, &seg.PipelineHash, &seg.PipelineTitle); err != nil {
			return nil, fmt.Errorf("scan run segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// Ensure interface compliance.
var _ ports.Journal = (*JournalStore)(nil)
