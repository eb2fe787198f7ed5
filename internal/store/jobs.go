package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/datallboy/hlsget/internal/app"
	"github.com/datallboy/hlsget/internal/domain"
)

var _ app.Store = (*PersistentStore)(nil)

const jobColumns = `id, manifest_url, output_name, output_path, status, total_segments,
	completed_segments, failed_segments, bytes, failed, error, created_at, started_at, ended_at`

// SaveJob inserts the job or overwrites the stored copy.
func (s *PersistentStore) SaveJob(ctx context.Context, job *domain.Job) error {
	var row jobDBO
	if err := row.FromDomain(job); err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	query := `INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			output_path = excluded.output_path,
			status = excluded.status,
			total_segments = excluded.total_segments,
			completed_segments = excluded.completed_segments,
			failed_segments = excluded.failed_segments,
			bytes = excluded.bytes,
			failed = excluded.failed,
			error = excluded.error,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		row.ID,
		row.ManifestURL,
		row.OutputName,
		row.OutputPath,
		row.Status,
		row.TotalSegments,
		row.CompletedSegments,
		row.FailedSegments,
		row.Bytes,
		row.Failed,
		row.Error,
		row.CreatedAt,
		row.StartedAt,
		row.EndedAt,
	)
	return err
}

func (s *PersistentStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? LIMIT 1`

	job, err := scanJob(s.db.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns the newest jobs first. A limit <= 0 returns everything.
func (s *PersistentStore) ListJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	// KSUIDs sort chronologically
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// MarkInterrupted fails every job a previous process left unfinished.
func (s *PersistentStore) MarkInterrupted(ctx context.Context) (int64, error) {
	query := `UPDATE jobs SET status = ?, error = ?, ended_at = ?
		WHERE status IN (?, ?, ?)`

	res, err := s.db.ExecContext(ctx, s.rebind(query),
		string(domain.StatusFailed),
		"interrupted by shutdown",
		time.Now().Unix(),
		string(domain.StatusPending),
		string(domain.StatusDownloading),
		string(domain.StatusMuxing),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*domain.Job, error) {
	var row jobDBO
	err := r.Scan(
		&row.ID,
		&row.ManifestURL,
		&row.OutputName,
		&row.OutputPath,
		&row.Status,
		&row.TotalSegments,
		&row.CompletedSegments,
		&row.FailedSegments,
		&row.Bytes,
		&row.Failed,
		&row.Error,
		&row.CreatedAt,
		&row.StartedAt,
		&row.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return row.ToDomain(), nil
}
