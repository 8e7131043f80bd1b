package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("job not found")

// ErrInvalidTransition is returned when a status update would move a job
// backwards (statuses are forward-only).
var ErrInvalidTransition = errors.New("invalid job status transition")

// CreateJob inserts a new pending job for the given source URL.
func (s *Store) CreateJob(ctx context.Context, fileURL string) (*Job, error) {
	now := time.Now().UTC()
	ts := now.Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO Job (FileURL, Status, CreatedAt, UpdatedAt)
		VALUES (?, ?, ?, ?)`, fileURL, JobPending, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job id: %w", err)
	}
	return &Job{
		ID:        id,
		FileURL:   fileURL,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ID, FileURL, FileName, Status, ResultFileID, ErrorMessage, CreatedAt, UpdatedAt
		FROM Job WHERE ID = ?`, id)
	return scanJob(row)
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ID, FileURL, FileName, Status, ResultFileID, ErrorMessage, CreatedAt, UpdatedAt
		FROM Job ORDER BY CreatedAt DESC, ID DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// PendingJobIDs returns the ids of jobs still pending, oldest first. Used to
// requeue work left over from a previous process.
func (s *Store) PendingJobIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ID FROM Job WHERE Status = ? ORDER BY ID ASC`, JobPending)
	if err != nil {
		return nil, fmt.Errorf("query pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetJobFileName records the resolved source file name on the job.
func (s *Store) SetJobFileName(ctx context.Context, id int64, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE Job SET FileName = ?, UpdatedAt = ? WHERE ID = ?`,
		name, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("set job file name: %w", err)
	}
	return nil
}

// MarkJobProcessing moves a pending job to processing. Guarded by the
// current status so a terminal job can never regress.
func (s *Store) MarkJobProcessing(ctx context.Context, id int64) error {
	return s.transition(ctx, id, JobProcessing, nil, "", JobPending)
}

// MarkJobCompleted moves a processing job to completed. resultFileID is nil
// for rejected recordings (classification succeeded, no analytics produced).
func (s *Store) MarkJobCompleted(ctx context.Context, id int64, resultFileID *int64) error {
	return s.transition(ctx, id, JobCompleted, resultFileID, "", JobProcessing)
}

// MarkJobFailed moves a pending or processing job to failed with the
// captured error message.
func (s *Store) MarkJobFailed(ctx context.Context, id int64, errMsg string) error {
	if len(errMsg) > 2000 {
		errMsg = errMsg[:2000]
	}
	return s.transition(ctx, id, JobFailed, nil, errMsg, JobPending, JobProcessing)
}

func (s *Store) transition(ctx context.Context, id int64, to string, resultFileID *int64, errMsg string, from ...string) error {
	query := `UPDATE Job SET Status = ?, ErrorMessage = ?, UpdatedAt = ?`
	args := []any{to, errMsg, time.Now().UTC().Format(time.RFC3339Nano)}
	if resultFileID != nil {
		query += `, ResultFileID = ?`
		args = append(args, *resultFileID)
	}
	query += ` WHERE ID = ? AND Status IN (`
	args = append(args, id)
	for i, f := range from {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, f)
	}
	query += `)`

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing job from a forbidden transition.
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: job %d to %s", ErrInvalidTransition, id, to)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j            Job
		resultFileID sql.NullInt64
		createdAt    string
		updatedAt    string
	)
	if err := row.Scan(&j.ID, &j.FileURL, &j.FileName, &j.Status,
		&resultFileID, &j.ErrorMessage, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if resultFileID.Valid {
		j.ResultFileID = &resultFileID.Int64
	}
	var err error
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse job created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse job updated_at: %w", err)
	}
	return &j, nil
}
