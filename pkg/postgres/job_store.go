package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/irdatalab/mojavez-harvester/pkg/checkpoint"
)

// JobStore persists jobs in the harvest_jobs table.
type JobStore struct {
	db *sqlx.DB
}

// NewJobStore creates a job store.
func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a new job row.
func (s *JobStore) Create(ctx context.Context, job *checkpoint.Job) error {
	query := `
		INSERT INTO harvest_jobs (
			id, name, start_date, end_date,
			province_id, province_name, township_id, township_name,
			status, total_records, fetched_records, current_page, total_pages,
			error_message, detail_status, detail_total, detail_processed, detail_errors,
			created_at, started_at, completed_at, updated_at
		) VALUES (
			:id, :name, :start_date, :end_date,
			:province_id, :province_name, :township_id, :township_name,
			:status, :total_records, :fetched_records, :current_page, :total_pages,
			:error_message, :detail_status, :detail_total, :detail_processed, :detail_errors,
			:created_at, :started_at, :completed_at, :updated_at
		)
	`
	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// Get loads a job by id.
func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*checkpoint.Job, error) {
	var job checkpoint.Job
	query := `
		SELECT id, name, start_date, end_date,
		       province_id, province_name, township_id, township_name,
		       status, total_records, fetched_records, current_page, total_pages,
		       error_message, detail_status, detail_total, detail_processed, detail_errors,
		       created_at, started_at, completed_at, updated_at
		FROM harvest_jobs
		WHERE id = $1
	`
	if err := s.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("loading job: %w", err)
	}
	return &job, nil
}

// Update writes the job's mutable fields back.
func (s *JobStore) Update(ctx context.Context, job *checkpoint.Job) error {
	job.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE harvest_jobs SET
			name = :name,
			province_name = :province_name,
			township_name = :township_name,
			status = :status,
			total_records = :total_records,
			fetched_records = :fetched_records,
			current_page = :current_page,
			total_pages = :total_pages,
			error_message = :error_message,
			detail_status = :detail_status,
			detail_total = :detail_total,
			detail_processed = :detail_processed,
			detail_errors = :detail_errors,
			started_at = :started_at,
			completed_at = :completed_at,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := s.db.NamedExecContext(ctx, query, job)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return checkpoint.ErrNotFound
	}
	return nil
}

// Status reads only the job's status column.
func (s *JobStore) Status(ctx context.Context, id uuid.UUID) (checkpoint.Status, error) {
	var status checkpoint.Status
	err := s.db.GetContext(ctx, &status, `SELECT status FROM harvest_jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", checkpoint.ErrNotFound
		}
		return "", fmt.Errorf("reading job status: %w", err)
	}
	return status, nil
}
