package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// RecordStore persists harvested list records in the harvest_records table.
type RecordStore struct {
	db *sqlx.DB
}

// NewRecordStore creates a record store.
func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db}
}

// recordRow flattens a record for scanning; the nested status is three
// nullable columns.
type recordRow struct {
	RequestNumber     string         `db:"request_number"`
	ApplicantName     string         `db:"applicant_name"`
	UserImage         string         `db:"user_image"`
	LicenseTitle      string         `db:"license_title"`
	OrganizationTitle string         `db:"organization_title"`
	ProvinceTitle     string         `db:"province_title"`
	TownshipTitle     string         `db:"township_title"`
	RespondedAt       string         `db:"responded_at"`
	StatusID          sql.NullString `db:"status_id"`
	StatusTitle       sql.NullString `db:"status_title"`
	StatusSlug        sql.NullString `db:"status_slug"`
	Raw               []byte         `db:"raw"`
}

func (r recordRow) toRecord() mojavez.Record {
	rec := mojavez.Record{
		RequestNumber:     r.RequestNumber,
		ApplicantName:     r.ApplicantName,
		UserImage:         r.UserImage,
		LicenseTitle:      r.LicenseTitle,
		OrganizationTitle: r.OrganizationTitle,
		ProvinceTitle:     r.ProvinceTitle,
		TownshipTitle:     r.TownshipTitle,
		RespondedAt:       r.RespondedAt,
		Raw:               json.RawMessage(r.Raw),
	}
	if r.StatusID.Valid || r.StatusTitle.Valid || r.StatusSlug.Valid {
		rec.Status = &mojavez.Status{
			StatusID:    r.StatusID.String,
			StatusTitle: r.StatusTitle.String,
			StatusSlug:  r.StatusSlug.String,
		}
	}
	return rec
}

// InsertBatch saves the records, silently dropping any whose
// (job_id, request_number) already exists, and reports how many rows were
// actually inserted.
func (s *RecordStore) InsertBatch(ctx context.Context, jobID uuid.UUID, records []mojavez.Record) (int, error) {
	query := `
		INSERT INTO harvest_records (
			job_id, request_number, applicant_name, user_image,
			license_title, organization_title, province_title, township_title,
			responded_at, status_id, status_title, status_slug, raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (job_id, request_number) DO NOTHING
	`

	inserted := 0
	for _, rec := range records {
		var statusID, statusTitle, statusSlug sql.NullString
		if rec.Status != nil {
			statusID = sql.NullString{String: rec.Status.StatusID, Valid: true}
			statusTitle = sql.NullString{String: rec.Status.StatusTitle, Valid: true}
			statusSlug = sql.NullString{String: rec.Status.StatusSlug, Valid: true}
		}
		raw := []byte(rec.Raw)
		if len(raw) == 0 {
			raw = []byte("{}")
		}

		result, err := s.db.ExecContext(ctx, query,
			jobID, rec.RequestNumber, rec.ApplicantName, rec.UserImage,
			rec.LicenseTitle, rec.OrganizationTitle, rec.ProvinceTitle, rec.TownshipTitle,
			rec.RespondedAt, statusID, statusTitle, statusSlug, raw,
		)
		if err != nil {
			return inserted, fmt.Errorf("inserting record %s: %w", rec.RequestNumber, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// CountByJob is the authoritative fetched-record count for a job.
func (s *RecordStore) CountByJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM harvest_records WHERE job_id = $1`, jobID)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return count, nil
}

// RequestNumbers lists the record keys already stored for a job.
func (s *RecordStore) RequestNumbers(ctx context.Context, jobID uuid.UUID) ([]string, error) {
	var keys []string
	err := s.db.SelectContext(ctx, &keys,
		`SELECT request_number FROM harvest_records WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing request numbers: %w", err)
	}
	return keys, nil
}

// ListWithoutDetail returns the job's records that have no detail yet, in
// insertion order.
func (s *RecordStore) ListWithoutDetail(ctx context.Context, jobID uuid.UUID) ([]mojavez.Record, error) {
	var rows []recordRow
	query := `
		SELECT r.request_number, r.applicant_name, r.user_image,
		       r.license_title, r.organization_title, r.province_title, r.township_title,
		       r.responded_at, r.status_id, r.status_title, r.status_slug, r.raw
		FROM harvest_records r
		LEFT JOIN harvest_details d
		       ON d.job_id = r.job_id AND d.request_number = r.request_number
		WHERE r.job_id = $1 AND d.id IS NULL
		ORDER BY r.id
	`
	if err := s.db.SelectContext(ctx, &rows, query, jobID); err != nil {
		return nil, fmt.Errorf("listing records without detail: %w", err)
	}

	records := make([]mojavez.Record, len(rows))
	for i, row := range rows {
		records[i] = row.toRecord()
	}
	return records, nil
}
