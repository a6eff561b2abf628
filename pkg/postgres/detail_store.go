package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// DetailStore persists per-record enrichment details in the harvest_details
// table, one row per record.
type DetailStore struct {
	db *sqlx.DB
}

// NewDetailStore creates a detail store.
func NewDetailStore(db *sqlx.DB) *DetailStore {
	return &DetailStore{db: db}
}

// Save inserts the detail; a replay for an already enriched record is a
// no-op.
func (s *DetailStore) Save(ctx context.Context, jobID uuid.UUID, detail *mojavez.Detail) error {
	query := `
		INSERT INTO harvest_details (
			job_id, request_number, license_title, organization_title,
			isic_code, issue_type, issued_at, expires_at,
			province_title, township_title, postal_code, business_address,
			status_title, status_slug, source, raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (job_id, request_number) DO NOTHING
	`
	raw := []byte(detail.Raw)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx, query,
		jobID, detail.RequestNumber, detail.LicenseTitle, detail.OrganizationTitle,
		detail.ISICCode, detail.IssueType, detail.IssuedAt, detail.ExpiresAt,
		detail.ProvinceTitle, detail.TownshipTitle, detail.PostalCode, detail.BusinessAddress,
		detail.StatusTitle, detail.StatusSlug, detail.Source, raw,
	)
	if err != nil {
		return fmt.Errorf("saving detail %s: %w", detail.RequestNumber, err)
	}
	return nil
}

// ExistsForRecord reports whether the record already has a detail.
func (s *DetailStore) ExistsForRecord(ctx context.Context, jobID uuid.UUID, requestNumber string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM harvest_details
			WHERE job_id = $1 AND request_number = $2
		)
	`
	if err := s.db.GetContext(ctx, &exists, query, jobID, requestNumber); err != nil {
		return false, fmt.Errorf("checking detail existence: %w", err)
	}
	return exists, nil
}
