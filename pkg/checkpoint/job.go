// Package checkpoint tracks harvest jobs: durable progress counters, the
// record de-duplication that makes reruns idempotent, and the store
// interfaces the persistence layer implements.
package checkpoint

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/irdatalab/mojavez-harvester/pkg/harvest"
)

// ErrNotFound is returned by stores when the requested row does not exist.
var ErrNotFound = errors.New("checkpoint: not found")

// Status is a job or enrichment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is one harvest run over a region. Progress counters are derived from
// the record store after each durable save, never accumulated in memory, so
// a resumed job reports correct totals from the first batch.
type Job struct {
	ID   uuid.UUID `db:"id"`
	Name string    `db:"name"`

	StartDate    time.Time `db:"start_date"`
	EndDate      time.Time `db:"end_date"`
	ProvinceID   *int      `db:"province_id"`
	ProvinceName string    `db:"province_name"`
	TownshipID   *int      `db:"township_id"`
	TownshipName string    `db:"township_name"`

	Status         Status `db:"status"`
	TotalRecords   int    `db:"total_records"`
	FetchedRecords int    `db:"fetched_records"`
	CurrentPage    int    `db:"current_page"`
	TotalPages     int    `db:"total_pages"`
	ErrorMessage   string `db:"error_message"`

	DetailStatus    Status `db:"detail_status"`
	DetailTotal     int    `db:"detail_total"`
	DetailProcessed int    `db:"detail_processed"`
	DetailErrors    int    `db:"detail_errors"`

	CreatedAt   time.Time  `db:"created_at"`
	StartedAt   *time.Time `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// NewJob creates a pending job over the given inclusive date range and
// optional geography scope.
func NewJob(name string, startDate, endDate time.Time, provinceID, townshipID *int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:           uuid.New(),
		Name:         name,
		StartDate:    startDate,
		EndDate:      endDate,
		ProvinceID:   provinceID,
		TownshipID:   townshipID,
		Status:       StatusPending,
		DetailStatus: StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Region builds the job's root harvest region.
func (j *Job) Region() harvest.Region {
	geo := harvest.AllGeography()
	switch {
	case j.ProvinceID != nil && j.TownshipID != nil:
		geo = harvest.ProvinceTownship(*j.ProvinceID, *j.TownshipID)
	case j.ProvinceID != nil:
		geo = harvest.Province(*j.ProvinceID)
	}
	return harvest.NewRegion(j.StartDate, j.EndDate, geo)
}

// Progress is the fetch completion percentage, clamped to [0, 100]. Zero
// when the expected total is unknown.
func (j *Job) Progress() float64 {
	if j.TotalRecords <= 0 {
		return 0
	}
	pct := float64(j.FetchedRecords) / float64(j.TotalRecords) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Terminal reports whether the job has reached a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}
