package checkpoint

import (
	"context"

	"github.com/google/uuid"

	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// JobStore persists jobs. Get returns ErrNotFound for unknown ids.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	Update(ctx context.Context, job *Job) error

	// Status reads only the job's current status, for cheap cancellation
	// polling between pages.
	Status(ctx context.Context, id uuid.UUID) (Status, error)
}

// RecordStore persists harvested list records per job. InsertBatch must be
// insert-if-absent on (job, request number) and report how many rows were
// actually inserted; replayed records are silently dropped.
type RecordStore interface {
	InsertBatch(ctx context.Context, jobID uuid.UUID, records []mojavez.Record) (int, error)
	CountByJob(ctx context.Context, jobID uuid.UUID) (int, error)

	// RequestNumbers lists the keys already stored for the job, used to
	// seed the de-duplication set on resume.
	RequestNumbers(ctx context.Context, jobID uuid.UUID) ([]string, error)

	// ListWithoutDetail returns the job's records not yet enriched, in
	// insertion order.
	ListWithoutDetail(ctx context.Context, jobID uuid.UUID) ([]mojavez.Record, error)
}

// DetailStore persists per-record enrichment details.
type DetailStore interface {
	Save(ctx context.Context, jobID uuid.UUID, detail *mojavez.Detail) error
	ExistsForRecord(ctx context.Context, jobID uuid.UUID, requestNumber string) (bool, error)
}
