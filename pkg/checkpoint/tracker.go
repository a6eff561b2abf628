package checkpoint

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/irdatalab/mojavez-harvester/pkg/harvest"
	"github.com/irdatalab/mojavez-harvester/pkg/logging"
	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// Prometheus metrics for checkpoint tracking.
var (
	recordsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_records_persisted_total",
		Help: "Records durably saved across all jobs",
	})

	duplicateRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_duplicate_records_total",
		Help: "Records dropped as already seen for their job",
	})
)

// Tracker consumes the planner's batch stream for one job: it suppresses
// records already harvested, persists the rest, and refreshes the job's
// progress counters from the store after every save. The seen-set is seeded
// from the store, so resuming a job replays no duplicates into it.
type Tracker struct {
	jobs    JobStore
	records RecordStore
	job     *Job
	seen    map[string]struct{}
	logger  zerolog.Logger
}

// NewTracker builds a tracker for the job, seeding the de-duplication set
// with the request numbers already stored for it.
func NewTracker(ctx context.Context, jobs JobStore, records RecordStore, job *Job) (*Tracker, error) {
	existing, err := records.RequestNumbers(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("seeding seen-set: %w", err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, rn := range existing {
		seen[rn] = struct{}{}
	}

	logger := logging.WithJob(log.Logger, job.ID.String())
	if len(existing) > 0 {
		logger.Info().Int("already_fetched", len(existing)).Msg("Resuming job with existing records")
	}

	return &Tracker{
		jobs:    jobs,
		records: records,
		job:     job,
		seen:    seen,
		logger:  logger,
	}, nil
}

// Job returns the tracked job.
func (t *Tracker) Job() *Job {
	return t.job
}

// StartPage is the page checkpoint for resuming a direct fetch. Partitioned
// runs ignore it and rely on the seen-set.
func (t *Tracker) StartPage() int {
	if t.job.CurrentPage > 1 {
		return t.job.CurrentPage
	}
	return 1
}

// Cancelled polls the store for an externally requested cancellation. Store
// errors are logged and treated as not cancelled so a transient read failure
// cannot kill a long harvest.
func (t *Tracker) Cancelled(ctx context.Context) bool {
	status, err := t.jobs.Status(ctx, t.job.ID)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Cancellation poll failed")
		return false
	}
	return status == StatusCancelled
}

// Apply persists one batch and updates the job's progress. Records whose
// request number was already seen for this job are dropped before the store
// insert; the store's insert-if-absent catches any that slipped past the
// in-memory set. fetched_records is recounted from the store, never
// accumulated.
func (t *Tracker) Apply(ctx context.Context, b *harvest.Batch) error {
	fresh := make([]mojavez.Record, 0, len(b.Records))
	for _, rec := range b.Records {
		if rec.RequestNumber == "" {
			continue
		}
		if _, ok := t.seen[rec.RequestNumber]; ok {
			duplicateRecordsTotal.Inc()
			continue
		}
		fresh = append(fresh, rec)
	}

	if len(fresh) > 0 {
		inserted, err := t.records.InsertBatch(ctx, t.job.ID, fresh)
		if err != nil {
			return fmt.Errorf("persisting batch: %w", err)
		}
		for _, rec := range fresh {
			t.seen[rec.RequestNumber] = struct{}{}
		}
		recordsPersistedTotal.Add(float64(inserted))
		if dropped := len(fresh) - inserted; dropped > 0 {
			duplicateRecordsTotal.Add(float64(dropped))
		}
	}

	count, err := t.records.CountByJob(ctx, t.job.ID)
	if err != nil {
		return fmt.Errorf("recounting records: %w", err)
	}
	t.job.FetchedRecords = count

	if b.Direct {
		t.job.CurrentPage = b.Page
		if b.Pagination != nil {
			t.job.TotalPages = b.Pagination.TotalPages()
		}
	}

	if err := t.jobs.Update(ctx, t.job); err != nil {
		return fmt.Errorf("updating job progress: %w", err)
	}

	t.logger.Info().
		Str("region", b.Region.String()).
		Int("page", b.Page).
		Int("fetched", t.job.FetchedRecords).
		Int("total", t.job.TotalRecords).
		Float64("progress", t.job.Progress()).
		Msg("Progress saved")

	return nil
}
