// Package enrich implements the second harvest pass: for every stored
// record lacking a detail, it queries the structured per-record detail
// operation and falls back to scraping the public tracking page when the
// structured path yields nothing.
package enrich

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/irdatalab/mojavez-harvester/pkg/checkpoint"
	"github.com/irdatalab/mojavez-harvester/pkg/harvest"
	"github.com/irdatalab/mojavez-harvester/pkg/logging"
	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// Prometheus metrics for detail enrichment.
var (
	detailsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_details_fetched_total",
		Help: "Details persisted by source path",
	}, []string{"source"})

	detailErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_detail_errors_total",
		Help: "Records whose detail failed on both paths",
	})
)

// DetailSource is the structured primary path. Satisfied by mojavez.Client.
// A nil detail with nil error means the registry has no detail for the
// record.
type DetailSource interface {
	Detail(ctx context.Context, requestNumber string) (*mojavez.Detail, error)
}

// Fallback is the unstructured secondary path. Satisfied by TrackClient.
type Fallback interface {
	Fetch(ctx context.Context, requestNumber string) (*mojavez.Detail, error)
}

// Config holds the enricher configuration.
type Config struct {
	// RecordDelay is the pause between per-record detail fetches.
	// Defaults to 300ms.
	RecordDelay time.Duration
}

// Enricher walks a job's records without details, strictly sequentially,
// persisting whichever path produced one. A record failing on both paths is
// counted and skipped; it never aborts the pass.
type Enricher struct {
	primary  DetailSource
	fallback Fallback
	jobs     checkpoint.JobStore
	records  checkpoint.RecordStore
	details  checkpoint.DetailStore
	cfg      Config
}

// New creates an enricher. fallback may be nil to disable the track page
// path.
func New(primary DetailSource, fallback Fallback, jobs checkpoint.JobStore, records checkpoint.RecordStore, details checkpoint.DetailStore, cfg Config) *Enricher {
	if cfg.RecordDelay == 0 {
		cfg.RecordDelay = 300 * time.Millisecond
	}
	return &Enricher{
		primary:  primary,
		fallback: fallback,
		jobs:     jobs,
		records:  records,
		details:  details,
		cfg:      cfg,
	}
}

// Run enriches every record of the job that has no detail yet. Already
// enriched records never trigger a request, so re-running a completed pass
// is free. Cancellation is polled per record; a cancelled job returns
// harvest.ErrCancelled with detail_status left as is, matching the main
// harvest loop.
func (e *Enricher) Run(ctx context.Context, job *checkpoint.Job) error {
	logger := logging.WithJob(log.Logger, job.ID.String()).With().
		Str("component", "detail-enricher").Logger()

	pending, err := e.records.ListWithoutDetail(ctx, job.ID)
	if err != nil {
		job.DetailStatus = checkpoint.StatusFailed
		_ = e.jobs.Update(ctx, job)
		return err
	}

	total, err := e.records.CountByJob(ctx, job.ID)
	if err != nil {
		return err
	}

	job.DetailStatus = checkpoint.StatusRunning
	job.DetailTotal = total
	job.DetailProcessed = total - len(pending)
	if err := e.jobs.Update(ctx, job); err != nil {
		return err
	}

	logger.Info().
		Int("pending", len(pending)).
		Int("total", total).
		Msg("Starting detail enrichment")

	for i, rec := range pending {
		if cancelled, err := e.isCancelled(ctx, job); err != nil {
			logger.Warn().Err(err).Msg("Cancellation poll failed")
		} else if cancelled {
			logger.Warn().Int("processed", job.DetailProcessed).Msg("Enrichment aborted, job cancelled")
			return harvest.ErrCancelled
		}

		if err := e.enrichOne(ctx, logger, job, rec.RequestNumber); err != nil {
			return err
		}

		if i < len(pending)-1 {
			if err := sleep(ctx, e.cfg.RecordDelay); err != nil {
				return err
			}
		}
	}

	job.DetailStatus = checkpoint.StatusCompleted
	if err := e.jobs.Update(ctx, job); err != nil {
		return err
	}
	logger.Info().
		Int("processed", job.DetailProcessed).
		Int("errors", job.DetailErrors).
		Msg("Detail enrichment completed")
	return nil
}

// enrichOne resolves one record's detail through primary then fallback, and
// persists the outcome on the job. Only store failures propagate.
func (e *Enricher) enrichOne(ctx context.Context, logger zerolog.Logger, job *checkpoint.Job, requestNumber string) error {
	// ListWithoutDetail can be stale when a pass was interrupted mid-save.
	exists, err := e.details.ExistsForRecord(ctx, job.ID, requestNumber)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	detail := e.resolve(ctx, logger, requestNumber)
	if detail == nil {
		job.DetailErrors++
		detailErrorsTotal.Inc()
		return e.jobs.Update(ctx, job)
	}

	if err := e.details.Save(ctx, job.ID, detail); err != nil {
		return err
	}
	job.DetailProcessed++
	detailsFetchedTotal.WithLabelValues(detail.Source).Inc()
	logger.Debug().
		Str("request_number", requestNumber).
		Str("source", detail.Source).
		Int("processed", job.DetailProcessed).
		Int("errors", job.DetailErrors).
		Msg("Detail saved")
	return e.jobs.Update(ctx, job)
}

// resolve tries the structured query, then the track page. Nil means both
// paths failed or returned nothing.
func (e *Enricher) resolve(ctx context.Context, logger zerolog.Logger, requestNumber string) *mojavez.Detail {
	detail, err := e.primary.Detail(ctx, requestNumber)
	if err == nil && detail != nil && !detail.Empty() {
		return detail
	}
	if err != nil {
		logger.Warn().Err(err).
			Str("request_number", requestNumber).
			Msg("Structured detail query failed, trying track page")
	}

	if e.fallback == nil {
		return nil
	}
	detail, err = e.fallback.Fetch(ctx, requestNumber)
	if err != nil {
		logger.Warn().Err(err).
			Str("request_number", requestNumber).
			Msg("Track page fallback failed")
		return nil
	}
	return detail
}

func (e *Enricher) isCancelled(ctx context.Context, job *checkpoint.Job) (bool, error) {
	status, err := e.jobs.Status(ctx, job.ID)
	if err != nil {
		return false, err
	}
	return status == checkpoint.StatusCancelled, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
