// Package runner drives one harvest job end to end: lifecycle transitions
// on the job row, the partition planner feeding the checkpoint tracker, and
// the optional detail enrichment pass chained after a successful harvest.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/irdatalab/mojavez-harvester/pkg/checkpoint"
	"github.com/irdatalab/mojavez-harvester/pkg/enrich"
	"github.com/irdatalab/mojavez-harvester/pkg/harvest"
	"github.com/irdatalab/mojavez-harvester/pkg/logging"
)

var jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvester_jobs_total",
	Help: "Harvest jobs finished by outcome",
}, []string{"outcome"})

// Config holds the runner configuration.
type Config struct {
	// Planner is the base planner configuration; StartPage and the
	// cancellation check are filled in per job.
	Planner harvest.Config
}

// Runner executes harvest jobs sequentially. One Runner handles one job at
// a time; parallelism across jobs belongs to the external scheduler.
type Runner struct {
	jobs     checkpoint.JobStore
	records  checkpoint.RecordStore
	oracle   harvest.Oracle
	source   harvest.PageSource
	dir      harvest.GeoDirectory
	enricher *enrich.Enricher
	cfg      Config
}

// New creates a runner. enricher may be nil to skip the detail pass.
func New(jobs checkpoint.JobStore, records checkpoint.RecordStore, oracle harvest.Oracle, source harvest.PageSource, dir harvest.GeoDirectory, enricher *enrich.Enricher, cfg Config) *Runner {
	return &Runner{
		jobs:     jobs,
		records:  records,
		oracle:   oracle,
		source:   source,
		dir:      dir,
		enricher: enricher,
		cfg:      cfg,
	}
}

// Run loads the job, harvests its region, and records the outcome on the
// job row. A cancelled job keeps its externally set status and returns nil;
// any other failure marks the job failed with the error message.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job: %w", err)
	}
	logger := logging.WithJob(log.Logger, job.ID.String())

	if job.Status == checkpoint.StatusCompleted {
		logger.Info().Msg("Job already completed")
		return nil
	}
	if job.Status == checkpoint.StatusCancelled {
		logger.Warn().Msg("Job cancelled before start")
		return nil
	}

	tracker, err := checkpoint.NewTracker(ctx, r.jobs, r.records, job)
	if err != nil {
		return r.fail(ctx, job, err)
	}

	job.Status = checkpoint.StatusRunning
	job.ErrorMessage = ""
	if job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
	}
	if err := r.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("marking job running: %w", err)
	}

	root := job.Region()
	total := r.oracle.CountLicenses(ctx, root.Filter())
	job.TotalRecords = total
	if err := r.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("recording total: %w", err)
	}
	logger.Info().
		Str("region", root.String()).
		Int("total", total).
		Msg("Starting harvest")

	if err := r.harvest(ctx, tracker, root); err != nil {
		if errors.Is(err, harvest.ErrCancelled) {
			jobsTotal.WithLabelValues("cancelled").Inc()
			logger.Warn().Msg("Job cancelled")
			return nil
		}
		jobsTotal.WithLabelValues("failed").Inc()
		return r.fail(ctx, job, err)
	}

	final, err := r.records.CountByJob(ctx, job.ID)
	if err != nil {
		return r.fail(ctx, job, err)
	}
	now := time.Now().UTC()
	job.Status = checkpoint.StatusCompleted
	job.FetchedRecords = final
	job.CompletedAt = &now
	if err := r.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("marking job completed: %w", err)
	}
	jobsTotal.WithLabelValues("completed").Inc()
	logger.Info().Int("fetched", final).Msg("Harvest completed")

	if r.enricher == nil {
		return nil
	}
	if err := r.enricher.Run(ctx, job); err != nil {
		if errors.Is(err, harvest.ErrCancelled) {
			return nil
		}
		return fmt.Errorf("detail enrichment: %w", err)
	}
	return nil
}

// harvest drains the planner's event stream into the tracker. The planner
// goroutine writes to an unbuffered channel, so after a tracker failure the
// stream is cancelled and drained before returning.
func (r *Runner) harvest(ctx context.Context, tracker *checkpoint.Tracker, root harvest.Region) error {
	cfg := r.cfg.Planner
	cfg.StartPage = tracker.StartPage()
	cfg.Cancelled = tracker.Cancelled

	planner := harvest.NewPlanner(r.oracle, r.source, r.dir, cfg)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := planner.Run(runCtx, root)
	var firstErr error
	for ev := range events {
		if firstErr != nil {
			continue
		}
		if ev.Err != nil {
			firstErr = ev.Err
			continue
		}
		if err := tracker.Apply(ctx, ev.Batch); err != nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

func (r *Runner) fail(ctx context.Context, job *checkpoint.Job, cause error) error {
	now := time.Now().UTC()
	job.Status = checkpoint.StatusFailed
	job.ErrorMessage = cause.Error()
	job.CompletedAt = &now
	if err := r.jobs.Update(ctx, job); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("Failed to record job failure")
	}
	return cause
}
