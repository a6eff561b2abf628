package harvest

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// Prometheus metrics for page fetching.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_pages_fetched_total",
		Help: "Total list pages fetched across all regions",
	})

	recordsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_records_fetched_total",
		Help: "Total records fetched across all regions",
	})

	shortPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_short_pages_total",
		Help: "Pages after the first that returned fewer than the nominal page size without pagination metadata",
	})
)

// PageSource fetches a single page of the filtered list. Satisfied by
// mojavez.Client.
type PageSource interface {
	FetchPage(ctx context.Context, f mojavez.Filter, page int) (*mojavez.Page, error)
}

// CancelCheck reports whether the job has been cancelled externally. It is
// polled before each unit of work; nil means never cancelled.
type CancelCheck func(ctx context.Context) bool

// FetcherConfig holds the paginated fetcher configuration.
type FetcherConfig struct {
	// PageDelay is the cooperative pause between page requests.
	PageDelay time.Duration

	// NominalPageSize is the registry's full page size, used for the
	// defensive short-page signal.
	NominalPageSize int
}

// Fetcher walks all pages of a region assumed to be under the pageable
// threshold, stopping on any of several independent signals.
type Fetcher struct {
	source PageSource
	cfg    FetcherConfig
	logger zerolog.Logger
}

// NewFetcher creates a paginated fetcher.
func NewFetcher(source PageSource, cfg FetcherConfig) *Fetcher {
	if cfg.NominalPageSize <= 0 {
		cfg.NominalPageSize = 21
	}
	return &Fetcher{
		source: source,
		cfg:    cfg,
		logger: log.With().Str("component", "paginated-fetcher").Logger(),
	}
}

// FetchAll pages the region to exhaustion starting at startPage, invoking
// emit for every non-empty page. expected is the oracle count for the region
// (zero = unknown); live data may yield more or fewer records and the
// termination signals take precedence over it. cancelled is polled before
// each page.
//
// Termination: an empty page; current_page >= total_pages when pagination
// metadata is present; or the running total reaching expected. A short page
// past the first without metadata is only a warning, to avoid truncating on
// server-side variance.
func (f *Fetcher) FetchAll(ctx context.Context, region Region, expected, startPage int, direct bool, cancelled CancelCheck, emit func(*Batch) error) error {
	page := startPage
	if page < 1 {
		page = 1
	}
	fetched := 0

	logger := f.logger.With().Str("region", region.String()).Logger()

	for {
		if cancelled != nil && cancelled(ctx) {
			logger.Warn().Int("page", page).Msg("Fetch aborted, job cancelled")
			return ErrCancelled
		}

		pg, err := f.source.FetchPage(ctx, region.Filter(), page)
		if err != nil {
			return err
		}
		pagesFetchedTotal.Inc()

		if len(pg.Records) == 0 {
			logger.Info().Int("page", page).Msg("No more records")
			return nil
		}

		fetched += len(pg.Records)
		recordsFetchedTotal.Add(float64(len(pg.Records)))
		logger.Info().
			Int("page", page).
			Int("records", len(pg.Records)).
			Int("fetched", fetched).
			Int("expected", expected).
			Msg("Fetched page")

		if err := emit(&Batch{
			Region:        region,
			Page:          page,
			Records:       pg.Records,
			Pagination:    pg.Pagination,
			ExpectedCount: expected,
			Direct:        direct,
		}); err != nil {
			return err
		}

		if pg.Pagination != nil {
			totalPages := pg.Pagination.TotalPages()
			currentPage := pg.Pagination.CurrentPage
			if currentPage == 0 {
				currentPage = page
			}
			if totalPages > 0 && currentPage >= totalPages {
				logger.Info().
					Int("current_page", currentPage).
					Int("total_pages", totalPages).
					Msg("Reached last page per pagination info")
				return nil
			}
		}

		if expected > 0 && fetched >= expected {
			logger.Info().
				Int("fetched", fetched).
				Int("expected", expected).
				Msg("Fetched all expected records")
			return nil
		}

		if pg.Pagination == nil && page > 1 && len(pg.Records) < f.cfg.NominalPageSize {
			// Heuristic last-page signal only; the empty-page check is
			// the hard stop.
			shortPagesTotal.Inc()
			logger.Warn().
				Int("page", page).
				Int("records", len(pg.Records)).
				Int("nominal", f.cfg.NominalPageSize).
				Msg("Short page without pagination metadata, continuing")
		}

		page++
		if err := sleep(ctx, f.cfg.PageDelay); err != nil {
			return err
		}
	}
}

// sleep waits for d or until the context is done.
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
