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

// MaxRecordsPerRequest is the hard record ceiling the registry enforces per
// filter; regions counting above it cannot be paged through reliably and
// must be decomposed.
const MaxRecordsPerRequest = 2100

// Prometheus metrics for partition planning.
var (
	regionSplitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_region_splits_total",
		Help: "Region decompositions by strategy",
	}, []string{"strategy"})

	leafRegionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_leaf_regions_total",
		Help: "Leaf regions handed to the paginated fetcher",
	})
)

// Oracle reports how many records match a filter; zero is ambiguous (empty
// or unknown). Satisfied by mojavez.Client.
type Oracle interface {
	CountLicenses(ctx context.Context, f mojavez.Filter) int
}

// GeoDirectory enumerates provinces and townships in directory order.
// Satisfied by mojavez.Directory.
type GeoDirectory interface {
	Provinces(ctx context.Context) ([]mojavez.Place, error)
	Townships(ctx context.Context, provinceID int) ([]mojavez.Place, error)
}

// Config holds the planner configuration.
type Config struct {
	// Threshold is the maximum count a region may have and still be paged
	// through directly.
	Threshold int

	// PageDelay is the pause between page requests and between hour
	// chunks.
	PageDelay time.Duration

	// RegionDelay is the pause between sibling sub-regions produced by a
	// split (bisection halves, provinces, townships).
	RegionDelay time.Duration

	// NominalPageSize is the registry's full page size.
	NominalPageSize int

	// StartPage resumes a direct (non-partitioned) fetch from a page
	// checkpoint. It applies only when the root region fits under the
	// threshold; partitioned runs always restart from page 1 and rely on
	// record de-duplication.
	StartPage int

	// Cancelled is polled before each region and each page.
	Cancelled CancelCheck
}

// DefaultConfig returns the production planner configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:       MaxRecordsPerRequest,
		PageDelay:       500 * time.Millisecond,
		RegionDelay:     time.Second,
		NominalPageSize: 21,
	}
}

// Planner recursively decomposes a region until every leaf is pageable,
// draining each leaf through the fetcher. The decomposition order is
// depth-first and strictly sequential: date bisection while the span is
// multi-day, then provinces, then townships, then 6-hour and finally 1-hour
// chunks, which are the finest unit supported.
type Planner struct {
	oracle  Oracle
	fetcher *Fetcher
	dir     GeoDirectory
	cfg     Config
	logger  zerolog.Logger
}

// NewPlanner creates a partition planner.
func NewPlanner(oracle Oracle, source PageSource, dir GeoDirectory, cfg Config) *Planner {
	if cfg.Threshold <= 0 {
		cfg.Threshold = MaxRecordsPerRequest
	}
	if cfg.NominalPageSize <= 0 {
		cfg.NominalPageSize = 21
	}
	return &Planner{
		oracle: oracle,
		fetcher: NewFetcher(source, FetcherConfig{
			PageDelay:       cfg.PageDelay,
			NominalPageSize: cfg.NominalPageSize,
		}),
		dir:    dir,
		cfg:    cfg,
		logger: log.With().Str("component", "partition-planner").Logger(),
	}
}

// workItem is one pending region on the explicit worklist. The worklist
// replaces call-stack recursion so depth is bounded by the number of pending
// siblings, not the partition depth.
type workItem struct {
	region Region

	// skipCount marks 1-hour chunks, which are fetched directly without
	// consulting the oracle: there is no finer split to choose from.
	skipCount bool

	// pauseAfter rate-limits between sibling regions.
	pauseAfter time.Duration
}

// Run drains the root region, streaming every fetched page on the returned
// channel as soon as it is available. The channel is unbuffered and closes
// when the region tree is exhausted; a terminal failure arrives as the final
// event. The consumer must drain the channel.
func (p *Planner) Run(ctx context.Context, root Region) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		if err := p.run(ctx, root, out); err != nil {
			select {
			case out <- Event{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

func (p *Planner) run(ctx context.Context, root Region, out chan<- Event) error {
	emit := func(b *Batch) error {
		select {
		case out <- Event{Batch: b}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	stack := []workItem{{region: root}}
	isRoot := true

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.cfg.Cancelled != nil && p.cfg.Cancelled(ctx) {
			p.logger.Warn().Str("region", item.region.String()).Msg("Planner aborted, job cancelled")
			return ErrCancelled
		}

		children, err := p.process(ctx, item, isRoot, emit)
		if err != nil {
			return err
		}
		// Reverse push so the first child is processed next, preserving
		// the depth-first order.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
		isRoot = false

		if len(stack) > 0 {
			if err := sleep(ctx, item.pauseAfter); err != nil {
				return err
			}
		}
	}
	return nil
}

// process either fetches a pageable region (returning no children) or
// decomposes it, returning the ordered child regions.
func (p *Planner) process(ctx context.Context, item workItem, isRoot bool, emit func(*Batch) error) ([]workItem, error) {
	region := item.region
	logger := p.logger.With().Str("region", region.String()).Logger()

	count := 0
	if !item.skipCount {
		count = p.oracle.CountLicenses(ctx, region.Filter())
		logger.Info().Int("count", count).Msg("Region counted")
	}

	if item.skipCount || count <= p.cfg.Threshold {
		leafRegionsTotal.Inc()
		startPage := 1
		if isRoot && p.cfg.StartPage > 1 {
			startPage = p.cfg.StartPage
			logger.Info().Int("start_page", startPage).Msg("Resuming direct fetch from checkpoint")
		}
		return nil, p.fetcher.FetchAll(ctx, region, count, startPage, isRoot, p.cfg.Cancelled, emit)
	}

	switch {
	case !region.SubDay() && !region.SingleDay():
		regionSplitsTotal.WithLabelValues("bisect").Inc()
		halves := region.Bisect()
		logger.Info().
			Str("first", halves[0].String()).
			Str("second", halves[1].String()).
			Msg("Bisecting time span")
		return []workItem{
			{region: halves[0], pauseAfter: p.cfg.RegionDelay},
			{region: halves[1], pauseAfter: p.cfg.RegionDelay},
		}, nil

	case region.SingleDay() && region.Geo.IsAll():
		regionSplitsTotal.WithLabelValues("province").Inc()
		provinces, err := p.dir.Provinces(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info().Int("provinces", len(provinces)).Msg("Splitting by province")
		items := make([]workItem, 0, len(provinces))
		for _, prov := range provinces {
			items = append(items, workItem{
				region:     region.WithGeo(Province(prov.ID)),
				pauseAfter: p.cfg.RegionDelay,
			})
		}
		return items, nil

	case region.SingleDay() && !region.Geo.HasTownship():
		regionSplitsTotal.WithLabelValues("township").Inc()
		townships, err := p.dir.Townships(ctx, *region.Geo.ProvinceID)
		if err != nil {
			return nil, err
		}
		logger.Info().Int("townships", len(townships)).Msg("Splitting by township")
		items := make([]workItem, 0, len(townships))
		for _, town := range townships {
			items = append(items, workItem{
				region:     region.WithGeo(ProvinceTownship(*region.Geo.ProvinceID, town.ID)),
				pauseAfter: p.cfg.RegionDelay,
			})
		}
		return items, nil

	case region.SingleDay():
		// Township-scoped single day still over threshold: fall back to
		// temporal chunking at hour granularity.
		regionSplitsTotal.WithLabelValues("hour6").Inc()
		logger.Warn().Int("count", count).Msg("Single-day township region over threshold, splitting into 6-hour chunks")
		chunks := region.Chunks(6 * time.Hour)
		items := make([]workItem, 0, len(chunks))
		for _, chunk := range chunks {
			items = append(items, workItem{region: chunk, pauseAfter: p.cfg.PageDelay})
		}
		return items, nil

	default:
		// A sub-day chunk over threshold: 1-hour chunks, fetched without
		// further counting. One hour is the floor even if nominally too
		// large.
		regionSplitsTotal.WithLabelValues("hour1").Inc()
		logger.Warn().Int("count", count).Msg("Hour chunk still over threshold, splitting into 1-hour chunks")
		chunks := region.Chunks(time.Hour)
		items := make([]workItem, 0, len(chunks))
		for _, chunk := range chunks {
			items = append(items, workItem{region: chunk, skipCount: true, pauseAfter: p.cfg.PageDelay})
		}
		return items, nil
	}
}
