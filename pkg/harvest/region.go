// Package harvest implements the adaptive partitioning and resumable fetch
// engine: the planner that decides how to decompose a too-large query region,
// and the paginated fetcher that drains a region known to fit in one query.
package harvest

import (
	"fmt"
	"time"

	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// GeoScope narrows a region to a province or a township within it. The zero
// value means all geography.
type GeoScope struct {
	ProvinceID *int
	TownshipID *int
}

// AllGeography returns the unrestricted scope.
func AllGeography() GeoScope {
	return GeoScope{}
}

// Province scopes to one province.
func Province(id int) GeoScope {
	return GeoScope{ProvinceID: &id}
}

// ProvinceTownship scopes to one township of a province.
func ProvinceTownship(provinceID, townshipID int) GeoScope {
	return GeoScope{ProvinceID: &provinceID, TownshipID: &townshipID}
}

// IsAll reports whether the scope is unrestricted.
func (g GeoScope) IsAll() bool {
	return g.ProvinceID == nil
}

// HasTownship reports whether the scope is narrowed down to a township.
func (g GeoScope) HasTownship() bool {
	return g.TownshipID != nil
}

// String renders the scope for logs.
func (g GeoScope) String() string {
	switch {
	case g.ProvinceID == nil:
		return "all"
	case g.TownshipID == nil:
		return fmt.Sprintf("province %d", *g.ProvinceID)
	default:
		return fmt.Sprintf("province %d township %d", *g.ProvinceID, *g.TownshipID)
	}
}

// Region is an immutable filter descriptor: a time range and a geography
// scope. Day-granularity regions carry midnight instants with End inclusive
// (the registry filters by date); hour-level chunks carry exact instants.
// Regions are never mutated; splits produce new regions.
type Region struct {
	Start time.Time
	End   time.Time
	Geo   GeoScope
}

// NewRegion builds a day-granularity region over inclusive dates.
func NewRegion(start, end time.Time, geo GeoScope) Region {
	return Region{
		Start: truncateDay(start),
		End:   truncateDay(end),
		Geo:   geo,
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SpanDays is the number of whole days between the bounds; zero for a
// single-day or sub-day region.
func (r Region) SpanDays() int {
	return int(r.End.Sub(r.Start) / (24 * time.Hour))
}

// SubDay reports whether the region is an hour-level chunk.
func (r Region) SubDay() bool {
	d := r.End.Sub(r.Start)
	return d > 0 && d < 24*time.Hour
}

// SingleDay reports whether the region covers exactly one calendar day.
func (r Region) SingleDay() bool {
	return !r.SubDay() && r.SpanDays() == 0
}

// Bisect splits a multi-day region at its midpoint into two contiguous
// halves; the second half starts one day after the midpoint so the halves
// never overlap. Callers must not bisect single-day regions.
func (r Region) Bisect() [2]Region {
	mid := r.Start.AddDate(0, 0, r.SpanDays()/2)
	return [2]Region{
		{Start: r.Start, End: mid, Geo: r.Geo},
		{Start: mid.AddDate(0, 0, 1), End: r.End, Geo: r.Geo},
	}
}

// Chunks slices the region into sub-ranges of the given step. A single-day
// region is treated as covering the full day; a sub-day region is sliced
// between its exact bounds. Consecutive chunks meet at their shared boundary
// instant; record de-duplication absorbs any boundary double-arrival.
func (r Region) Chunks(step time.Duration) []Region {
	bound := r.End
	if !r.SubDay() {
		bound = r.Start.AddDate(0, 0, 1)
	}

	var chunks []Region
	for cur := r.Start; cur.Before(bound); {
		end := cur.Add(step)
		if end.After(bound) {
			end = bound
		}
		chunks = append(chunks, Region{Start: cur, End: end, Geo: r.Geo})
		cur = end
	}
	return chunks
}

// Filter renders the region as the registry's filter input.
func (r Region) Filter() mojavez.Filter {
	if r.SubDay() {
		return mojavez.NewFilter(
			mojavez.FormatAPITime(r.Start),
			mojavez.FormatAPITime(r.End),
			r.Geo.ProvinceID,
			r.Geo.TownshipID,
		)
	}
	return mojavez.NewFilter(
		mojavez.FormatAPIDate(r.Start),
		mojavez.FormatAPIDate(r.End),
		r.Geo.ProvinceID,
		r.Geo.TownshipID,
	)
}

// String renders the region for logs.
func (r Region) String() string {
	f := r.Filter()
	return fmt.Sprintf("%s..%s %s", f.LastOpStartDate, f.LastOpEndDate, r.Geo)
}

// WithGeo derives a region with a narrower geography scope.
func (r Region) WithGeo(geo GeoScope) Region {
	return Region{Start: r.Start, End: r.End, Geo: geo}
}
