package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// scriptedSource serves pre-built pages keyed by page number and records the
// order of requests. Pages not in the script come back empty.
type scriptedSource struct {
	pages     map[int]*mojavez.Page
	requested []int
	err       error
}

func (s *scriptedSource) FetchPage(_ context.Context, _ mojavez.Filter, page int) (*mojavez.Page, error) {
	s.requested = append(s.requested, page)
	if s.err != nil {
		return nil, s.err
	}
	if pg, ok := s.pages[page]; ok {
		return pg, nil
	}
	return &mojavez.Page{}, nil
}

func records(prefix string, n int) []mojavez.Record {
	out := make([]mojavez.Record, n)
	for i := range out {
		out[i] = mojavez.Record{RequestNumber: fmt.Sprintf("%s-%d", prefix, i+1)}
	}
	return out
}

func testRegion() Region {
	return NewRegion(
		time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC),
		AllGeography(),
	)
}

func collectBatches(t *testing.T, f *Fetcher, source *scriptedSource, expected, startPage int) []*Batch {
	t.Helper()
	var batches []*Batch
	err := f.FetchAll(context.Background(), testRegion(), expected, startPage, false, nil, func(b *Batch) error {
		batches = append(batches, b)
		return nil
	})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	return batches
}

func TestFetchAllStopsOnEmptyPage(t *testing.T) {
	source := &scriptedSource{pages: map[int]*mojavez.Page{
		1: {Records: records("a", 21)},
		2: {Records: records("b", 21)},
	}}
	f := NewFetcher(source, FetcherConfig{NominalPageSize: 21})

	batches := collectBatches(t, f, source, 0, 1)

	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if want := []int{1, 2, 3}; len(source.requested) != 3 {
		t.Errorf("requested pages %v, want %v", source.requested, want)
	}
	if batches[0].Page != 1 || batches[1].Page != 2 {
		t.Errorf("batch pages = %d, %d", batches[0].Page, batches[1].Page)
	}
}

func TestFetchAllStopsOnPaginationMetadata(t *testing.T) {
	pg := &mojavez.Pagination{Total: 42, PerPage: 21, CurrentPage: 2}
	source := &scriptedSource{pages: map[int]*mojavez.Page{
		1: {Records: records("a", 21), Pagination: &mojavez.Pagination{Total: 42, PerPage: 21, CurrentPage: 1}},
		2: {Records: records("b", 21), Pagination: pg},
		3: {Records: records("c", 21)},
	}}
	f := NewFetcher(source, FetcherConfig{NominalPageSize: 21})

	batches := collectBatches(t, f, source, 0, 1)

	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if len(source.requested) != 2 {
		t.Errorf("requested %v, page 3 should never be asked for", source.requested)
	}
}

func TestFetchAllStopsOnExpectedCount(t *testing.T) {
	source := &scriptedSource{pages: map[int]*mojavez.Page{
		1: {Records: records("a", 21)},
		2: {Records: records("b", 21)},
		3: {Records: records("c", 21)},
	}}
	f := NewFetcher(source, FetcherConfig{NominalPageSize: 21})

	batches := collectBatches(t, f, source, 40, 1)

	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if len(source.requested) != 2 {
		t.Errorf("requested %v, want exactly pages 1 and 2", source.requested)
	}
}

func TestFetchAllShortPageWithoutMetadataContinues(t *testing.T) {
	// A short page past the first is only a warning; the fetcher keeps
	// going until an empty page.
	source := &scriptedSource{pages: map[int]*mojavez.Page{
		1: {Records: records("a", 21)},
		2: {Records: records("b", 5)},
		3: {Records: records("c", 21)},
	}}
	f := NewFetcher(source, FetcherConfig{NominalPageSize: 21})

	batches := collectBatches(t, f, source, 0, 1)

	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(source.requested) != 4 {
		t.Errorf("requested %v, want pages 1..4", source.requested)
	}
}

func TestFetchAllResumesFromStartPage(t *testing.T) {
	source := &scriptedSource{pages: map[int]*mojavez.Page{
		1: {Records: records("a", 21)},
		2: {Records: records("b", 21)},
		3: {Records: records("c", 21)},
	}}
	f := NewFetcher(source, FetcherConfig{NominalPageSize: 21})

	batches := collectBatches(t, f, source, 0, 3)

	if len(source.requested) == 0 || source.requested[0] != 3 {
		t.Fatalf("requested %v, want first request for page 3", source.requested)
	}
	if len(batches) != 1 {
		t.Errorf("got %d batches, want 1", len(batches))
	}
}

func TestFetchAllCancellation(t *testing.T) {
	source := &scriptedSource{pages: map[int]*mojavez.Page{
		1: {Records: records("a", 21)},
		2: {Records: records("b", 21)},
	}}
	f := NewFetcher(source, FetcherConfig{NominalPageSize: 21})

	calls := 0
	cancelled := func(context.Context) bool {
		calls++
		return calls > 1
	}

	var batches []*Batch
	err := f.FetchAll(context.Background(), testRegion(), 0, 1, false, cancelled, func(b *Batch) error {
		batches = append(batches, b)
		return nil
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if len(batches) != 1 {
		t.Errorf("got %d batches before cancel, want 1", len(batches))
	}
}

func TestFetchAllSourceError(t *testing.T) {
	wantErr := errors.New("registry unavailable")
	source := &scriptedSource{err: wantErr}
	f := NewFetcher(source, FetcherConfig{NominalPageSize: 21})

	err := f.FetchAll(context.Background(), testRegion(), 0, 1, false, nil, func(*Batch) error {
		t.Fatal("emit called despite source error")
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestFetchAllEmitError(t *testing.T) {
	source := &scriptedSource{pages: map[int]*mojavez.Page{
		1: {Records: records("a", 21)},
	}}
	f := NewFetcher(source, FetcherConfig{NominalPageSize: 21})

	wantErr := errors.New("persist failed")
	err := f.FetchAll(context.Background(), testRegion(), 0, 1, false, nil, func(*Batch) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
