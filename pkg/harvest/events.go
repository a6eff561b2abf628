package harvest

import (
	"errors"

	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// ErrCancelled stops the engine's loops when the job's status has been
// switched to cancelled externally.
var ErrCancelled = errors.New("job cancelled")

// Batch is one fetched page of records from a leaf region, emitted as soon
// as the page arrives. The consumer persists it before the planner moves on;
// the event channel is unbuffered so the two stay in lockstep.
type Batch struct {
	// Region is the leaf region the page belongs to.
	Region Region

	// Page is the page number within the region, starting at 1.
	Page int

	// Records are the page's records.
	Records []mojavez.Record

	// Pagination is the page's metadata, nil when the response had none.
	Pagination *mojavez.Pagination

	// ExpectedCount is the oracle count obtained for the region before
	// fetching; zero means unknown. Live data may disagree with it.
	ExpectedCount int

	// Direct is true when the root region was fetched without
	// partitioning. Only direct fetches support page-checkpoint resume.
	Direct bool
}

// Event is one element of the planner's output stream. A terminal failure
// arrives as the final event with Err set; the channel then closes.
type Event struct {
	Batch *Batch
	Err   error
}
