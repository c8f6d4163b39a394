package embedding

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/mimir/core"
)

// Failure records why one document could not be refreshed.
type Failure struct {
	Id  core.ID
	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("document %d: %v", f.Id, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report is the outcome of one refresh pass. Every bucket is sorted by ID.
type Report struct {
	// Updated lists documents whose vector was (or, when Simulated, would be) recomputed.
	Updated []core.ID
	// SkippedStaleOK lists documents edited after their vector was computed
	// whose fingerprint and model still match, such as tag-only edits.
	SkippedStaleOK []core.ID
	// SkippedUnchanged lists documents whose vector is current.
	SkippedUnchanged []core.ID
	// Failed lists per-document failures.
	Failed []Failure
	// Simulated is set for dry runs; nothing was written.
	Simulated bool
	// Model is the identity every written vector is attributed to.
	Model core.ModelIdentity
	// Elapsed is the wall time of the pass after targets were loaded.
	Elapsed time.Duration
}

// HasFailures reports whether any document failed.
func (r *Report) HasFailures() bool {
	return len(r.Failed) > 0
}

// Total returns the number of documents the pass looked at.
func (r *Report) Total() int {
	return len(r.Updated) + len(r.SkippedStaleOK) + len(r.SkippedUnchanged) + len(r.Failed)
}

// FailedIDs returns the IDs of failed documents in ID order.
func (r *Report) FailedIDs() []core.ID {
	ids := make([]core.ID, len(r.Failed))
	for i, f := range r.Failed {
		ids[i] = f.Id
	}
	return ids
}

func (r *Report) String() string {
	prefix := ""
	if r.Simulated {
		prefix = "dry run: "
	}
	return fmt.Sprintf("%supdated=%d stale-ok=%d unchanged=%d failed=%d model=%s",
		prefix, len(r.Updated), len(r.SkippedStaleOK), len(r.SkippedUnchanged), len(r.Failed), r.Model)
}

// collector accumulates results from concurrent workers.
type collector struct {
	mu     sync.Mutex
	report Report
}

func (c *collector) updated(id core.ID) {
	c.mu.Lock()
	c.report.Updated = append(c.report.Updated, id)
	c.mu.Unlock()
}

func (c *collector) staleOK(id core.ID) {
	c.mu.Lock()
	c.report.SkippedStaleOK = append(c.report.SkippedStaleOK, id)
	c.mu.Unlock()
}

func (c *collector) unchanged(id core.ID) {
	c.mu.Lock()
	c.report.SkippedUnchanged = append(c.report.SkippedUnchanged, id)
	c.mu.Unlock()
}

func (c *collector) failed(id core.ID, err error) {
	c.mu.Lock()
	c.report.Failed = append(c.report.Failed, Failure{Id: id, Err: err})
	c.mu.Unlock()
}

// finish sorts every bucket and returns the report.
func (c *collector) finish() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	slices.Sort(c.report.Updated)
	slices.Sort(c.report.SkippedStaleOK)
	slices.Sort(c.report.SkippedUnchanged)
	slices.SortFunc(c.report.Failed, func(a, b Failure) int {
		return cmp.Compare(a.Id, b.Id)
	})
	report := c.report
	return &report
}
