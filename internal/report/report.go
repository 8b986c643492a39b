// Package report renders the outcome of a benchmark run for humans and for
// monitoring.
package report

import (
	"github.com/basekick-labs/tablebench/internal/loader"
	"github.com/basekick-labs/tablebench/internal/query"
	"github.com/basekick-labs/tablebench/internal/stats"
	"github.com/basekick-labs/tablebench/internal/timing"
)

// LoadPhase is what the load phase produced.
type LoadPhase struct {
	Summary loader.Summary
	Metrics timing.RunMetrics
	// Latency of individual InsertBatch calls.
	Latency stats.Snapshot
}

// Run describes one complete benchmark run.
type Run struct {
	Backend string
	Table   string
	Seed    uint64
	// Load is nil when the query phase replayed an exported sample.
	Load  *LoadPhase
	Query query.Result
	// Population is the number of entities the queried sample was drawn from.
	Population int64
}

// QueriedPercentage is the share of the population that was looked up.
func (r Run) QueriedPercentage() float64 {
	if r.Population <= 0 {
		return 0
	}
	return float64(r.Query.Lookups) * 100 / float64(r.Population)
}
