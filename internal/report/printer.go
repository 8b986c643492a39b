package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/basekick-labs/tablebench/internal/stats"
	"github.com/rs/zerolog"
)

// Printer writes the text report and mirrors every figure as a structured
// log event.
type Printer struct {
	w      io.Writer
	logger zerolog.Logger
}

func NewPrinter(w io.Writer, logger zerolog.Logger) *Printer {
	return &Printer{
		w:      w,
		logger: logger.With().Str("component", "report").Logger(),
	}
}

// Header logs the run about to start. Nothing reaches the report writer
// until Print, so a failed run leaves no partial report behind.
func (p *Printer) Header(backend string, partitions int, population int64) {
	p.logger.Info().
		Str("backend", backend).
		Int("partitions", partitions).
		Int64("entities", population).
		Msg("Table storage performance test starting")
}

// Print writes the banner and the results of both phases.
func (p *Printer) Print(r Run) error {
	var b strings.Builder

	fmt.Fprintf(&b, "--- Table Storage Performance Test (%s) ---\n", r.Backend)
	if l := r.Load; l != nil {
		fmt.Fprintf(&b, "--- Loaded %d entities split into %d partitions ---\n\n", l.Summary.TotalPopulation, l.Summary.Partitions)
		fmt.Fprintf(&b, "Uploading %d entities to %s took: %s\n", l.Summary.TotalPopulation, r.Backend, l.Metrics.FormattedTime())
		fmt.Fprintf(&b, "Average entity size %.2f KB\n", l.Summary.AverageEntitySizeKB())
		fmt.Fprintf(&b, "Uploading average of %s entities/s\n", l.Metrics.RateString())
		fmt.Fprintf(&b, "Upload batch latency %s\n\n", latencyLine(l.Latency))

		p.logger.Info().
			Str("backend", r.Backend).
			Str("table", r.Table).
			Int("partitions", l.Summary.Partitions).
			Int64("entities", l.Summary.TotalPopulation).
			Int("batches", l.Summary.TotalBatches).
			Dur("elapsed", l.Metrics.Elapsed).
			Float64("entities_per_second", l.Metrics.EntitiesPerSecond).
			Float64("avg_entity_size_bytes", l.Summary.AverageEntitySizeBytes).
			Msg("Load phase complete")
	} else {
		fmt.Fprintf(&b, "\nReusing an exported sample of %d entities\n\n", r.Query.Lookups)
	}

	q := r.Query
	fmt.Fprintf(&b, "Queried %d random entities (%.2f%% of the total) in %s\n", q.Lookups, r.QueriedPercentage(), q.Metrics.FormattedTime())
	fmt.Fprintf(&b, "Querying average of %s queries/s\n", q.Metrics.RateString())
	fmt.Fprintf(&b, "Lookup latency %s\n", latencyLine(q.Latency))

	p.logger.Info().
		Str("backend", r.Backend).
		Uint64("seed", r.Seed).
		Int64("lookups", q.Lookups).
		Int("batches", q.Batches).
		Dur("elapsed", q.Metrics.Elapsed).
		Float64("queries_per_second", q.Metrics.EntitiesPerSecond).
		Dur("p50", q.Latency.P50).
		Dur("p95", q.Latency.P95).
		Dur("p99", q.Latency.P99).
		Msg("Query phase complete")

	_, err := io.WriteString(p.w, b.String())
	return err
}

func latencyLine(s stats.Snapshot) string {
	if s.Count == 0 {
		return "n/a"
	}
	return fmt.Sprintf("p50 %.2fms p95 %.2fms p99 %.2fms max %.2fms",
		stats.Millis(s.P50), stats.Millis(s.P95), stats.Millis(s.P99), stats.Millis(s.Max))
}
