package report

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"
)

// Pusher publishes run results to a Prometheus Pushgateway.
type Pusher struct {
	url    string
	job    string
	logger zerolog.Logger
}

func NewPusher(url, job string, logger zerolog.Logger) *Pusher {
	if job == "" {
		job = "tablebench"
	}
	return &Pusher{
		url:    url,
		job:    job,
		logger: logger.With().Str("component", "pusher").Logger(),
	}
}

// Push replaces the metrics grouped under this job and backend.
func (p *Pusher) Push(ctx context.Context, r Run) error {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, v float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "tablebench", Name: name, Help: help})
		g.Set(v)
		reg.MustRegister(g)
	}

	if l := r.Load; l != nil {
		gauge("load_entities", "Entities inserted by the load phase.", float64(l.Summary.TotalPopulation))
		gauge("load_batches", "Batches inserted by the load phase.", float64(l.Summary.TotalBatches))
		gauge("load_duration_seconds", "Wall time of the load phase.", l.Metrics.Elapsed.Seconds())
		gauge("load_entities_per_second", "Load phase throughput.", l.Metrics.EntitiesPerSecond)
		gauge("load_avg_entity_size_bytes", "Average estimated entity size.", l.Summary.AverageEntitySizeBytes)
	}
	gauge("query_lookups", "Point lookups issued by the query phase.", float64(r.Query.Lookups))
	gauge("query_duration_seconds", "Wall time of the query phase.", r.Query.Metrics.Elapsed.Seconds())
	gauge("query_lookups_per_second", "Query phase throughput.", r.Query.Metrics.EntitiesPerSecond)

	latency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tablebench",
		Name:      "query_latency_seconds",
		Help:      "Lookup latency quantiles.",
	}, []string{"quantile"})
	latency.WithLabelValues("0.5").Set(r.Query.Latency.P50.Seconds())
	latency.WithLabelValues("0.95").Set(r.Query.Latency.P95.Seconds())
	latency.WithLabelValues("0.99").Set(r.Query.Latency.P99.Seconds())
	reg.MustRegister(latency)

	err := push.New(p.url, p.job).
		Gatherer(reg).
		Grouping("backend", r.Backend).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", p.url, err)
	}
	p.logger.Info().Str("url", p.url).Str("job", p.job).Msg("Pushed run metrics")
	return nil
}
