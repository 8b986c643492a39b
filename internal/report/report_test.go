package report

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/basekick-labs/tablebench/internal/loader"
	"github.com/basekick-labs/tablebench/internal/query"
	"github.com/basekick-labs/tablebench/internal/stats"
	"github.com/basekick-labs/tablebench/internal/timing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() Run {
	return Run{
		Backend: "memory",
		Table:   "ItaliansRegion",
		Seed:    42,
		Load: &LoadPhase{
			Summary: loader.Summary{
				Partitions:             2,
				TotalPopulation:        300,
				TotalBatches:           4,
				SampleSize:             3,
				AverageEntitySizeBytes: 512.345,
			},
			Metrics: timing.Throughput(300, 1500*time.Millisecond),
			Latency: stats.Snapshot{Count: 4, P50: time.Millisecond, P95: 2 * time.Millisecond, P99: 3 * time.Millisecond, Max: 3 * time.Millisecond},
		},
		Query: query.Result{
			Batches: 1,
			Lookups: 3,
			Metrics: timing.Throughput(3, 3*time.Second),
			Latency: stats.Snapshot{Count: 3, P50: 500 * time.Microsecond, P95: time.Millisecond, P99: time.Millisecond, Max: time.Millisecond},
		},
		Population: 300,
	}
}

func TestPrinter_Print(t *testing.T) {
	var out, logs bytes.Buffer
	p := NewPrinter(&out, zerolog.New(&logs))

	require.NoError(t, p.Print(sampleRun()))

	text := out.String()
	assert.Contains(t, text, "Uploading 300 entities to memory took: 00hrs 00min 01s 500ms")
	assert.Contains(t, text, "Average entity size 0.51 KB")
	assert.Contains(t, text, "Uploading average of 200.00 entities/s")
	assert.Contains(t, text, "Queried 3 random entities (1.00% of the total)")
	assert.Contains(t, text, "Querying average of 1.00 queries/s")
	assert.Contains(t, text, "p50 0.50ms p95 1.00ms p99 1.00ms")

	assert.Contains(t, logs.String(), `"message":"Load phase complete"`)
	assert.Contains(t, logs.String(), `"queries_per_second":1`)
}

func TestPrinter_ReusedSample(t *testing.T) {
	var out bytes.Buffer
	r := sampleRun()
	r.Load = nil

	require.NoError(t, NewPrinter(&out, zerolog.Nop()).Print(r))
	assert.NotContains(t, out.String(), "Uploading")
	assert.NotContains(t, out.String(), "--- Loaded")
	assert.Contains(t, out.String(), "Reusing an exported sample of 3 entities")
}

func TestPrinter_HeaderOnlyLogs(t *testing.T) {
	var out, logs bytes.Buffer
	NewPrinter(&out, zerolog.New(&logs)).Header("sqlite", 20, 60483973)

	assert.Empty(t, out.String(), "header must not write to the report before the run succeeds")
	assert.Contains(t, logs.String(), `"backend":"sqlite"`)
	assert.Contains(t, logs.String(), `"partitions":20`)
	assert.Contains(t, logs.String(), `"entities":60483973`)
}

func TestPrinter_PrintStartsWithBanner(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, NewPrinter(&out, zerolog.Nop()).Print(sampleRun()))

	assert.True(t, strings.HasPrefix(out.String(),
		"--- Table Storage Performance Test (memory) ---\n--- Loaded 300 entities split into 2 partitions ---\n\n"))
}

func TestRun_QueriedPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Run{}.QueriedPercentage())
	r := Run{Population: 200, Query: query.Result{Lookups: 2}}
	assert.InDelta(t, 1.0, r.QueriedPercentage(), 1e-9)
}

func TestPusher_Push(t *testing.T) {
	var (
		method, path string
		body         []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPusher(srv.URL, "", zerolog.Nop())
	require.NoError(t, p.Push(context.Background(), sampleRun()))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/tablebench/backend/memory", path)
	for _, name := range []string{"tablebench_load_entities", "tablebench_query_lookups_per_second", "tablebench_query_latency_seconds"} {
		assert.True(t, strings.Contains(string(body), name), "missing %s", name)
	}
}

func TestPusher_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewPusher(srv.URL, "job", zerolog.Nop()).Push(context.Background(), sampleRun())
	assert.Error(t, err)
}
