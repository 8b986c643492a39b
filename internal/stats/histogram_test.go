package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHistogram_Empty(t *testing.T) {
	h := NewHistogram()
	assert.Equal(t, Snapshot{}, h.Snapshot())
}

func TestHistogram_Percentiles(t *testing.T) {
	h := NewHistogram()
	for i := 1; i <= 100; i++ {
		h.Record(time.Duration(i) * time.Millisecond)
	}

	s := h.Snapshot()
	assert.Equal(t, int64(100), s.Count)
	assert.InDelta(t, 50, Millis(s.P50), 1)
	assert.InDelta(t, 95, Millis(s.P95), 1)
	assert.InDelta(t, 99, Millis(s.P99), 1)
	assert.InDelta(t, 100, Millis(s.Max), 1)
	assert.InDelta(t, 50.5, Millis(s.Mean), 1)
}

func TestHistogram_ClampsOutOfRange(t *testing.T) {
	h := NewHistogram()
	h.Record(0)
	h.Record(time.Hour)

	s := h.Snapshot()
	assert.Equal(t, int64(2), s.Count)
	assert.LessOrEqual(t, s.Max, 11*time.Minute)
}

func TestHistogram_Concurrent(t *testing.T) {
	h := NewHistogram()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h.Record(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(8000), h.Snapshot().Count)
}
