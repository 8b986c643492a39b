package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram is a goroutine-safe latency histogram in microseconds.
type Histogram struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// NewHistogram tracks 1us to 10min with 3 significant figures.
func NewHistogram() *Histogram {
	return &Histogram{
		hist: hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
	}
}

// Record adds one latency sample. Values outside the trackable range are
// clamped so a single outlier never gets dropped.
func (h *Histogram) Record(d time.Duration) {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if us > h.hist.HighestTrackableValue() {
		us = h.hist.HighestTrackableValue()
	}
	_ = h.hist.RecordValue(us)
}

// Snapshot is a point-in-time summary of a Histogram.
type Snapshot struct {
	Count int64
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Snapshot summarizes what has been recorded so far.
func (h *Histogram) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hist.TotalCount() == 0 {
		return Snapshot{}
	}
	return Snapshot{
		Count: h.hist.TotalCount(),
		Mean:  time.Duration(h.hist.Mean() * float64(time.Microsecond)),
		P50:   usToDuration(h.hist.ValueAtQuantile(50)),
		P95:   usToDuration(h.hist.ValueAtQuantile(95)),
		P99:   usToDuration(h.hist.ValueAtQuantile(99)),
		Max:   usToDuration(h.hist.Max()),
	}
}

func usToDuration(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}

// Millis renders a duration as fractional milliseconds for reports.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
