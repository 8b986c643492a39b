// Package metrics samples benchmark progress at a fixed interval into a ring
// buffer and logs it while a run is in flight.
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/basekick-labs/tablebench/internal/tablestore"
	"github.com/rs/zerolog"
)

// Source supplies the running store counters.
type Source interface {
	Counts() tablestore.Counts
}

// Point is one progress sample. Rates are per second since the previous
// sample.
type Point struct {
	Timestamp  time.Time
	Inserted   int64
	Lookups    int64
	InsertRate float64
	LookupRate float64
	HeapMB     float64
	Goroutines int
}

// Buffer is a fixed-size ring of points.
type Buffer struct {
	mu       sync.RWMutex
	points   []Point
	size     int
	writePos int
	count    int
}

func NewBuffer(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{points: make([]Point, size), size: size}
}

// Add stores p, overwriting the oldest point when full.
func (b *Buffer) Add(p Point) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.points[b.writePos] = p
	b.writePos = (b.writePos + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// Points returns the held points, oldest first.
func (b *Buffer) Points() []Point {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Point, b.count)
	for i := range b.count {
		out[i] = b.points[(b.writePos-b.count+i+b.size)%b.size]
	}
	return out
}

// Len returns the number of points held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Collector samples a Source on a ticker.
type Collector struct {
	source   Source
	interval time.Duration
	buf      *Buffer
	now      func() time.Time
	logger   zerolog.Logger

	mu                   sync.Mutex
	last                 Point
	peakInsert, peakLook float64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector keeps the last bufferSize samples of source.
func NewCollector(source Source, interval time.Duration, bufferSize int, logger zerolog.Logger) *Collector {
	c := &Collector{
		source:   source,
		interval: interval,
		buf:      NewBuffer(bufferSize),
		now:      time.Now,
		logger:   logger.With().Str("component", "progress").Logger(),
		stopCh:   make(chan struct{}),
	}
	c.last = Point{Timestamp: c.now()}
	return c
}

// Start begins sampling in the background.
func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				p := c.Sample()
				c.logger.Info().
					Int64("inserted", p.Inserted).
					Int64("lookups", p.Lookups).
					Float64("insert_rate", p.InsertRate).
					Float64("lookup_rate", p.LookupRate).
					Float64("heap_mb", p.HeapMB).
					Int("goroutines", p.Goroutines).
					Msg("Progress")
			}
		}
	}()
}

// Stop ends sampling and logs the peak and mean rates of the retained
// samples. It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()

		insert, lookup := c.Peak()
		meanInsert, meanLookup := MeanRates(c.buf.Points())
		c.logger.Info().
			Float64("peak_insert_rate", insert).
			Float64("peak_lookup_rate", lookup).
			Float64("mean_insert_rate", meanInsert).
			Float64("mean_lookup_rate", meanLookup).
			Int("samples", c.buf.Len()).
			Msg("Progress sampling stopped")
	})
}

// MeanRates averages the per-sample rates of points.
func MeanRates(points []Point) (insert, lookup float64) {
	if len(points) == 0 {
		return 0, 0
	}
	for _, p := range points {
		insert += p.InsertRate
		lookup += p.LookupRate
	}
	n := float64(len(points))
	return insert / n, lookup / n
}

// Sample records one point immediately.
func (c *Collector) Sample() Point {
	counts := c.source.Counts()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.mu.Lock()
	defer c.mu.Unlock()

	p := Point{
		Timestamp:  c.now(),
		Inserted:   counts.Inserted,
		Lookups:    counts.Lookups,
		HeapMB:     float64(mem.HeapAlloc) / 1024 / 1024,
		Goroutines: runtime.NumGoroutine(),
	}
	if dt := p.Timestamp.Sub(c.last.Timestamp).Seconds(); dt > 0 {
		p.InsertRate = float64(p.Inserted-c.last.Inserted) / dt
		p.LookupRate = float64(p.Lookups-c.last.Lookups) / dt
	}
	c.peakInsert = max(c.peakInsert, p.InsertRate)
	c.peakLook = max(c.peakLook, p.LookupRate)
	c.last = p

	c.buf.Add(p)
	return p
}

// Peak returns the highest insert and lookup rates sampled so far.
func (c *Collector) Peak() (insert, lookup float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakInsert, c.peakLook
}
