// Package timing measures phase wall time and turns it into throughput.
package timing

import (
	"fmt"
	"time"
)

// RunMetrics is the aggregate timing output of one phase.
type RunMetrics struct {
	Elapsed           time.Duration
	EntityCount       int64
	EntitiesPerSecond float64
	// Measurable is false when the elapsed time was zero and no rate exists.
	Measurable bool
}

// Timer measures operations against an injectable clock.
type Timer struct {
	Now func() time.Time
}

// Default uses the wall clock.
var Default = Timer{Now: time.Now}

func (t Timer) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

// Measure runs op and returns how long it took. The duration is returned
// even when op fails.
func (t Timer) Measure(op func() error) (time.Duration, error) {
	start := t.now()
	err := op()
	return t.now().Sub(start), err
}

// Measure runs op with the wall clock.
func Measure(op func() error) (time.Duration, error) {
	return Default.Measure(op)
}

// MeasureValue runs op with the wall clock and returns its value and duration.
func MeasureValue[T any](op func() (T, error)) (T, time.Duration, error) {
	var v T
	d, err := Default.Measure(func() error {
		var opErr error
		v, opErr = op()
		return opErr
	})
	return v, d, err
}

// Throughput converts an entity count and elapsed time into entities per
// second, using the full sub-second precision of elapsed. A non-positive
// elapsed time yields a non-measurable result instead of Inf or NaN.
func Throughput(entityCount int64, elapsed time.Duration) RunMetrics {
	if entityCount < 0 {
		entityCount = 0
	}
	m := RunMetrics{
		Elapsed:     elapsed,
		EntityCount: entityCount,
	}
	if elapsed <= 0 {
		return m
	}
	m.EntitiesPerSecond = float64(entityCount) / elapsed.Seconds()
	m.Measurable = true
	return m
}

// FormattedTime renders the elapsed time as "00hrs 00min 00s 000ms".
func (m RunMetrics) FormattedTime() string {
	return FormatDuration(m.Elapsed)
}

// RateString renders the throughput with two decimals.
func (m RunMetrics) RateString() string {
	if !m.Measurable {
		return "not measurable"
	}
	return fmt.Sprintf("%.2f", m.EntitiesPerSecond)
}

// FormatDuration renders d as hours, minutes, seconds and milliseconds.
// Hours are not wrapped at 24.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	millis := d / time.Millisecond
	return fmt.Sprintf("%02dhrs %02dmin %02ds %03dms", int64(hours), int64(minutes), int64(seconds), int64(millis))
}
