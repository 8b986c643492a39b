package timing

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by step on every call.
func fakeClock(step time.Duration) func() time.Time {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func TestTimer_Measure(t *testing.T) {
	timer := Timer{Now: fakeClock(250 * time.Millisecond)}

	called := false
	d, err := timer.Measure(func() error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, 250*time.Millisecond, d)
}

func TestTimer_MeasureReturnsErrorAndDuration(t *testing.T) {
	timer := Timer{Now: fakeClock(time.Second)}
	boom := errors.New("boom")

	d, err := timer.Measure(func() error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, time.Second, d)
}

func TestMeasure(t *testing.T) {
	calls := 0
	d, err := Measure(func() error {
		calls++
		time.Sleep(time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.GreaterOrEqual(t, d, time.Millisecond)

	boom := errors.New("boom")
	_, err = Measure(func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestMeasureValue(t *testing.T) {
	v, d, err := MeasureValue(func() (int, error) { return 7, nil })

	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.GreaterOrEqual(t, d, time.Duration(0))
}

func TestThroughput(t *testing.T) {
	tests := []struct {
		name       string
		count      int64
		elapsed    time.Duration
		wantRate   float64
		measurable bool
	}{
		{"whole seconds", 1000, 2 * time.Second, 500, true},
		{"sub second", 150, 300 * time.Millisecond, 500, true},
		{"minutes are counted", 1200, 2*time.Minute + 30*time.Second, 8, true},
		{"zero elapsed", 10, 0, 0, false},
		{"negative count clamps", -5, time.Second, 0, true},
		{"zero count", 0, time.Second, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Throughput(tt.count, tt.elapsed)
			assert.Equal(t, tt.measurable, m.Measurable)
			assert.InDelta(t, tt.wantRate, m.EntitiesPerSecond, 1e-9)
			assert.False(t, math.IsInf(m.EntitiesPerSecond, 0))
			assert.False(t, math.IsNaN(m.EntitiesPerSecond))
			assert.GreaterOrEqual(t, m.EntitiesPerSecond, 0.0)
		})
	}
}

func TestRunMetrics_Strings(t *testing.T) {
	m := Throughput(1, 0)
	assert.Equal(t, "not measurable", m.RateString())

	m = Throughput(10, 4*time.Second)
	assert.Equal(t, "2.50", m.RateString())
	assert.Equal(t, "00hrs 00min 04s 000ms", m.FormattedTime())
}

func TestFormatDuration(t *testing.T) {
	d := 26*time.Hour + 3*time.Minute + 9*time.Second + 45*time.Millisecond
	assert.Equal(t, "26hrs 03min 09s 045ms", FormatDuration(d))
	assert.Equal(t, "00hrs 00min 00s 000ms", FormatDuration(-time.Second))
}
