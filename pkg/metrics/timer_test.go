package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type observerFunc func(float64)

func (f observerFunc) Observe(v float64) { f(v) }

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	d := timer.Duration()
	assert.GreaterOrEqual(t, d, 20*time.Millisecond)
	assert.Less(t, d, time.Second)
}

func TestTimerObserveDuration(t *testing.T) {
	var got []float64
	obs := observerFunc(func(v float64) { got = append(got, v) })

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	timer.ObserveDuration(obs)

	if assert.Len(t, got, 1) {
		assert.GreaterOrEqual(t, got[0], 0.01)
		assert.Less(t, got[0], 1.0)
	}
}

func TestTimerWithHistogram(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "booster_test_sync_seconds",
		Help:    "test histogram",
		Buckets: []float64{0.001, 0.01, 0.1, 1},
	})

	NewTimer().ObserveDuration(h)
	assert.Equal(t, 1, testutil.CollectAndCount(h))
}
