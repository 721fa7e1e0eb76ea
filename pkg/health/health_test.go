package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/booster/pkg/metrics"
	"github.com/cuemby/booster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu  sync.Mutex
	err error
}

func (f *fakeQueue) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeQueue) GetExecutionQueueState(ctx context.Context) (*types.QueueState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &types.QueueState{Items: []types.QueueItem{{BoosterID: "a"}}, InProgress: 1}, nil
}

func TestStatusUpdate(t *testing.T) {
	cfg := Config{Retries: 2}
	tests := []struct {
		name        string
		results     []bool
		wantHealthy bool
		wantFlipped bool
	}{
		{"single success", []bool{true}, true, false},
		{"one failure below threshold", []bool{false}, true, false},
		{"failures reach threshold", []bool{false, false}, false, true},
		{"recovery after unhealthy", []bool{false, false, true}, true, true},
		{"success resets count", []bool{false, true, false}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStatus()
			var flipped bool
			for _, healthy := range tt.results {
				flipped = s.Update(Result{Healthy: healthy, CheckedAt: time.Now()}, cfg)
			}
			assert.Equal(t, tt.wantHealthy, s.Healthy)
			assert.Equal(t, tt.wantFlipped, flipped)
		})
	}
}

func TestBackendChecker(t *testing.T) {
	q := &fakeQueue{}
	checker := NewBackendChecker(q)

	res := checker.Check(context.Background())
	assert.True(t, res.Healthy)
	assert.Equal(t, "1 queued, 1 in progress", res.Message)

	q.setErr(errors.New("connection refused"))
	res = checker.Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Message, "connection refused")
}

func TestMonitorTransitions(t *testing.T) {
	q := &fakeQueue{}
	m := NewMonitor("probe-test", NewBackendChecker(q), Config{Interval: time.Hour, Retries: 2})

	var mu sync.Mutex
	var changes []bool
	m.OnChange(func(healthy bool) {
		mu.Lock()
		changes = append(changes, healthy)
		mu.Unlock()
	})

	q.setErr(errors.New("down"))
	m.CheckNow()
	assert.True(t, m.Status().Healthy)
	status := m.CheckNow()
	assert.False(t, status.Healthy)
	assert.Equal(t, 2, status.Failures)
	assert.False(t, status.Since.IsZero())

	assert.Contains(t, metrics.GetHealth().Components["probe-test"], "unhealthy: queue poll failed")

	q.setErr(nil)
	assert.True(t, m.CheckNow().Healthy)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true}, changes)
}

func TestMonitorPeriodic(t *testing.T) {
	q := &fakeQueue{}
	q.setErr(errors.New("down"))
	m := NewMonitor("probe-periodic", NewBackendChecker(q), Config{Interval: 10 * time.Millisecond, Retries: 1})

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		return !m.Status().Healthy
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
}
