package execution

import (
	"sync"
	"testing"
	"time"

	"github.com/cuemby/booster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddExecutions(t *testing.T) {
	r := NewRegistry()
	r.AddExecutions(map[string]types.Operation{
		"a": types.OperationApply,
		"b": types.OperationRevert,
	})

	recs := r.Snapshot()
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, types.StatusQueued, rec.Status)
		assert.Equal(t, 0, rec.Progress)
		assert.True(t, rec.CanCancel)
		assert.Nil(t, rec.StartedAt)
		assert.Nil(t, rec.CompletedAt)
	}
	assert.Equal(t, "a", recs[0].BoosterID)
	assert.Equal(t, types.OperationRevert, recs[1].Operation)
	assert.True(t, r.InFlight())
}

func TestUpdateExecutionTimestamps(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	r := NewRegistry(WithClock(func() time.Time { return now }))
	r.AddExecutions(map[string]types.Operation{"a": types.OperationApply})

	require.NoError(t, r.UpdateExecution("a", types.StatusUpdate(types.StatusProcessing).WithProgress(10)))
	rec, _ := r.Get("a")
	require.NotNil(t, rec.StartedAt)
	assert.Equal(t, now, *rec.StartedAt)
	assert.True(t, rec.CanCancel)

	started := now
	now = now.Add(time.Minute)
	require.NoError(t, r.UpdateExecution("a", types.StatusUpdate(types.StatusProcessing).WithProgress(50)))
	rec, _ = r.Get("a")
	assert.Equal(t, started, *rec.StartedAt)

	require.NoError(t, r.UpdateExecution("a", types.StatusUpdate(types.StatusCompleted).WithProgress(100)))
	rec, _ = r.Get("a")
	require.NotNil(t, rec.CompletedAt)
	completed := *rec.CompletedAt
	assert.False(t, rec.CanCancel)
	assert.Equal(t, 100, rec.Progress)

	// completed is final: a late error changes nothing
	now = now.Add(time.Minute)
	err := r.UpdateExecution("a", types.StatusUpdate(types.StatusError).WithError("late"))
	assert.ErrorIs(t, err, ErrSettled)
	rec, _ = r.Get("a")
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, completed, *rec.CompletedAt)
	assert.False(t, rec.CanCancel)
	assert.Empty(t, rec.Error)
}

func TestSettledRecords(t *testing.T) {
	tests := []struct {
		name    string
		from    types.ExecutionStatus
		update  types.ExecutionUpdate
		wantErr bool
		want    types.ExecutionStatus
	}{
		{"cancelled takes backend success", types.StatusCancelled, types.StatusUpdate(types.StatusCompleted).WithProgress(100), false, types.StatusCompleted},
		{"cancelled takes backend failure", types.StatusCancelled, types.StatusUpdate(types.StatusError).WithError("boom"), false, types.StatusError},
		{"cancelled never reactivates", types.StatusCancelled, types.StatusUpdate(types.StatusProcessing), true, types.StatusCancelled},
		{"completed never reactivates", types.StatusCompleted, types.StatusUpdate(types.StatusProcessing).WithProgress(20), true, types.StatusCompleted},
		{"completed ignores progress", types.StatusCompleted, types.ExecutionUpdate{}.WithProgress(10), true, types.StatusCompleted},
		{"error is final", types.StatusError, types.StatusUpdate(types.StatusCompleted), true, types.StatusError},
		{"operation id still recorded", types.StatusCompleted, types.ExecutionUpdate{}.WithOperationID("op-1"), false, types.StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.AddExecutions(map[string]types.Operation{"a": types.OperationApply})
			if tt.from == types.StatusCancelled {
				require.NoError(t, r.Cancel("a"))
			} else {
				require.NoError(t, r.UpdateExecution("a", types.StatusUpdate(tt.from)))
			}
			before, _ := r.Get("a")

			err := r.UpdateExecution("a", tt.update)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSettled)
			} else {
				assert.NoError(t, err)
			}

			rec, _ := r.Get("a")
			assert.Equal(t, tt.want, rec.Status)
			assert.False(t, rec.CanCancel)
			assert.Equal(t, *before.CompletedAt, *rec.CompletedAt)
		})
	}
}

func TestUpdateExecutionClampsProgress(t *testing.T) {
	r := NewRegistry()
	r.AddExecutions(map[string]types.Operation{"a": types.OperationApply})

	require.NoError(t, r.UpdateExecution("a", types.ExecutionUpdate{}.WithProgress(150)))
	rec, _ := r.Get("a")
	assert.Equal(t, 100, rec.Progress)

	require.NoError(t, r.UpdateExecution("a", types.ExecutionUpdate{}.WithProgress(-4)))
	rec, _ = r.Get("a")
	assert.Equal(t, 0, rec.Progress)
}

func TestUpdateExecutionUnknown(t *testing.T) {
	r := NewRegistry()
	err := r.UpdateExecution("missing", types.StatusUpdate(types.StatusCompleted))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name    string
		status  types.ExecutionStatus
		wantErr error
	}{
		{"queued", types.StatusQueued, nil},
		{"processing", types.StatusProcessing, nil},
		{"completed", types.StatusCompleted, ErrNotCancellable},
		{"error", types.StatusError, ErrNotCancellable},
		{"cancelled", types.StatusCancelled, ErrNotCancellable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.AddExecutions(map[string]types.Operation{"a": types.OperationApply})
			if tt.status != types.StatusQueued {
				require.NoError(t, r.UpdateExecution("a", types.StatusUpdate(tt.status)))
			}

			err := r.Cancel("a")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				rec, _ := r.Get("a")
				assert.Equal(t, tt.status, rec.Status)
				return
			}
			require.NoError(t, err)
			rec, _ := r.Get("a")
			assert.Equal(t, types.StatusCancelled, rec.Status)
			assert.False(t, rec.CanCancel)
			assert.NotNil(t, rec.CompletedAt)
		})
	}
}

func TestRemoveExecutionsOnlyIdle(t *testing.T) {
	r := NewRegistry()
	r.AddExecutions(map[string]types.Operation{
		"idle":   types.OperationApply,
		"queued": types.OperationApply,
		"done":   types.OperationApply,
	})
	require.NoError(t, r.UpdateExecution("idle", types.StatusUpdate(types.StatusIdle)))
	require.NoError(t, r.UpdateExecution("done", types.StatusUpdate(types.StatusCompleted)))

	removed := r.RemoveExecutions([]string{"idle", "queued", "done", "missing"})
	assert.Equal(t, 1, removed)

	_, ok := r.Get("idle")
	assert.False(t, ok)
	_, ok = r.Get("queued")
	assert.True(t, ok)
	_, ok = r.Get("done")
	assert.True(t, ok)
}

func TestDerivedViews(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.MeanProgress())
	assert.False(t, r.InFlight())

	r.AddExecutions(map[string]types.Operation{
		"a": types.OperationApply,
		"b": types.OperationApply,
	})
	require.NoError(t, r.UpdateExecution("a", types.StatusUpdate(types.StatusCompleted).WithProgress(100)))
	require.NoError(t, r.UpdateExecution("b", types.StatusUpdate(types.StatusProcessing).WithProgress(40)))

	assert.Equal(t, 70, r.MeanProgress())
	assert.Equal(t, map[types.ExecutionStatus]int{
		types.StatusCompleted:  1,
		types.StatusProcessing: 1,
	}, r.Counts())
	assert.Equal(t, []string{"b"}, r.ActiveIDs())
	assert.True(t, r.InFlight())

	require.NoError(t, r.UpdateExecution("b", types.StatusUpdate(types.StatusError)))
	assert.False(t, r.InFlight())
}

func TestBatchLifecycle(t *testing.T) {
	r := NewRegistry(WithBatchRetention(100 * time.Millisecond))
	r.AddExecutions(map[string]types.Operation{
		"a": types.OperationApply,
		"b": types.OperationApply,
	})

	b := r.StartBatch([]string{"b", "a"})
	require.NotNil(t, b)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, []string{"a", "b"}, b.BoosterIDs)
	assert.Equal(t, types.BatchQueued, b.Status)

	require.NoError(t, r.SetBatchStatus(b.ID, types.BatchProcessing, ""))
	require.NoError(t, r.UpdateExecution("a", types.ExecutionUpdate{}.WithProgress(50)))

	current := r.Batch()
	require.NotNil(t, current)
	assert.Equal(t, types.BatchProcessing, current.Status)
	assert.NotNil(t, current.StartedAt)
	assert.Equal(t, 25, current.Progress)

	assert.ErrorIs(t, r.SetBatchStatus("other", types.BatchCompleted, ""), ErrNotFound)

	require.NoError(t, r.SetBatchStatus(b.ID, types.BatchCompleted, ""))
	assert.NotNil(t, r.Batch().CompletedAt)

	assert.Eventually(t, func() bool {
		return r.Batch() == nil
	}, time.Second, 5*time.Millisecond)

	// records outlive the batch display window
	assert.Len(t, r.Snapshot(), 2)
}

func TestClear(t *testing.T) {
	r := NewRegistry()
	r.AddExecutions(map[string]types.Operation{"a": types.OperationApply})
	r.StartBatch([]string{"a"})
	before := r.Version()

	r.Clear()
	assert.Empty(t, r.Snapshot())
	assert.Nil(t, r.Batch())
	assert.Greater(t, r.Version(), before)
}

func TestOnChange(t *testing.T) {
	r := NewRegistry()

	var mu sync.Mutex
	var seen []types.ExecutionStatus
	var firstPrev *types.ExecutionRecord
	calls := 0
	r.OnChange(func(prev, next *types.ExecutionRecord) {
		mu.Lock()
		defer mu.Unlock()
		if calls == 0 {
			firstPrev = prev
		}
		calls++
		seen = append(seen, next.Status)
	})

	r.AddExecutions(map[string]types.Operation{"a": types.OperationApply})
	require.NoError(t, r.UpdateExecution("a", types.StatusUpdate(types.StatusProcessing)))
	require.NoError(t, r.Cancel("a"))

	mu.Lock()
	defer mu.Unlock()
	assert.Nil(t, firstPrev)
	assert.Equal(t, []types.ExecutionStatus{
		types.StatusQueued,
		types.StatusProcessing,
		types.StatusCancelled,
	}, seen)
}

func TestSnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.AddExecutions(map[string]types.Operation{"a": types.OperationApply})

	recs := r.Snapshot()
	recs[0].Status = types.StatusError

	rec, _ := r.Get("a")
	assert.Equal(t, types.StatusQueued, rec.Status)
}
