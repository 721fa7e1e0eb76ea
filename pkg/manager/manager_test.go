package manager

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/booster/pkg/backend/memory"
	"github.com/cuemby/booster/pkg/config"
	"github.com/cuemby/booster/pkg/events"
	"github.com/cuemby/booster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItems() []*types.BoosterItem {
	return []*types.BoosterItem{
		{ID: "a", Name: "A", Category: "test", Reversible: true, RiskLevel: types.RiskLow},
		{ID: "b", Name: "B", Category: "test", Reversible: true, RiskLevel: types.RiskLow, IsApplied: true},
		{ID: "c", Name: "C", Category: "test", Reversible: true, RiskLevel: types.RiskLow},
	}
}

func testConfig(t *testing.T, withHistory bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Catalog.Categories = []string{"test"}
	cfg.Executor.CallDelay = 0
	cfg.Reconciler.Interval = time.Hour
	if withHistory {
		cfg.DataDir = t.TempDir()
	}
	return cfg
}

func startManager(t *testing.T, withHistory bool) (*Manager, *memory.Backend) {
	t.Helper()
	b := memory.New(testItems(), memory.Options{})
	m, err := NewManager(b, testConfig(t, withHistory))
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, m.Shutdown())
		b.Stop()
	})

	require.Eventually(t, func() bool {
		return b.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)
	return m, b
}

func drain(b *memory.Backend) {
	for b.Step() {
	}
}

func recordStatus(m *Manager, id string) types.ExecutionStatus {
	rec, ok := m.registry.Get(id)
	if !ok {
		return ""
	}
	return rec.Status
}

func TestStartLoadsCatalog(t *testing.T) {
	m, _ := startManager(t, false)

	view := m.View()
	require.Len(t, view.Items, 3)
	assert.Empty(t, view.Staged)
	assert.False(t, view.HasChanges)
	assert.False(t, view.InFlight)

	applied, notApplied := m.CatalogCounts()
	assert.Equal(t, 1, applied)
	assert.Equal(t, 2, notApplied)
}

func TestApplyAndRevertEndToEnd(t *testing.T) {
	m, b := startManager(t, true)
	ctx := context.Background()

	op, err := m.Toggle("a")
	require.NoError(t, err)
	assert.Equal(t, types.OperationApply, op)
	op, err = m.Toggle("b")
	require.NoError(t, err)
	assert.Equal(t, types.OperationRevert, op)
	assert.Equal(t, 2, m.StagedCount())

	report, err := m.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Submitted)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, m.StagedCount())
	assert.Equal(t, types.StatusQueued, recordStatus(m, "a"))
	assert.Equal(t, types.StatusQueued, recordStatus(m, "b"))

	drain(b)
	_, err = m.Sync(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return recordStatus(m, "a") == types.StatusCompleted &&
			recordStatus(m, "b") == types.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	item, ok := m.catalog.Get("a")
	require.True(t, ok)
	assert.True(t, item.IsApplied)
	assert.NotNil(t, item.AppliedAt)

	item, ok = m.catalog.Get("b")
	require.True(t, ok)
	assert.False(t, item.IsApplied)
	assert.NotNil(t, item.RevertedAt)

	rec, _ := m.registry.Get("a")
	assert.Equal(t, 100, rec.Progress)
	assert.NotEmpty(t, rec.OperationID)

	history, err := m.History("a", 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, types.StatusCompleted, history[0].Record.Status)
	assert.Equal(t, report.Batch.ID, history[0].BatchID)

	all, err := m.History("", 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(all), 2)

	batches, err := m.history.ListBatches(0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, report.Batch.ID, batches[0].Batch.ID)
}

func dropAllEvents(types.BoosterEvent) []types.BoosterEvent { return nil }

func pushEvent(m *Manager, id string, typ types.EventType, seq int64, idem string) {
	m.pipeline.Handle(types.BoosterEvent{
		EventType:     typ,
		BoosterID:     id,
		Sequence:      seq,
		IdempotencyID: idem,
		Timestamp:     time.Now(),
	})
}

func TestStagedBatchStepByStep(t *testing.T) {
	m, b := startManager(t, false)
	b.SetEventFilter(dropAllEvents)

	require.NoError(t, m.Stage("a", types.OperationApply))
	require.NoError(t, m.Stage("b", types.OperationRevert))
	view := m.View()
	assert.True(t, view.HasChanges)
	assert.Equal(t, 2, m.StagedCount())

	_, err := m.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, m.StagedCount())

	view = m.View()
	require.Len(t, view.Executions, 2)
	for _, rec := range view.Executions {
		assert.Equal(t, types.StatusQueued, rec.Status, rec.BoosterID)
		assert.True(t, rec.CanCancel)
	}

	pushEvent(m, "a", types.EventProcessing, 1, "e1")
	rec, _ := m.registry.Get("a")
	assert.Equal(t, types.StatusProcessing, rec.Status)
	assert.NotNil(t, rec.StartedAt)
	assert.Nil(t, rec.CompletedAt)

	pushEvent(m, "a", types.EventSuccess, 2, "e2")
	rec, _ = m.registry.Get("a")
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.NotNil(t, rec.CompletedAt)
	assert.False(t, rec.CanCancel)

	item, _ := m.catalog.Get("a")
	assert.True(t, item.IsApplied)
	assert.Equal(t, types.StatusQueued, recordStatus(m, "b"))
}

func TestCancelledExecutionTakesBackendOutcome(t *testing.T) {
	m, b := startManager(t, false)
	b.SetEventFilter(dropAllEvents)

	require.NoError(t, m.Stage("a", types.OperationApply))
	_, err := m.Execute(context.Background())
	require.NoError(t, err)

	pushEvent(m, "a", types.EventProcessing, 1, "e1")
	require.NoError(t, m.Cancel("a"))

	// progress after a local cancel does not reopen the record
	pushEvent(m, "a", types.EventProcessing, 2, "e2")
	assert.Equal(t, types.StatusCancelled, recordStatus(m, "a"))

	// the backend finished anyway
	pushEvent(m, "a", types.EventSuccess, 3, "e3")
	assert.Equal(t, types.StatusCompleted, recordStatus(m, "a"))

	item, _ := m.catalog.Get("a")
	assert.True(t, item.IsApplied)

	op, err := m.Toggle("a")
	require.NoError(t, err)
	assert.Equal(t, types.OperationRevert, op)
}

func TestRejectedItemDoesNotStopBatch(t *testing.T) {
	m, b := startManager(t, false)
	ctx := context.Background()
	b.RejectExecute("a", "insufficient privileges")

	require.NoError(t, m.Stage("a", types.OperationApply))
	require.NoError(t, m.Stage("c", types.OperationApply))

	report, err := m.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 1, report.Failed)

	rec, ok := m.registry.Get("a")
	require.True(t, ok)
	assert.Equal(t, types.StatusError, rec.Status)
	assert.Equal(t, "insufficient privileges", rec.Error)

	drain(b)
	_, err = m.Sync(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return recordStatus(m, "c") == types.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	applied, ok := m.catalog.IsApplied("a")
	require.True(t, ok)
	assert.False(t, applied)
}

func TestLostEventsRecoveredBySync(t *testing.T) {
	m, b := startManager(t, false)
	ctx := context.Background()

	b.SetEventFilter(func(ev types.BoosterEvent) []types.BoosterEvent {
		if ev.BoosterID == "a" {
			return nil
		}
		return []types.BoosterEvent{ev}
	})

	require.NoError(t, m.Stage("a", types.OperationApply))
	_, err := m.Execute(ctx)
	require.NoError(t, err)
	drain(b)

	res, err := m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Returned)

	require.Eventually(t, func() bool {
		return recordStatus(m, "a") == types.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	applied, _ := m.catalog.IsApplied("a")
	assert.True(t, applied)
	assert.NotNil(t, m.View().LastSync)
}

func TestCancelAndReset(t *testing.T) {
	m, _ := startManager(t, false)
	ctx := context.Background()

	require.NoError(t, m.Stage("a", types.OperationApply))
	_, err := m.Execute(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Cancel("a"))
	assert.Equal(t, types.StatusCancelled, recordStatus(m, "a"))

	require.NoError(t, m.Stage("c", types.OperationApply))
	m.Reset()

	view := m.View()
	assert.Empty(t, view.Staged)
	assert.Empty(t, view.Executions)
	assert.Nil(t, view.Batch)
}

func TestExecuteNothingStaged(t *testing.T) {
	m, _ := startManager(t, false)

	_, err := m.Execute(context.Background())
	assert.Error(t, err)
}

func TestHistoryDisabled(t *testing.T) {
	m, _ := startManager(t, false)

	_, err := m.History("", 10)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}

func TestNotificationsPublished(t *testing.T) {
	m, b := startManager(t, false)
	sub := m.Subscribe()
	defer m.Unsubscribe(sub)

	require.NoError(t, m.Stage("a", types.OperationApply))
	_, err := m.Execute(context.Background())
	require.NoError(t, err)
	drain(b)

	seen := make(map[events.EventType]bool)
	timeout := time.After(2 * time.Second)
	for !(seen[events.EventBatchStarted] && seen[events.EventBatchCompleted] && seen[events.EventExecutionUpdated]) {
		select {
		case ev := <-sub:
			seen[ev.Type] = true
		case <-timeout:
			t.Fatalf("missing notifications, saw %v", seen)
		}
	}
}

func TestWaitIdle(t *testing.T) {
	m, b := startManager(t, false)
	ctx := context.Background()

	require.NoError(t, m.Stage("c", types.OperationApply))
	_, err := m.Execute(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.WaitIdle(short, 10*time.Millisecond), context.DeadlineExceeded)

	drain(b)
	waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
	defer cancelWait()
	assert.NoError(t, m.WaitIdle(waitCtx, 10*time.Millisecond))
}

func TestCollectMetrics(t *testing.T) {
	m, _ := startManager(t, false)
	require.NoError(t, m.Stage("a", types.OperationApply))

	assert.NotPanics(t, m.CollectMetrics)
	assert.Equal(t, 1, m.StagedCount())
	assert.Empty(t, m.ExecutionCounts()[types.StatusProcessing])
}

func TestShutdownIdempotent(t *testing.T) {
	b := memory.New(testItems(), memory.Options{})
	defer b.Stop()
	m, err := NewManager(b, testConfig(t, true))
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())
	assert.Error(t, m.Start(context.Background()))
}
