package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/booster/pkg/backend"
	"github.com/cuemby/booster/pkg/catalog"
	"github.com/cuemby/booster/pkg/config"
	"github.com/cuemby/booster/pkg/events"
	"github.com/cuemby/booster/pkg/execution"
	"github.com/cuemby/booster/pkg/executor"
	"github.com/cuemby/booster/pkg/health"
	"github.com/cuemby/booster/pkg/ingest"
	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/metrics"
	"github.com/cuemby/booster/pkg/reconciler"
	"github.com/cuemby/booster/pkg/staging"
	"github.com/cuemby/booster/pkg/storage"
	"github.com/cuemby/booster/pkg/stream"
	"github.com/cuemby/booster/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// ErrHistoryDisabled is returned by History when no data dir is configured
	ErrHistoryDisabled = errors.New("history journal disabled")

	// ErrNotStarted is returned by operations that need a running manager
	ErrNotStarted = errors.New("manager not started")
)

// Manager owns every booster component and routes user intents to them
type Manager struct {
	backend backend.Backend
	cfg     *config.Config

	catalog    *catalog.Catalog
	ledger     *staging.Ledger
	registry   *execution.Registry
	hub        *stream.Hub
	pipeline   *ingest.Pipeline
	reconciler *reconciler.Reconciler
	executor   *executor.Executor
	broker     *events.Broker
	history    storage.HistoryStore
	collector  *metrics.Collector
	probe      *health.Monitor

	mu       sync.Mutex
	started  bool
	stopped  bool
	subID    string
	lastSync *reconciler.Result
	syncErr  error

	now    func() time.Time
	logger zerolog.Logger
}

// View is a read-only snapshot of the whole state
type View struct {
	Items        []*types.BoosterItem
	Staged       map[string]types.Operation
	Issues       []types.ValidationIssue
	Executions   []*types.ExecutionRecord
	Batch        *types.Batch
	Counts       map[types.ExecutionStatus]int
	MeanProgress int
	InFlight     bool
	HasChanges   bool
	LastSync     *reconciler.Result
	SyncError    error
}

// NewManager wires the components against b. A nil cfg uses config.Default().
func NewManager(b backend.Backend, cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		backend: b,
		cfg:     cfg,
		broker:  events.NewBroker(),
		now:     time.Now,
		logger:  log.WithComponent("manager"),
	}

	if cfg.DataDir != "" {
		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		m.history = store
	}

	m.catalog = catalog.NewCatalog(b)
	m.ledger = staging.NewLedger(m.catalog)
	m.registry = execution.NewRegistry(execution.WithBatchRetention(cfg.Executor.BatchRetention))

	m.reconciler = reconciler.NewReconciler(b, m.registry,
		reconciler.WithInterval(cfg.Reconciler.Interval),
		reconciler.WithTimeout(cfg.Reconciler.Timeout),
		reconciler.WithUnsubmitted(func() []string { return m.executor.Unsubmitted() }),
	)
	m.pipeline = ingest.NewPipeline(m.registry, m.reconciler, ingest.Config{
		GapTimeout:      cfg.Ingest.GapTimeout,
		MaxPending:      cfg.Ingest.MaxPending,
		CleanupInterval: cfg.Ingest.CleanupInterval,
		Retention:       cfg.Ingest.Retention,
	})
	m.executor = executor.NewExecutor(b, m.ledger, m.registry,
		executor.WithCallDelay(cfg.Executor.CallDelay),
		executor.WithSequenceResetter(m.pipeline),
		executor.WithPublisher(m.broker),
	)
	m.hub = stream.NewHub(b)
	m.collector = metrics.NewCollector(m, 0)
	m.probe = health.NewMonitor("backend", health.NewBackendChecker(b), health.Config{
		Interval: cfg.Probe.Interval,
		Timeout:  cfg.Reconciler.Timeout,
		Retries:  cfg.Probe.Retries,
	})

	m.registry.OnChange(m.onExecutionChange)
	m.reconciler.OnSync(m.onSync)
	m.probe.OnChange(func(healthy bool) {
		if healthy {
			m.reconciler.TriggerSync()
		}
	})

	return m, nil
}

// Start loads the configured categories, opens the event stream and starts
// the background loops. A catalog that fails to load entirely is returned as
// an error; the manager still runs so a later LoadCatalog can recover.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return errors.New("manager already shut down")
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	metrics.RegisterComponent("backend", true, "")
	metrics.RegisterComponent("stream", true, "")
	metrics.RegisterComponent("reconciler", true, "")

	m.broker.Start()

	subID := m.hub.Subscribe(stream.Handlers{
		OnEvent: m.handlePayload,
		OnError: m.handleStreamError,
	})
	m.mu.Lock()
	m.subID = subID
	m.mu.Unlock()

	m.pipeline.Start()
	m.reconciler.Start()
	m.collector.Start()
	m.probe.Start()

	loaded, err := m.LoadCatalog(ctx, m.cfg.Catalog.Categories...)

	m.logger.Info().
		Int("boosters", len(m.catalog.List())).
		Bool("history", m.history != nil).
		Msg("Manager started")
	if err != nil && loaded == 0 {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	return nil
}

// Shutdown stops every loop and closes the history journal
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	started := m.started
	subID := m.subID
	m.mu.Unlock()

	if started {
		m.hub.Unsubscribe(subID)
		m.hub.Close()
		m.reconciler.Stop()
		m.pipeline.Stop()
		m.collector.Stop()
		m.probe.Stop()
		m.broker.Stop()
	}

	if m.history != nil {
		if err := m.history.Close(); err != nil {
			return fmt.Errorf("failed to close history: %w", err)
		}
	}

	m.logger.Info().Msg("Manager stopped")
	return nil
}

// LoadCatalog fetches the given categories and re-derives the ledger against
// the refreshed applied states. It returns how many categories loaded.
func (m *Manager) LoadCatalog(ctx context.Context, categories ...string) (int, error) {
	loaded, err := m.catalog.LoadAll(ctx, categories, m.cfg.Catalog.Language)
	if err != nil {
		m.logger.Warn().Err(err).Int("loaded", loaded).Msg("Catalog load incomplete")
	}

	dropped := m.ledger.Rederive()
	if len(dropped) > 0 {
		m.logger.Debug().Strs("booster_ids", dropped).Msg("Dropped no-op staged entries")
	}

	m.broker.Publish(&events.Event{
		Type:    events.EventCatalogLoaded,
		Message: fmt.Sprintf("%d of %d categories loaded", loaded, len(categories)),
		Metadata: map[string]string{
			"loaded":    fmt.Sprint(loaded),
			"requested": fmt.Sprint(len(categories)),
		},
	})
	return loaded, err
}

// Toggle flips the staged state of id
func (m *Manager) Toggle(id string) (types.Operation, error) {
	return m.ledger.Toggle(id)
}

// Stage records op for id
func (m *Manager) Stage(id string, op types.Operation) error {
	return m.ledger.Stage(id, op)
}

// StageBatch records several operations at once
func (m *Manager) StageBatch(ops map[string]types.Operation) error {
	return m.ledger.StageBatch(ops)
}

// Unstage removes id from the ledger
func (m *Manager) Unstage(id string) {
	m.ledger.Unstage(id)
}

// Reset clears both the ledger and the execution registry
func (m *Manager) Reset() {
	m.ledger.Clear()
	m.registry.Clear()
}

// Execute submits everything staged as one batch and journals the outcome
func (m *Manager) Execute(ctx context.Context) (*executor.Report, error) {
	report, err := m.executor.ExecuteStagedBatch(ctx)
	if report != nil && report.Batch != nil && m.history != nil {
		if herr := m.history.AppendBatch(report.Batch); herr != nil {
			m.logger.Warn().Err(herr).Str("batch_id", report.Batch.ID).Msg("Failed to journal batch")
		}
	}
	return report, err
}

// Cancel marks an active execution cancelled
func (m *Manager) Cancel(id string) error {
	return m.registry.Cancel(id)
}

// Sync runs one reconciliation now
func (m *Manager) Sync(ctx context.Context) (*reconciler.Result, error) {
	return m.reconciler.Sync(ctx)
}

// Subscribe returns a channel of notifications
func (m *Manager) Subscribe() events.Subscriber {
	return m.broker.Subscribe()
}

// Unsubscribe closes a channel returned by Subscribe
func (m *Manager) Unsubscribe(sub events.Subscriber) {
	m.broker.Unsubscribe(sub)
}

// History returns the newest journaled executions, optionally for one booster
func (m *Manager) History(boosterID string, limit int) ([]*storage.ExecutionEntry, error) {
	if m.history == nil {
		return nil, ErrHistoryDisabled
	}
	if boosterID != "" {
		return m.history.ListExecutionsByBooster(boosterID, limit)
	}
	return m.history.ListExecutions(limit)
}

// View returns a snapshot of catalog, ledger and execution state
func (m *Manager) View() *View {
	m.mu.Lock()
	lastSync, syncErr := m.lastSync, m.syncErr
	m.mu.Unlock()

	return &View{
		Items:        m.catalog.List(),
		Staged:       m.ledger.Snapshot(),
		Issues:       m.ledger.Validate(),
		Executions:   m.registry.Snapshot(),
		Batch:        m.registry.Batch(),
		Counts:       m.registry.Counts(),
		MeanProgress: m.registry.MeanProgress(),
		InFlight:     m.registry.InFlight(),
		HasChanges:   m.ledger.HasChanges(),
		LastSync:     lastSync,
		SyncError:    syncErr,
	}
}

// WaitIdle blocks until no execution is active or ctx ends
func (m *Manager) WaitIdle(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if !m.registry.InFlight() && !m.executor.Running() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) handlePayload(payload []byte) {
	// malformed payloads are counted and logged by the pipeline
	_, _ = m.pipeline.HandleRaw(payload)
}

func (m *Manager) handleStreamError(err error) {
	m.logger.Warn().Err(err).Msg("Event stream interrupted, scheduling sync")
	m.reconciler.TriggerSync()
}

// onExecutionChange runs outside the registry lock for every record change
func (m *Manager) onExecutionChange(prev, next *types.ExecutionRecord) {
	if next == nil {
		return
	}
	if prev != nil && prev.Status == next.Status && prev.Progress == next.Progress {
		return
	}

	m.broker.Publish(&events.Event{
		Type:    events.EventExecutionUpdated,
		Message: fmt.Sprintf("%s %s", next.BoosterID, next.Status),
		Metadata: map[string]string{
			"booster_id": next.BoosterID,
			"operation":  string(next.Operation),
			"status":     string(next.Status),
			"progress":   fmt.Sprint(next.Progress),
		},
	})

	// a cancelled record can still settle as completed or error once the
	// backend reports its outcome
	if !next.Status.IsTerminal() || (prev != nil && prev.Status == next.Status) {
		return
	}

	if next.Status == types.StatusCompleted {
		applied := next.Operation == types.OperationApply
		at := m.now()
		if next.CompletedAt != nil {
			at = *next.CompletedAt
		}
		if m.catalog.MarkApplied(next.BoosterID, applied, at) {
			m.ledger.Rederive()
		}
	}

	if m.history != nil {
		batchID := ""
		if b := m.registry.Batch(); b != nil && containsID(b.BoosterIDs, next.BoosterID) {
			batchID = b.ID
		}
		if err := m.history.AppendExecution(batchID, next); err != nil {
			m.logger.Warn().Err(err).Str("booster_id", next.BoosterID).Msg("Failed to journal execution")
		}
	}
}

func (m *Manager) onSync(res *reconciler.Result, err error) {
	m.mu.Lock()
	if err == nil {
		m.lastSync = res
	}
	m.syncErr = err
	m.mu.Unlock()

	if err != nil {
		m.broker.Publish(&events.Event{
			Type:    events.EventSyncFailed,
			Message: err.Error(),
		})
		return
	}
	m.broker.Publish(&events.Event{
		Type:    events.EventSyncCompleted,
		Message: "queue state reconciled",
		Metadata: map[string]string{
			"returned":    fmt.Sprint(res.Returned),
			"overwritten": fmt.Sprint(res.Overwritten),
			"confirmed":   fmt.Sprint(res.Confirmed),
			"inferred":    fmt.Sprint(res.Inferred),
		},
	})
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
