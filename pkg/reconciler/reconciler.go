package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/booster/pkg/backend"
	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/metrics"
	"github.com/cuemby/booster/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// QueueSource is the backend poll the reconciler needs
type QueueSource interface {
	GetExecutionQueueState(ctx context.Context) (*types.QueueState, error)
}

// Registry is the execution state being corrected
type Registry interface {
	Snapshot() []*types.ExecutionRecord
	UpdateExecution(id string, u types.ExecutionUpdate) error
}

// Result summarizes one sync
type Result struct {
	// Returned is the number of items in the backend queue
	Returned int
	// Overwritten counts local records changed to match the backend queue
	Overwritten int
	// Confirmed counts vanished records resolved through StatusConfirmer
	Confirmed int
	// Inferred counts vanished records marked completed by disappearance alone
	Inferred int
	Duration time.Duration
}

// Reconciler corrects the execution registry against the backend queue
type Reconciler struct {
	source      QueueSource
	confirmer   backend.StatusConfirmer
	registry    Registry
	unsubmitted func() []string
	interval    time.Duration
	timeout     time.Duration
	group       singleflight.Group
	observers   []func(*Result, error)
	mu          sync.RWMutex
	triggerCh   chan struct{}
	stopCh      chan struct{}
	logger      zerolog.Logger
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithInterval sets the periodic sync interval
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		r.interval = d
	}
}

// WithTimeout bounds each background sync
func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		r.timeout = d
	}
}

// WithUnsubmitted supplies the ids whose backend call has not been issued yet.
// Those records are not in the backend queue and must not be inferred finished.
func WithUnsubmitted(fn func() []string) Option {
	return func(r *Reconciler) {
		r.unsubmitted = fn
	}
}

// NewReconciler creates a reconciler. If source also implements
// backend.StatusConfirmer, vanished records are confirmed through it.
func NewReconciler(source QueueSource, registry Registry, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:    source,
		registry:  registry,
		interval:  10 * time.Second,
		timeout:   30 * time.Second,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		logger:    log.WithComponent("reconciler"),
	}
	if c, ok := source.(backend.StatusConfirmer); ok {
		r.confirmer = c
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnSync registers a callback invoked once per completed sync
func (r *Reconciler) OnSync(fn func(*Result, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

// TriggerSync requests a sync from the background loop without blocking
func (r *Reconciler) TriggerSync() {
	select {
	case r.triggerCh <- struct{}{}:
	default:
		// a sync is already pending
	}
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-r.triggerCh:
		case <-r.stopCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if _, err := r.Sync(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("Reconciliation skipped")
		}
		cancel()
	}
}

// Sync polls the backend queue and corrects the registry. Only one sync runs
// at a time; concurrent callers wait for and share the running sync's result.
func (r *Reconciler) Sync(ctx context.Context) (*Result, error) {
	v, err, _ := r.group.Do("sync", func() (interface{}, error) {
		res, err := r.reconcile(ctx)
		r.notify(res, err)
		return res, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (r *Reconciler) notify(res *Result, err error) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, fn := range observers {
		fn(res, err)
	}
}

// reconcile performs one reconciliation cycle
func (r *Reconciler) reconcile(ctx context.Context) (*Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	state, err := r.source.GetExecutionQueueState(ctx)
	if err != nil {
		metrics.ReconciliationCyclesTotal.WithLabelValues("error").Inc()
		metrics.UpdateComponent("reconciler", false, err.Error())
		return nil, fmt.Errorf("failed to poll queue state: %w", err)
	}

	res := &Result{Returned: len(state.Items)}
	local := make(map[string]*types.ExecutionRecord)
	for _, rec := range r.registry.Snapshot() {
		local[rec.BoosterID] = rec
	}

	present := make(map[string]bool, len(state.Items))
	for i, item := range state.Items {
		present[item.BoosterID] = true
		rec, ok := local[item.BoosterID]
		if !ok || rec.Status == types.StatusCancelled {
			continue
		}

		status := types.StatusQueued
		if i < state.InProgress {
			status = types.StatusProcessing
		}
		progress := 0
		if item.Progress != nil {
			progress = *item.Progress
		}
		if rec.Status == status && rec.Progress == progress && rec.Error == item.Error {
			continue
		}

		u := types.StatusUpdate(status).WithProgress(progress).WithError(item.Error)
		if item.OperationID != "" {
			u = u.WithOperationID(item.OperationID)
		}
		if err := r.registry.UpdateExecution(item.BoosterID, u); err != nil {
			r.logger.Debug().Err(err).Str("booster_id", item.BoosterID).Msg("Failed to overwrite record")
			continue
		}
		res.Overwritten++
		metrics.ReconciliationCorrections.WithLabelValues("overwrite").Inc()
	}

	skip := make(map[string]bool)
	if r.unsubmitted != nil {
		for _, id := range r.unsubmitted() {
			skip[id] = true
		}
	}

	for id, rec := range local {
		if !rec.Status.IsActive() || present[id] || skip[id] {
			continue
		}
		r.resolveVanished(ctx, rec, res)
	}

	res.Duration = timer.Duration()
	metrics.ReconciliationCyclesTotal.WithLabelValues("success").Inc()
	metrics.UpdateComponent("reconciler", true, "ok")

	r.logger.Debug().
		Int("returned", res.Returned).
		Int("overwritten", res.Overwritten).
		Int("confirmed", res.Confirmed).
		Int("inferred", res.Inferred).
		Msg("Reconciliation complete")
	return res, nil
}

// resolveVanished settles an active record that is no longer in the backend
// queue. A StatusConfirmer answer wins; without one, disappearance is taken as
// completion even though it cannot tell success from a silent failure.
func (r *Reconciler) resolveVanished(ctx context.Context, rec *types.ExecutionRecord, res *Result) {
	logger := r.logger.With().Str("booster_id", rec.BoosterID).Logger()

	if r.confirmer != nil {
		status, msg, err := r.confirmer.GetExecutionStatus(ctx, rec.BoosterID)
		switch {
		case errors.Is(err, backend.ErrStatusUnsupported):
			r.inferCompleted(rec, res, logger)
			return
		case err != nil:
			logger.Warn().Err(err).Msg("Failed to confirm status of vanished execution")
			return
		}

		var u types.ExecutionUpdate
		switch {
		case status == types.StatusCompleted:
			u = types.StatusUpdate(types.StatusCompleted).WithProgress(100)
		case status == types.StatusError:
			if msg == "" {
				msg = "operation failed"
			}
			u = types.StatusUpdate(types.StatusError).WithError(msg)
		case status == types.StatusCancelled:
			u = types.StatusUpdate(types.StatusCancelled)
		case status == types.StatusIdle:
			u = types.StatusUpdate(types.StatusError).WithError("operation not found on backend")
		default:
			// still active on the backend; the queue poll raced with admission
			return
		}
		if err := r.registry.UpdateExecution(rec.BoosterID, u); err == nil {
			res.Confirmed++
			metrics.ReconciliationCorrections.WithLabelValues("confirmed").Inc()
		}
		return
	}
	r.inferCompleted(rec, res, logger)
}

func (r *Reconciler) inferCompleted(rec *types.ExecutionRecord, res *Result, logger zerolog.Logger) {
	logger.Warn().
		Str("status", string(rec.Status)).
		Msg("Execution left the queue without a terminal event, assuming completed")
	u := types.StatusUpdate(types.StatusCompleted).WithProgress(100)
	if err := r.registry.UpdateExecution(rec.BoosterID, u); err == nil {
		res.Inferred++
		metrics.ReconciliationCorrections.WithLabelValues("inferred").Inc()
	}
}
