package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/booster/pkg/events"
	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/metrics"
	"github.com/cuemby/booster/pkg/staging"
	"github.com/cuemby/booster/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrNothingStaged is returned when the ledger is empty
	ErrNothingStaged = errors.New("nothing staged")
	// ErrBatchInProgress is returned when a batch is already being submitted
	ErrBatchInProgress = errors.New("batch submission already in progress")
)

// Caller issues per-item operations
type Caller interface {
	ExecuteBooster(ctx context.Context, boosterID string, op types.Operation) (*types.ExecuteResult, error)
}

// Ledger is the staging state drained by a batch
type Ledger interface {
	Snapshot() map[string]types.Operation
	Validate() []types.ValidationIssue
	Clear()
}

// Registry receives the execution records and batch
type Registry interface {
	AddExecutions(ops map[string]types.Operation)
	UpdateExecution(id string, u types.ExecutionUpdate) error
	StartBatch(ids []string) *types.Batch
	SetBatchStatus(id string, status types.BatchStatus, errMsg string) error
	Batch() *types.Batch
}

// SequenceResetter forgets event sequencing for resubmitted ids
type SequenceResetter interface {
	Reset(ids []string)
}

// Publisher delivers notifications
type Publisher interface {
	Publish(event *events.Event)
}

// Report describes one submitted batch
type Report struct {
	Batch     *types.Batch
	Issues    []types.ValidationIssue
	Submitted int
	Failed    int
}

// Executor submits the staged operations to the backend one at a time
type Executor struct {
	caller      Caller
	ledger      Ledger
	registry    Registry
	resetter    SequenceResetter
	publisher   Publisher
	callDelay   time.Duration
	running     bool
	unsubmitted map[string]bool
	mu          sync.Mutex
	logger      zerolog.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithCallDelay sets the minimum spacing between backend calls
func WithCallDelay(d time.Duration) Option {
	return func(e *Executor) {
		e.callDelay = d
	}
}

// WithSequenceResetter resets ingestion state before resubmission
func WithSequenceResetter(r SequenceResetter) Option {
	return func(e *Executor) {
		e.resetter = r
	}
}

// WithPublisher sets where batch notifications go
func WithPublisher(p Publisher) Option {
	return func(e *Executor) {
		e.publisher = p
	}
}

// NewExecutor creates an executor
func NewExecutor(caller Caller, ledger Ledger, registry Registry, opts ...Option) *Executor {
	e := &Executor{
		caller:      caller,
		ledger:      ledger,
		registry:    registry,
		callDelay:   100 * time.Millisecond,
		unsubmitted: make(map[string]bool),
		logger:      log.WithComponent("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Unsubmitted returns the ids of the running batch whose backend call has not
// been issued yet
func (e *Executor) Unsubmitted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.unsubmitted))
	for id := range e.unsubmitted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Running reports whether a batch is being submitted
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ExecuteStagedBatch drains the ledger into execution records and calls the
// backend for each staged item in id order. A failing item is recorded as an
// error and the loop continues. The ledger is cleared once every call has been
// issued. If the loop itself aborts the batch is marked error, items not yet
// sent are marked error and the ledger is kept.
func (e *Executor) ExecuteStagedBatch(ctx context.Context) (report *Report, err error) {
	staged := e.ledger.Snapshot()
	if len(staged) == 0 {
		return nil, ErrNothingStaged
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrBatchInProgress
	}
	e.running = true
	ids := make([]string, 0, len(staged))
	for id := range staged {
		ids = append(ids, id)
		e.unsubmitted[id] = true
	}
	e.mu.Unlock()
	sort.Strings(ids)

	defer func() {
		e.mu.Lock()
		e.running = false
		e.unsubmitted = make(map[string]bool)
		e.mu.Unlock()
	}()

	issues := e.ledger.Validate()
	for _, issue := range issues {
		ev := e.logger.Warn()
		if issue.Severity == types.SeverityError {
			ev = e.logger.Error()
		}
		ev.Str("booster_id", issue.BoosterID).Str("severity", string(issue.Severity)).Msg(issue.Message)
	}

	if e.resetter != nil {
		e.resetter.Reset(ids)
	}
	e.registry.AddExecutions(staged)
	batch := e.registry.StartBatch(ids)
	logger := log.WithBatchID(batch.ID)
	report = &Report{Batch: batch, Issues: issues}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BatchSubmitDuration)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch submission panicked: %v", r)
		}
		if err != nil {
			e.abort(batch.ID, err)
			report.Batch = e.currentBatch(batch)
		}
	}()

	if err := e.registry.SetBatchStatus(batch.ID, types.BatchProcessing, ""); err != nil {
		return report, err
	}
	e.publish(events.EventBatchStarted, fmt.Sprintf("submitting %d operations", len(ids)), map[string]string{
		"batch_id": batch.ID,
		"count":    fmt.Sprint(len(ids)),
	})
	logger.Info().Int("count", len(ids)).Msg("Submitting batch")

	limiter := rate.NewLimiter(rate.Inf, 1)
	if e.callDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(e.callDelay), 1)
	}

	for _, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("batch aborted before %s: %w", id, err)
		}
		op := staged[id]
		if e.submit(ctx, id, op) {
			report.Submitted++
		} else {
			report.Failed++
		}
		e.mu.Lock()
		delete(e.unsubmitted, id)
		e.mu.Unlock()
	}

	e.ledger.Clear()
	if err := e.registry.SetBatchStatus(batch.ID, types.BatchCompleted, ""); err != nil {
		logger.Debug().Err(err).Msg("Batch cleared before completion")
	}
	report.Batch = e.currentBatch(batch)
	metrics.BatchesSubmitted.WithLabelValues("completed").Inc()

	e.publish(events.EventBatchCompleted, "batch submitted", map[string]string{
		"batch_id":  batch.ID,
		"submitted": fmt.Sprint(report.Submitted),
		"failed":    fmt.Sprint(report.Failed),
	})
	logger.Info().
		Int("submitted", report.Submitted).
		Int("failed", report.Failed).
		Msg("Batch submitted")
	return report, nil
}

// submit issues one backend call. Failures are recorded on the item and never
// returned.
func (e *Executor) submit(ctx context.Context, id string, op types.Operation) (ok bool) {
	logger := log.WithBoosterID(id)

	defer func() {
		if r := recover(); r != nil {
			ok = false
			e.fail(id, op, fmt.Sprintf("backend call panicked: %v", r))
			logger.Error().Interface("panic", r).Msg("Backend call panicked")
		}
	}()

	res, err := e.caller.ExecuteBooster(ctx, id, op)
	if err != nil {
		e.fail(id, op, err.Error())
		logger.Error().Err(err).Str("operation", string(op)).Msg("Backend call failed")
		return false
	}
	if res == nil || !res.Success {
		msg := "backend rejected operation"
		if res != nil && res.Error != "" {
			msg = res.Error
		} else if res != nil && res.Message != "" {
			msg = res.Message
		}
		e.fail(id, op, msg)
		logger.Warn().Str("operation", string(op)).Str("reason", msg).Msg("Backend rejected operation")
		return false
	}

	metrics.BackendCallsTotal.WithLabelValues(string(op), "success").Inc()
	if res.OperationID != "" {
		_ = e.registry.UpdateExecution(id, types.ExecutionUpdate{}.WithOperationID(res.OperationID))
	}
	return true
}

func (e *Executor) fail(id string, op types.Operation, msg string) {
	metrics.BackendCallsTotal.WithLabelValues(string(op), "error").Inc()
	if err := e.registry.UpdateExecution(id, types.StatusUpdate(types.StatusError).WithError(msg)); err != nil {
		e.logger.Debug().Err(err).Str("booster_id", id).Msg("Failed to record item error")
	}
}

// abort marks the batch and the items never sent as failed. Records already
// updated stay as they are.
func (e *Executor) abort(batchID string, cause error) {
	e.mu.Lock()
	pending := make([]string, 0, len(e.unsubmitted))
	for id := range e.unsubmitted {
		pending = append(pending, id)
	}
	e.mu.Unlock()
	sort.Strings(pending)

	for _, id := range pending {
		msg := "not submitted: " + cause.Error()
		_ = e.registry.UpdateExecution(id, types.StatusUpdate(types.StatusError).WithError(msg))
	}
	_ = e.registry.SetBatchStatus(batchID, types.BatchError, cause.Error())
	metrics.BatchesSubmitted.WithLabelValues("error").Inc()

	e.publish(events.EventBatchError, cause.Error(), map[string]string{
		"batch_id":    batchID,
		"unsubmitted": fmt.Sprint(len(pending)),
	})
	logger := log.WithBatchID(batchID)
	logger.Error().Err(cause).Int("unsubmitted", len(pending)).Msg("Batch submission aborted")
}

func (e *Executor) currentBatch(fallback *types.Batch) *types.Batch {
	if b := e.registry.Batch(); b != nil && b.ID == fallback.ID {
		return b
	}
	return fallback
}

func (e *Executor) publish(t events.EventType, msg string, meta map[string]string) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(&events.Event{Type: t, Message: msg, Metadata: meta})
}

// HasValidationErrors reports whether validation found error-severity issues
func (r *Report) HasValidationErrors() bool {
	return staging.HasErrors(r.Issues)
}
