package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/booster/pkg/types"
)

// QueueSource is the backend call used as a liveness probe
type QueueSource interface {
	GetExecutionQueueState(ctx context.Context) (*types.QueueState, error)
}

// BackendChecker reports the executor healthy when its queue can be read
type BackendChecker struct {
	source QueueSource
}

// NewBackendChecker creates a checker polling source
func NewBackendChecker(source QueueSource) *BackendChecker {
	return &BackendChecker{source: source}
}

// Check performs one queue poll
func (c *BackendChecker) Check(ctx context.Context) Result {
	start := time.Now()

	state, err := c.source.GetExecutionQueueState(ctx)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("queue poll failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("%d queued, %d in progress", len(state.Items), state.InProgress),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
