package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuemby/booster/pkg/types"
)

var (
	// ErrUnknownBooster is returned by backends for ids they do not know
	ErrUnknownBooster = errors.New("unknown booster")

	// ErrStatusUnsupported is returned by a StatusConfirmer whose executor
	// cannot report per-operation status
	ErrStatusUnsupported = errors.New("execution status not supported")
)

// Backend is the native executor the pipeline talks to
type Backend interface {
	// GetBoostersByCategory returns the catalog items of one category
	GetBoostersByCategory(ctx context.Context, category, language string) ([]*types.BoosterItem, error)

	// ExecuteBooster submits one apply/revert operation
	ExecuteBooster(ctx context.Context, boosterID string, op types.Operation) (*types.ExecuteResult, error)

	// GetExecutionQueueState polls the executor queue
	GetExecutionQueueState(ctx context.Context) (*types.QueueState, error)

	// SubscribeEvents delivers raw push-event payloads to handler until ctx is
	// done or the channel fails. It returns nil on ctx cancellation.
	SubscribeEvents(ctx context.Context, handler func(payload []byte)) error
}

// StatusConfirmer is implemented by backends that can report the terminal
// status of an operation that left the execution queue
type StatusConfirmer interface {
	GetExecutionStatus(ctx context.Context, boosterID string) (status types.ExecutionStatus, errMsg string, err error)
}

// queueStateObject covers the object payload shapes seen from the executor
type queueStateObject struct {
	Items           []types.QueueItem `json:"items"`
	InProgress      *int              `json:"inProgress"`
	InProgressCount *int              `json:"inProgressCount"`
}

// NormalizeQueueState converts the executor's queue payload into QueueState.
//
// Two shapes are accepted: an object {items, inProgress|inProgressCount} and
// a bare array of items. A bare array carries no count; the executor runs one
// operation at a time, so its head is taken as the only item in progress.
func NormalizeQueueState(raw []byte) (*types.QueueState, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return &types.QueueState{Items: []types.QueueItem{}}, nil
	}

	state := &types.QueueState{}
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &state.Items); err != nil {
			return nil, fmt.Errorf("failed to decode queue array: %w", err)
		}
		if len(state.Items) > 0 {
			state.InProgress = 1
		}
	case '{':
		var obj queueStateObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode queue object: %w", err)
		}
		state.Items = obj.Items
		switch {
		case obj.InProgress != nil:
			state.InProgress = *obj.InProgress
		case obj.InProgressCount != nil:
			state.InProgress = *obj.InProgressCount
		}
	default:
		return nil, fmt.Errorf("unexpected queue payload starting with %q", raw[0])
	}

	if state.Items == nil {
		state.Items = []types.QueueItem{}
	}

	// drop entries without a booster id, they cannot be reconciled
	items := state.Items[:0]
	for _, item := range state.Items {
		if item.BoosterID != "" {
			items = append(items, item)
		}
	}
	state.Items = items

	if state.InProgress < 0 {
		state.InProgress = 0
	}
	if state.InProgress > len(state.Items) {
		state.InProgress = len(state.Items)
	}
	return state, nil
}
