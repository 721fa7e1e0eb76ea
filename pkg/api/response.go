package api

import (
	"time"

	"github.com/cuemby/booster/pkg/events"
	"github.com/cuemby/booster/pkg/manager"
	"github.com/cuemby/booster/pkg/reconciler"
	"github.com/cuemby/booster/pkg/types"
)

// StateResponse is the JSON form of manager.View
type StateResponse struct {
	Items        []*types.BoosterItem          `json:"items"`
	Staged       map[string]types.Operation    `json:"staged"`
	Issues       []types.ValidationIssue       `json:"issues"`
	Executions   []*types.ExecutionRecord      `json:"executions"`
	Batch        *types.Batch                  `json:"batch,omitempty"`
	Counts       map[types.ExecutionStatus]int `json:"counts"`
	MeanProgress int                           `json:"meanProgress"`
	InFlight     bool                          `json:"inFlight"`
	HasChanges   bool                          `json:"hasChanges"`
	LastSync     *reconciler.Result            `json:"lastSync,omitempty"`
	SyncError    string                        `json:"syncError,omitempty"`
}

// ReportResponse is the JSON form of executor.Report
type ReportResponse struct {
	Batch     *types.Batch            `json:"batch"`
	Issues    []types.ValidationIssue `json:"issues"`
	Submitted int                     `json:"submitted"`
	Failed    int                     `json:"failed"`
}

// Notification is one broker event as sent over the websocket
type Notification struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func toStateResponse(v *manager.View) StateResponse {
	resp := StateResponse{
		Items:        v.Items,
		Staged:       v.Staged,
		Issues:       v.Issues,
		Executions:   v.Executions,
		Batch:        v.Batch,
		Counts:       v.Counts,
		MeanProgress: v.MeanProgress,
		InFlight:     v.InFlight,
		HasChanges:   v.HasChanges,
		LastSync:     v.LastSync,
	}
	if v.SyncError != nil {
		resp.SyncError = v.SyncError.Error()
	}
	if resp.Items == nil {
		resp.Items = []*types.BoosterItem{}
	}
	if resp.Issues == nil {
		resp.Issues = []types.ValidationIssue{}
	}
	if resp.Executions == nil {
		resp.Executions = []*types.ExecutionRecord{}
	}
	return resp
}

func toNotification(ev *events.Event) Notification {
	return Notification{
		ID:        ev.ID,
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp,
		Message:   ev.Message,
		Metadata:  ev.Metadata,
	}
}
