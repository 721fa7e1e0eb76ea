package types

import (
	"time"
)

// Operation is the action staged or executed against a booster
type Operation string

const (
	OperationApply  Operation = "apply"
	OperationRevert Operation = "revert"
)

// Valid reports whether the operation is one of the known operations
func (o Operation) Valid() bool {
	return o == OperationApply || o == OperationRevert
}

// Inverse returns the opposite operation
func (o Operation) Inverse() Operation {
	if o == OperationApply {
		return OperationRevert
	}
	return OperationApply
}

// RiskLevel classifies how invasive a booster is
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// BoosterItem is a single system optimization known to the backend
type BoosterItem struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Level        string     `json:"level,omitempty"`
	Platform     string     `json:"platform,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Conflicts    []string   `json:"conflicts,omitempty"`
	Reversible   bool       `json:"reversible"`
	RiskLevel    RiskLevel  `json:"riskLevel"`
	Version      string     `json:"version,omitempty"`
	IsApplied    bool       `json:"isApplied"`
	AppliedAt    *time.Time `json:"appliedAt,omitempty"`
	RevertedAt   *time.Time `json:"revertedAt,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
}

// Clone returns a deep copy of the item
func (b *BoosterItem) Clone() *BoosterItem {
	c := *b
	c.Dependencies = append([]string(nil), b.Dependencies...)
	c.Conflicts = append([]string(nil), b.Conflicts...)
	c.Tags = append([]string(nil), b.Tags...)
	if b.AppliedAt != nil {
		t := *b.AppliedAt
		c.AppliedAt = &t
	}
	if b.RevertedAt != nil {
		t := *b.RevertedAt
		c.RevertedAt = &t
	}
	return &c
}

// ExecutionStatus is the lifecycle state of a submitted operation
type ExecutionStatus string

const (
	StatusIdle       ExecutionStatus = "idle"
	StatusQueued     ExecutionStatus = "queued"
	StatusProcessing ExecutionStatus = "processing"
	StatusCompleted  ExecutionStatus = "completed"
	StatusError      ExecutionStatus = "error"
	StatusCancelled  ExecutionStatus = "cancelled"
)

// IsTerminal returns true for completed, error and cancelled
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// IsActive returns true while the backend may still be working on the operation
func (s ExecutionStatus) IsActive() bool {
	return s == StatusQueued || s == StatusProcessing
}

// CanCancel mirrors IsActive; cancellation is only offered while active
func (s ExecutionStatus) CanCancel() bool {
	return s.IsActive()
}

// ExecutionRecord tracks one submitted operation
type ExecutionRecord struct {
	BoosterID   string          `json:"boosterId"`
	Operation   Operation       `json:"operation"`
	Status      ExecutionStatus `json:"status"`
	Progress    int             `json:"progress"` // 0-100
	Error       string          `json:"error,omitempty"`
	OperationID string          `json:"operationId,omitempty"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	CanCancel   bool            `json:"canCancel"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Clone returns a copy that shares no pointers with the original
func (r *ExecutionRecord) Clone() *ExecutionRecord {
	c := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ExecutionUpdate is a partial update merged into an ExecutionRecord.
// Nil fields are left untouched.
type ExecutionUpdate struct {
	Status      *ExecutionStatus
	Progress    *int
	Error       *string
	OperationID *string
}

// StatusUpdate is a convenience constructor for the common status-only update
func StatusUpdate(status ExecutionStatus) ExecutionUpdate {
	return ExecutionUpdate{Status: &status}
}

// WithProgress sets the progress field and returns the update
func (u ExecutionUpdate) WithProgress(p int) ExecutionUpdate {
	u.Progress = &p
	return u
}

// WithError sets the error field and returns the update
func (u ExecutionUpdate) WithError(msg string) ExecutionUpdate {
	u.Error = &msg
	return u
}

// WithOperationID sets the backend operation id and returns the update
func (u ExecutionUpdate) WithOperationID(id string) ExecutionUpdate {
	u.OperationID = &id
	return u
}

// BatchStatus is the state of a submitted batch
type BatchStatus string

const (
	BatchIdle       BatchStatus = "idle"
	BatchQueued     BatchStatus = "queued"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchError      BatchStatus = "error"
)

// Batch groups the operations submitted together.
// Progress is derived from member records and filled in on read.
type Batch struct {
	ID          string      `json:"id"`
	BoosterIDs  []string    `json:"boosterIds"`
	Status      BatchStatus `json:"status"`
	Progress    int         `json:"progress"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of the batch
func (b *Batch) Clone() *Batch {
	c := *b
	c.BoosterIDs = append([]string(nil), b.BoosterIDs...)
	if b.StartedAt != nil {
		t := *b.StartedAt
		c.StartedAt = &t
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// EventType is the kind of a backend push event
type EventType string

const (
	EventProcessing  EventType = "processing"
	EventSuccess     EventType = "success"
	EventError       EventType = "error"
	EventFailed      EventType = "failed"
	EventQueued      EventType = "queued"
	EventBatchQueued EventType = "batch_queued"
	EventCancelled   EventType = "cancelled"
)

// BoosterEvent is a progress notification pushed by the backend
type BoosterEvent struct {
	EventType     EventType  `json:"eventType" validate:"required,oneof=processing success error failed queued batch_queued cancelled"`
	Timestamp     time.Time  `json:"timestamp"`
	OperationType Operation  `json:"operationType,omitempty"`
	OperationID   string     `json:"operationId,omitempty"`
	BoosterID     string     `json:"boosterId,omitempty"`
	Sequence      int64      `json:"sequence" validate:"gte=0"`
	IdempotencyID string     `json:"idempotencyId,omitempty"`
	Status        string     `json:"status,omitempty"`
	EndAt         *time.Time `json:"endAt,omitempty"`
	Error         string     `json:"error,omitempty"`
	QueueSize     int        `json:"queueSize,omitempty"`
	Progress      *int       `json:"progress,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// IsBatchLevel reports whether the event describes the batch rather than a booster
func (e *BoosterEvent) IsBatchLevel() bool {
	return e.EventType == EventBatchQueued || e.BoosterID == ""
}

// ExecuteResult is the backend response to a per-item operation
type ExecuteResult struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
	OperationID string `json:"operationId,omitempty"`
}

// QueueItem is one entry in the backend execution queue
type QueueItem struct {
	BoosterID   string `json:"boosterId"`
	OperationID string `json:"operationId,omitempty"`
	Progress    *int   `json:"progress,omitempty"`
	Error       string `json:"error,omitempty"`
}

// QueueState is the normalized backend queue snapshot.
// The first InProgress items are being processed, the rest are waiting.
type QueueState struct {
	Items      []QueueItem `json:"items"`
	InProgress int         `json:"inProgress"`
}

// Severity of a staging validation issue
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ValidationIssue is an advisory finding about the staged operations
type ValidationIssue struct {
	BoosterID string   `json:"boosterId"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
}
