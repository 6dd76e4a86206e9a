// Package executions keeps the trigger history the engine is judged against
// and an audit trail of every decision the runner made.
package executions

import (
	"errors"
	"time"

	"github.com/watzon/cadence/internal/policy"
)

// ErrNotFound is returned when no execution matches the lookup.
var ErrNotFound = errors.New("execution not found")

// Status is the delivery state of a triggered execution.
type Status string

const (
	// StatusTriggered means the engine allowed the run and a trigger event was
	// queued.
	StatusTriggered Status = "triggered"
	// StatusDelivered means every subscriber accepted the trigger event.
	StatusDelivered Status = "delivered"
	// StatusFailed means at least one subscriber failed to handle the event.
	StatusFailed Status = "failed"
)

// Execution is one triggered run of a schedule.
type Execution struct {
	ID            string    `json:"id"`
	ScheduleID    string    `json:"scheduleId"`
	TenantID      string    `json:"tenantId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Status        Status    `json:"status"`
	TriggeredAt   time.Time `json:"triggeredAt"`
}

// ListOptions filters List. Zero fields are ignored.
type ListOptions struct {
	ScheduleID string
	TenantID   string
	Status     Status
	Since      time.Time
	Limit      int
	Offset     int
}

// DecisionRecord is the audited outcome of one evaluation.
type DecisionRecord struct {
	ID            string
	ScheduleID    string
	TenantID      string
	CorrelationID string
	DryRun        bool
	Decision      policy.Decision
}

// DecisionListOptions filters ListDecisions. Zero fields are ignored.
type DecisionListOptions struct {
	ScheduleID    string
	CorrelationID string
	BlockedBy     policy.BlockReason
	TriggeredOnly bool
	Limit         int
}
