// Package events is the trigger outbox: triggered decisions are persisted as
// events and dispatched to subscribers by a background loop.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/watzon/cadence/internal/policy"
)

// EventType represents the type of event.
type EventType string

const (
	// EventTypeTrigger is published when a schedule is allowed to run.
	EventTypeTrigger EventType = "trigger"
)

// ActionFire is the action of a trigger event.
const ActionFire = "fire"

// Status is the processing state of an event.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Event represents an event in the outbox.
type Event struct {
	ID          string        // Unique event ID
	Type        EventType     // Event type
	Source      string        // "<tenant>/<schedule name>" for triggers
	Action      string        // Specific action, e.g. "fire"
	Payload     any           // Event payload (JSON-serializable)
	Metadata    EventMetadata // Tracing context
	CreatedAt   time.Time     // When event was created
	ProcessAt   *time.Time    // When to process (nil = immediate)
	ProcessedAt *time.Time    // When event was processed
	Status      Status
}

// EventMetadata ties an event back to the evaluation that produced it.
type EventMetadata struct {
	CorrelationID string         `json:"correlationId,omitempty"`
	ScheduleID    string         `json:"scheduleId,omitempty"`
	ExecutionID   string         `json:"executionId,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// TriggerPayload is the payload of a trigger event.
type TriggerPayload struct {
	ScheduleID    string          `json:"scheduleId"`
	TenantID      string          `json:"tenantId"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	ExecutionID   string          `json:"executionId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Decision      policy.Decision `json:"decision"`
}

// TriggerSource builds the source of a trigger event.
func TriggerSource(tenantID, name string) string {
	return tenantID + "/" + name
}

// DecodePayload decodes the payload into v. Payloads read back from the store
// are generic JSON values, so this works the same before and after a round
// trip through the database.
func (e *Event) DecodePayload(v any) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
