package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/watzon/cadence/internal/database"
	"github.com/watzon/cadence/internal/policy"
)

// StateStore persists the runner's view of each schedule.
type StateStore struct {
	db *database.DB
}

func NewStateStore(db *database.DB) *StateStore {
	return &StateStore{db: db}
}

// ScheduleState is the outcome of the most recent evaluation of a schedule.
type ScheduleState struct {
	ScheduleID      string
	LastEvaluatedAt *time.Time
	LastTriggeredAt *time.Time
	NextEligibleAt  *time.Time
	LastBlockedBy   policy.BlockReason
	LastReason      string
	TriggerCount    int
	UpdatedAt       time.Time
}

const stateColumns = `schedule_id, last_evaluated_at, last_triggered_at, next_eligible_at,
	last_blocked_by, last_reason, trigger_count, updated_at`

func (s *StateStore) Save(ctx context.Context, state *ScheduleState) error {
	state.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_state (`+stateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(schedule_id) DO UPDATE SET
			last_evaluated_at = excluded.last_evaluated_at,
			last_triggered_at = excluded.last_triggered_at,
			next_eligible_at = excluded.next_eligible_at,
			last_blocked_by = excluded.last_blocked_by,
			last_reason = excluded.last_reason,
			trigger_count = excluded.trigger_count,
			updated_at = excluded.updated_at
	`,
		state.ScheduleID,
		database.FormatTimePtr(state.LastEvaluatedAt),
		database.FormatTimePtr(state.LastTriggeredAt),
		database.FormatTimePtr(state.NextEligibleAt),
		nullReason(state.LastBlockedBy),
		state.LastReason,
		state.TriggerCount,
		database.FormatTime(state.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving schedule state: %w", database.ClassifyError(err))
	}
	return nil
}

// Get returns the state of a schedule, or nil when it was never evaluated.
func (s *StateStore) Get(ctx context.Context, scheduleID string) (*ScheduleState, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+stateColumns+" FROM schedule_state WHERE schedule_id = ?", scheduleID)

	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return state, err
}

// List returns every state keyed by schedule ID.
func (s *StateStore) List(ctx context.Context) (map[string]*ScheduleState, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+stateColumns+" FROM schedule_state")
	if err != nil {
		return nil, fmt.Errorf("querying schedule states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]*ScheduleState)
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states[state.ScheduleID] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedule states: %w", err)
	}
	return states, nil
}

// Apply folds a decision into the stored state of a schedule. Triggers only
// count when they were acted on.
func (s *StateStore) Apply(ctx context.Context, scheduleID string, d policy.Decision, triggered bool) error {
	state, err := s.Get(ctx, scheduleID)
	if err != nil {
		return err
	}
	if state == nil {
		state = &ScheduleState{ScheduleID: scheduleID}
	}

	evaluated := d.EvaluatedAt.UTC()
	state.LastEvaluatedAt = &evaluated
	state.NextEligibleAt = d.NextEligibleAt
	state.LastBlockedBy = d.BlockedBy
	state.LastReason = d.Reason
	if triggered {
		state.LastTriggeredAt = &evaluated
		state.TriggerCount++
	}

	return s.Save(ctx, state)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner) (*ScheduleState, error) {
	var state ScheduleState
	var evaluated, triggered, next, blockedBy, reason sql.NullString
	var updatedAt string

	err := row.Scan(
		&state.ScheduleID,
		&evaluated,
		&triggered,
		&next,
		&blockedBy,
		&reason,
		&state.TriggerCount,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning schedule state: %w", err)
	}

	if state.LastEvaluatedAt, err = database.ParseNullTime(evaluated); err != nil {
		return nil, fmt.Errorf("parsing last_evaluated_at: %w", err)
	}
	if state.LastTriggeredAt, err = database.ParseNullTime(triggered); err != nil {
		return nil, fmt.Errorf("parsing last_triggered_at: %w", err)
	}
	if state.NextEligibleAt, err = database.ParseNullTime(next); err != nil {
		return nil, fmt.Errorf("parsing next_eligible_at: %w", err)
	}
	if state.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	state.LastBlockedBy = policy.BlockReason(blockedBy.String)
	state.LastReason = reason.String

	return &state, nil
}

func nullReason(r policy.BlockReason) sql.NullString {
	if r == policy.BlockedByNone {
		return sql.NullString{}
	}
	return sql.NullString{String: string(r), Valid: true}
}
