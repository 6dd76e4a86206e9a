package executions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/cadence/internal/database"
	"github.com/watzon/cadence/internal/policy"
)

const executionColumns = "id, schedule_id, tenant_id, correlation_id, status, triggered_at"

// Store handles database operations for executions and decisions.
type Store struct {
	db *database.DB
}

// NewStore creates a new execution store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record inserts an execution. A missing ID or status is filled in.
func (s *Store) Record(ctx context.Context, exec *Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	if exec.Status == "" {
		exec.Status = StatusTriggered
	}
	if exec.TriggeredAt.IsZero() {
		exec.TriggeredAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		exec.ID,
		exec.ScheduleID,
		exec.TenantID,
		exec.CorrelationID,
		string(exec.Status),
		database.FormatTime(exec.TriggeredAt),
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", database.ClassifyError(err))
	}
	return nil
}

// UpdateStatus sets the delivery status of an execution.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedule_executions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("updating execution status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get retrieves an execution by ID.
func (s *Store) Get(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM schedule_executions WHERE id = ?", id)

	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting execution: %w", err)
	}
	return exec, nil
}

// List retrieves executions, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Execution, error) {
	q := database.NewQuery("schedule_executions").
		Select(executionColumns).
		WhereIf("schedule_id", opts.ScheduleID).
		WhereIf("tenant_id", opts.TenantID).
		WhereIf("status", string(opts.Status)).
		OrderByDesc("triggered_at").
		Limit(opts.Limit).
		Offset(opts.Offset)
	if !opts.Since.IsZero() {
		q.Filter("triggered_at", database.OpGte, database.FormatTime(opts.Since))
	}

	query, args := q.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}

	return execs, nil
}

// Summary aggregates the history of a schedule as seen at now: the latest
// execution at or before now, the number of executions in (now-window, now],
// and up to recent execution times, newest first. Executions recorded after
// now are ignored so that replaying an old instant is deterministic.
func (s *Store) Summary(ctx context.Context, scheduleID string, window time.Duration, now time.Time, recent int) (policy.HistorySummary, error) {
	var summary policy.HistorySummary
	upper := database.FormatTime(now)

	var last sql.NullString
	var inWindow int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			MAX(triggered_at),
			COALESCE(SUM(CASE WHEN triggered_at > ? THEN 1 ELSE 0 END), 0)
		FROM schedule_executions
		WHERE schedule_id = ? AND triggered_at <= ?
	`, database.FormatTime(now.Add(-window)), scheduleID, upper).Scan(&last, &inWindow)
	if err != nil {
		return summary, fmt.Errorf("summarizing executions: %w", err)
	}

	if summary.LastExecutionAt, err = database.ParseNullTime(last); err != nil {
		return summary, fmt.Errorf("parsing last execution: %w", err)
	}
	summary.ExecutionsInWindow = inWindow

	if recent <= 0 || summary.LastExecutionAt == nil {
		return summary, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT triggered_at FROM schedule_executions
		WHERE schedule_id = ? AND triggered_at <= ?
		ORDER BY triggered_at DESC
		LIMIT ?
	`, scheduleID, upper, recent)
	if err != nil {
		return summary, fmt.Errorf("querying recent executions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ts string
		if err := rows.Scan(&ts); err != nil {
			return summary, fmt.Errorf("scanning recent execution: %w", err)
		}
		t, err := database.ParseTime(ts)
		if err != nil {
			return summary, err
		}
		summary.RecentExecutions = append(summary.RecentExecutions, t)
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("iterating recent executions: %w", err)
	}

	return summary, nil
}

// DeleteOlderThan deletes executions triggered before cutoff and returns how
// many were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM schedule_executions WHERE triggered_at < ?`, database.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting old executions: %w", err)
	}
	return res.RowsAffected()
}

// RecordDecision appends a decision to the audit trail.
func (s *Store) RecordDecision(ctx context.Context, rec *DecisionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	var details sql.NullString
	if len(rec.Decision.Details) > 0 {
		data, err := json.Marshal(rec.Decision.Details)
		if err != nil {
			return fmt.Errorf("marshaling decision details: %w", err)
		}
		details = sql.NullString{String: string(data), Valid: true}
	}

	var blockedBy sql.NullString
	if rec.Decision.BlockedBy != policy.BlockedByNone {
		blockedBy = sql.NullString{String: string(rec.Decision.BlockedBy), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_decisions (
			id, schedule_id, tenant_id, correlation_id, should_trigger, blocked_by,
			reason, next_eligible_at, details, dry_run, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.ScheduleID,
		rec.TenantID,
		rec.CorrelationID,
		rec.Decision.ShouldTrigger,
		blockedBy,
		rec.Decision.Reason,
		database.FormatTimePtr(rec.Decision.NextEligibleAt),
		details,
		rec.DryRun,
		database.FormatTime(rec.Decision.EvaluatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting decision: %w", database.ClassifyError(err))
	}
	return nil
}

// ListDecisions retrieves audited decisions, newest first.
func (s *Store) ListDecisions(ctx context.Context, opts DecisionListOptions) ([]*DecisionRecord, error) {
	q := database.NewQuery("schedule_decisions").
		Select("id", "schedule_id", "tenant_id", "correlation_id", "should_trigger", "blocked_by",
			"reason", "next_eligible_at", "details", "dry_run", "evaluated_at").
		WhereIf("schedule_id", opts.ScheduleID).
		WhereIf("correlation_id", opts.CorrelationID).
		WhereIf("blocked_by", string(opts.BlockedBy)).
		OrderByDesc("evaluated_at").
		Limit(opts.Limit)
	if opts.TriggeredOnly {
		q.Where("should_trigger", 1)
	}

	query, args := q.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var records []*DecisionRecord
	for rows.Next() {
		var (
			rec                DecisionRecord
			blockedBy, details sql.NullString
			nextEligible       sql.NullString
			evaluatedAt        string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.ScheduleID,
			&rec.TenantID,
			&rec.CorrelationID,
			&rec.Decision.ShouldTrigger,
			&blockedBy,
			&rec.Decision.Reason,
			&nextEligible,
			&details,
			&rec.DryRun,
			&evaluatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}

		rec.Decision.BlockedBy = policy.BlockReason(blockedBy.String)
		if rec.Decision.NextEligibleAt, err = database.ParseNullTime(nextEligible); err != nil {
			return nil, err
		}
		if rec.Decision.EvaluatedAt, err = database.ParseTime(evaluatedAt); err != nil {
			return nil, err
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &rec.Decision.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling decision details: %w", err)
			}
		}

		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decisions: %w", err)
	}

	return records, nil
}

// DeleteDecisionsOlderThan deletes decisions evaluated before cutoff.
func (s *Store) DeleteDecisionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM schedule_decisions WHERE evaluated_at < ?`, database.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting old decisions: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*Execution, error) {
	var exec Execution
	var status, triggeredAt string

	if err := row.Scan(
		&exec.ID,
		&exec.ScheduleID,
		&exec.TenantID,
		&exec.CorrelationID,
		&status,
		&triggeredAt,
	); err != nil {
		return nil, err
	}

	exec.Status = Status(status)
	t, err := database.ParseTime(triggeredAt)
	if err != nil {
		return nil, fmt.Errorf("parsing triggered_at: %w", err)
	}
	exec.TriggeredAt = t

	return &exec, nil
}
