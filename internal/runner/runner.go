// Package runner drives the policy engine: on every tick it evaluates each
// enabled schedule against its execution history, audits the decision, and
// turns triggers into executions and outbox events.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/database"
	"github.com/watzon/cadence/internal/events"
	"github.com/watzon/cadence/internal/executions"
	"github.com/watzon/cadence/internal/metrics"
	"github.com/watzon/cadence/internal/policy"
	"github.com/watzon/cadence/internal/requestctx"
	"github.com/watzon/cadence/internal/schedules"
)

// Options holds configuration for Runner.
type Options struct {
	// TickSpec is the cron expression driving passes (default: every minute).
	TickSpec string
	// LimitWindow is the lookback for executionsInWindow (default: 1 hour).
	LimitWindow time.Duration
	// RecentExecutions is how many recent executions the engine sees (default: 10).
	RecentExecutions int
	// DryRun audits decisions without recording executions or publishing events.
	DryRun bool
}

// PassResult summarizes one evaluation pass.
type PassResult struct {
	At        time.Time
	Evaluated int
	Triggered int
	Blocked   int
	Skipped   int
	Failed    int
}

// Runner evaluates schedules on a cron tick.
type Runner struct {
	schedules  *schedules.Store
	executions *executions.Store
	state      *StateStore
	bus        *events.EventBus
	engine     *policy.Service
	opts       Options
	tick       *TickSchedule
	cron       *cron.Cron
	now        func() time.Time
	running    map[string]struct{} // schedule IDs mid-evaluation
	runningMu  sync.Mutex
}

// New creates a runner over db that publishes triggers to bus.
func New(db *database.DB, bus *events.EventBus, opts Options) (*Runner, error) {
	if opts.TickSpec == "" {
		opts.TickSpec = "* * * * *"
	}
	if opts.LimitWindow <= 0 {
		opts.LimitWindow = time.Hour
	}
	if opts.RecentExecutions <= 0 {
		opts.RecentExecutions = 10
	}

	tick, err := ParseTickSpec(opts.TickSpec)
	if err != nil {
		return nil, err
	}

	return &Runner{
		schedules:  schedules.NewStore(db),
		executions: executions.NewStore(db),
		state:      NewStateStore(db),
		bus:        bus,
		engine:     policy.NewService(),
		opts:       opts,
		tick:       tick,
		now:        time.Now,
		running:    make(map[string]struct{}),
	}, nil
}

// State returns the runner's state store.
func (r *Runner) State() *StateStore {
	return r.state
}

// Start schedules passes on the tick spec until Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	r.cron = cron.New(cron.WithLocation(time.UTC))

	_, err := r.cron.AddFunc(r.opts.TickSpec, func() {
		if _, err := r.Tick(ctx, r.now()); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Evaluation pass failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling tick: %w", err)
	}
	r.cron.Start()

	log.Info().
		Str("tick_spec", r.opts.TickSpec).
		Dur("limit_window", r.opts.LimitWindow).
		Bool("dry_run", r.opts.DryRun).
		Time("next_tick", r.tick.Next(r.now())).
		Msg("Runner started")

	return nil
}

// Stop waits for a running pass to finish.
func (r *Runner) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	log.Info().Msg("Runner stopped")
}

// Tick runs one evaluation pass at now, truncated to the minute. Schedules
// are evaluated one after another; a failure on one schedule is logged and
// does not stop the pass.
func (r *Runner) Tick(ctx context.Context, now time.Time) (*PassResult, error) {
	now = now.UTC().Truncate(time.Minute)
	started := time.Now()

	list, err := r.schedules.List(ctx, schedules.ListOptions{EnabledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}

	result := &PassResult{At: now}
	for _, schedule := range list {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if !r.acquire(schedule.ID) {
			log.Debug().
				Str("schedule", schedule.Key()).
				Msg("Skipping schedule, previous evaluation still running")
			result.Skipped++
			continue
		}

		decision, err := r.Evaluate(ctx, schedule, now)
		r.release(schedule.ID)

		if err != nil {
			result.Failed++
			metrics.RecordPassError()
			log.Error().
				Err(err).
				Str("schedule_id", schedule.ID).
				Str("schedule", schedule.Key()).
				Msg("Failed to evaluate schedule")
			continue
		}

		result.Evaluated++
		if decision.ShouldTrigger {
			result.Triggered++
		} else {
			result.Blocked++
		}
	}

	metrics.ObservePass(time.Since(started), len(list))

	log.Debug().
		Time("at", now).
		Int("evaluated", result.Evaluated).
		Int("triggered", result.Triggered).
		Int("blocked", result.Blocked).
		Int("failed", result.Failed).
		Msg("Evaluation pass complete")

	return result, nil
}

// Evaluate judges a single schedule at now and acts on the decision. The
// correlation ID is taken from ctx when present, otherwise a new one is
// generated for this evaluation.
func (r *Runner) Evaluate(ctx context.Context, schedule *schedules.Schedule, now time.Time) (policy.Decision, error) {
	history, err := r.executions.Summary(ctx, schedule.ID, r.opts.LimitWindow, now, r.opts.RecentExecutions)
	if err != nil {
		return policy.Decision{}, fmt.Errorf("summarizing history: %w", err)
	}

	correlationID := requestctx.CorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	ec, err := policy.NewEvaluationContext(now, history,
		policy.WithDryRun(r.opts.DryRun),
		policy.WithCorrelationID(correlationID),
	)
	if err != nil {
		return policy.Decision{}, fmt.Errorf("building evaluation context: %w", err)
	}

	decision := r.engine.Evaluate(schedule.Definition, schedule.Policy, ec)

	if err := r.executions.RecordDecision(ctx, &executions.DecisionRecord{
		ScheduleID:    schedule.ID,
		TenantID:      schedule.TenantID(),
		CorrelationID: correlationID,
		DryRun:        r.opts.DryRun,
		Decision:      decision,
	}); err != nil {
		return decision, fmt.Errorf("auditing decision: %w", err)
	}

	scheduleType := string(schedule.Definition.Type)
	metrics.RecordEvaluation(schedule.TenantID(), scheduleType, outcome(decision))

	acted := decision.ShouldTrigger && !r.opts.DryRun
	if acted {
		if err := r.fire(ctx, schedule, decision, correlationID); err != nil {
			return decision, err
		}
	}
	if decision.ShouldTrigger {
		metrics.RecordTrigger(schedule.TenantID(), scheduleType, r.opts.DryRun)
	}

	if err := r.state.Apply(ctx, schedule.ID, decision, acted); err != nil {
		return decision, err
	}

	logDecision(schedule, decision, correlationID, r.opts.DryRun)
	return decision, nil
}

// fire records the execution and publishes its trigger event.
func (r *Runner) fire(ctx context.Context, schedule *schedules.Schedule, decision policy.Decision, correlationID string) error {
	exec := &executions.Execution{
		ScheduleID:    schedule.ID,
		TenantID:      schedule.TenantID(),
		CorrelationID: correlationID,
		TriggeredAt:   decision.EvaluatedAt,
	}
	if err := r.executions.Record(ctx, exec); err != nil {
		return fmt.Errorf("recording execution: %w", err)
	}

	event := &events.Event{
		Type:   events.EventTypeTrigger,
		Source: events.TriggerSource(schedule.TenantID(), schedule.Name()),
		Action: events.ActionFire,
		Payload: events.TriggerPayload{
			ScheduleID:    schedule.ID,
			TenantID:      schedule.TenantID(),
			Name:          schedule.Name(),
			Type:          string(schedule.Definition.Type),
			ExecutionID:   exec.ID,
			CorrelationID: correlationID,
			Decision:      decision,
		},
		Metadata: events.EventMetadata{
			CorrelationID: correlationID,
			ScheduleID:    schedule.ID,
			ExecutionID:   exec.ID,
		},
	}

	if err := r.bus.Publish(ctx, event); err != nil {
		if updateErr := r.executions.UpdateStatus(ctx, exec.ID, executions.StatusFailed); updateErr != nil {
			log.Error().
				Err(updateErr).
				Str("execution_id", exec.ID).
				Msg("Failed to mark execution as failed")
		}
		return fmt.Errorf("publishing trigger: %w", err)
	}
	return nil
}

func (r *Runner) acquire(scheduleID string) bool {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()

	if _, busy := r.running[scheduleID]; busy {
		return false
	}
	r.running[scheduleID] = struct{}{}
	return true
}

func (r *Runner) release(scheduleID string) {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()
	delete(r.running, scheduleID)
}

func outcome(d policy.Decision) string {
	if d.ShouldTrigger {
		return "triggered"
	}
	return strings.ToLower(string(d.BlockedBy))
}

func logDecision(schedule *schedules.Schedule, d policy.Decision, correlationID string, dryRun bool) {
	ev := log.Debug()
	if d.ShouldTrigger {
		ev = log.Info()
	}

	ev = ev.
		Str("schedule_id", schedule.ID).
		Str("schedule", schedule.Key()).
		Str("correlation_id", correlationID).
		Bool("dry_run", dryRun).
		Str("reason", d.Reason)
	if d.BlockedBy != policy.BlockedByNone {
		ev = ev.Str("blocked_by", string(d.BlockedBy))
	}
	if d.NextEligibleAt != nil {
		ev = ev.Time("next_eligible_at", *d.NextEligibleAt)
	}

	if d.ShouldTrigger {
		ev.Msg("Schedule triggered")
		return
	}
	ev.Msg("Schedule blocked")
}
