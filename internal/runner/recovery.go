package runner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/schedules"
)

// MissedSchedule is a schedule that was due while no runner was evaluating it.
type MissedSchedule struct {
	ScheduleID  string
	Key         string
	MissedTicks int
	WasEligible bool
	LastReason  string
}

// Recover reports the schedules that missed passes while the runner was
// down. Nothing is replayed: the next pass evaluates them at the current
// time, and interval schedules decide through skipMissed how to treat the gap.
func (r *Runner) Recover(ctx context.Context) ([]MissedSchedule, error) {
	list, err := r.schedules.List(ctx, schedules.ListOptions{EnabledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("loading schedules from database: %w", err)
	}

	states, err := r.state.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading schedule states: %w", err)
	}

	now := r.now().UTC()
	var missed []MissedSchedule
	for _, schedule := range list {
		state, ok := states[schedule.ID]
		if !ok || state.LastEvaluatedAt == nil {
			log.Debug().
				Str("schedule", schedule.Key()).
				Msg("Schedule has never been evaluated")
			continue
		}

		ticks := r.tick.MissedBetween(*state.LastEvaluatedAt, now)
		if ticks <= 1 {
			continue
		}

		m := MissedSchedule{
			ScheduleID:  schedule.ID,
			Key:         schedule.Key(),
			MissedTicks: ticks - 1,
			WasEligible: state.NextEligibleAt != nil && state.NextEligibleAt.Before(now),
			LastReason:  state.LastReason,
		}
		missed = append(missed, m)

		log.Info().
			Str("schedule_id", m.ScheduleID).
			Str("schedule", m.Key).
			Int("missed_ticks", m.MissedTicks).
			Bool("was_eligible", m.WasEligible).
			Msg("Detected missed evaluations during downtime")
	}

	log.Info().
		Int("count", len(list)).
		Int("missed", len(missed)).
		Msg("Recovered schedules from database")

	return missed, nil
}
