package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/executions"
	"github.com/watzon/cadence/internal/policy"
	"github.com/watzon/cadence/internal/runner"
	"github.com/watzon/cadence/internal/schedules"
)

// ScheduleResponse is a stored schedule together with the runner's view of it.
type ScheduleResponse struct {
	ID         string                `json:"id"`
	Definition policy.DefinitionSpec `json:"definition"`
	Policy     policy.PolicySpec     `json:"policy"`
	State      *StateResponse        `json:"state,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

type StateResponse struct {
	LastEvaluatedAt *time.Time         `json:"lastEvaluatedAt,omitempty"`
	LastTriggeredAt *time.Time         `json:"lastTriggeredAt,omitempty"`
	NextEligibleAt  *time.Time         `json:"nextEligibleAt,omitempty"`
	LastBlockedBy   policy.BlockReason `json:"lastBlockedBy"`
	LastReason      string             `json:"lastReason,omitempty"`
	TriggerCount    int                `json:"triggerCount"`
}

func toScheduleResponse(s *schedules.Schedule, state *runner.ScheduleState) ScheduleResponse {
	resp := ScheduleResponse{
		ID:         s.ID,
		Definition: s.Definition.Spec(),
		Policy:     s.Policy.Spec(),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	if state != nil {
		resp.State = &StateResponse{
			LastEvaluatedAt: state.LastEvaluatedAt,
			LastTriggeredAt: state.LastTriggeredAt,
			NextEligibleAt:  state.NextEligibleAt,
			LastBlockedBy:   state.LastBlockedBy,
			LastReason:      state.LastReason,
			TriggerCount:    state.TriggerCount,
		}
	}
	return resp
}

// ListSchedules handles GET /api/schedules.
func (h *Handlers) ListSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, offset, err := pageParams(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	list, err := h.schedules.List(ctx, schedules.ListOptions{
		TenantID:    r.URL.Query().Get("tenant"),
		EnabledOnly: r.URL.Query().Get("enabled") == "true",
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to list schedules")
		InternalError(w, "Failed to list schedules")
		return
	}

	states, err := h.state.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load schedule states")
		InternalError(w, "Failed to list schedules")
		return
	}

	items := make([]ScheduleResponse, 0, len(list))
	for _, s := range list {
		items = append(items, toScheduleResponse(s, states[s.ID]))
	}

	JSON(w, http.StatusOK, map[string]any{
		"schedules": items,
		"count":     len(items),
	})
}

// GetSchedule handles GET /api/schedules/{id}.
func (h *Handlers) GetSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	schedule, err := h.schedules.Get(ctx, id)
	if errors.Is(err, schedules.ErrNotFound) {
		NotFound(w, "Schedule not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to get schedule")
		InternalError(w, "Failed to get schedule")
		return
	}

	state, err := h.state.Get(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to load schedule state")
		InternalError(w, "Failed to get schedule")
		return
	}

	JSON(w, http.StatusOK, toScheduleResponse(schedule, state))
}

// DecisionResponse is one audited decision.
type DecisionResponse struct {
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlationId,omitempty"`
	DryRun        bool            `json:"dryRun"`
	Decision      policy.Decision `json:"decision"`
}

// ListDecisions handles GET /api/schedules/{id}/decisions.
func (h *Handlers) ListDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	limit, _, err := pageParams(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	records, err := h.executions.ListDecisions(ctx, executions.DecisionListOptions{
		ScheduleID:    id,
		BlockedBy:     policy.BlockReason(strings.ToUpper(r.URL.Query().Get("blocked_by"))),
		TriggeredOnly: r.URL.Query().Get("triggered") == "true",
		Limit:         limit,
	})
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to list decisions")
		InternalError(w, "Failed to list decisions")
		return
	}

	items := make([]DecisionResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, DecisionResponse{
			ID:            rec.ID,
			CorrelationID: rec.CorrelationID,
			DryRun:        rec.DryRun,
			Decision:      rec.Decision,
		})
	}

	JSON(w, http.StatusOK, map[string]any{
		"decisions": items,
		"count":     len(items),
	})
}
