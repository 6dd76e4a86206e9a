package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/executions"
)

// ListExecutions handles GET /api/executions.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	limit, offset, err := pageParams(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	opts := executions.ListOptions{
		ScheduleID: query.Get("schedule_id"),
		TenantID:   query.Get("tenant"),
		Status:     executions.Status(query.Get("status")),
		Limit:      limit,
		Offset:     offset,
	}
	if since := query.Get("since"); since != "" {
		if opts.Since, err = time.Parse(time.RFC3339, since); err != nil {
			BadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
	}

	list, err := h.executions.List(ctx, opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list executions")
		InternalError(w, "Failed to list executions")
		return
	}
	if list == nil {
		list = []*executions.Execution{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"executions": list,
		"count":      len(list),
	})
}
