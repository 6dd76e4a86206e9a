package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/watzon/cadence/internal/policy"
)

// EvaluateResponse carries the decision and the policy-free projection.
type EvaluateResponse struct {
	Decision       policy.Decision `json:"decision"`
	NextEligibleAt *time.Time      `json:"nextEligibleAt"`
}

// Evaluate handles POST /api/evaluate. Nothing is persisted.
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req policy.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		BadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	def, pol, ec, err := req.Build()
	if err != nil {
		ValidationFailed(w, err)
		return
	}

	JSON(w, http.StatusOK, EvaluateResponse{
		Decision:       h.engine.Evaluate(def, pol, ec),
		NextEligibleAt: h.engine.NextEligible(def, pol, ec),
	})
}
