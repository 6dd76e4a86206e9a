package policy

import (
	"sort"
	"time"
)

// ContextOption customizes NewEvaluationContext.
type ContextOption func(*EvaluationContext)

func WithDryRun(dryRun bool) ContextOption {
	return func(ec *EvaluationContext) {
		ec.DryRun = dryRun
	}
}

func WithCorrelationID(id string) ContextOption {
	return func(ec *EvaluationContext) {
		ec.CorrelationID = id
	}
}

// NewEvaluationContext validates and builds an EvaluationContext. Recent
// executions are copied and ordered newest first; when no last execution is
// given the newest recent execution stands in for it.
func NewEvaluationContext(now time.Time, history HistorySummary, opts ...ContextOption) (EvaluationContext, error) {
	v := &validator{cause: ErrInvalidContext}
	if now.IsZero() {
		v.add("now", "is required")
	}
	if history.ExecutionsInWindow < 0 {
		v.add("executionHistory.executionsInWindow", "must not be negative")
	}
	if err := v.errs.orNil(); err != nil {
		return EvaluationContext{}, err
	}

	ec := EvaluationContext{Now: now}
	if len(history.RecentExecutions) > 0 {
		recent := append([]time.Time(nil), history.RecentExecutions...)
		sort.Slice(recent, func(i, j int) bool { return recent[i].After(recent[j]) })
		ec.History.RecentExecutions = recent
	}
	ec.History.ExecutionsInWindow = history.ExecutionsInWindow
	switch {
	case history.LastExecutionAt != nil:
		last := *history.LastExecutionAt
		ec.History.LastExecutionAt = &last
	case len(ec.History.RecentExecutions) > 0:
		last := ec.History.RecentExecutions[0]
		ec.History.LastExecutionAt = &last
	}

	for _, opt := range opts {
		opt(&ec)
	}
	return ec, nil
}

// HistorySpec is the wire form of a HistorySummary.
type HistorySpec struct {
	LastExecutionAt    *time.Time  `json:"lastExecutionAt,omitempty" yaml:"lastExecutionAt,omitempty"`
	ExecutionsInWindow int         `json:"executionsInWindow,omitempty" yaml:"executionsInWindow,omitempty"`
	RecentExecutions   []time.Time `json:"recentExecutions,omitempty" yaml:"recentExecutions,omitempty"`
}

// ContextSpec is the wire form of an EvaluationContext.
type ContextSpec struct {
	Now              time.Time   `json:"now" yaml:"now"`
	ExecutionHistory HistorySpec `json:"executionHistory" yaml:"executionHistory"`
	DryRun           bool        `json:"dryRun,omitempty" yaml:"dryRun,omitempty"`
	CorrelationID    string      `json:"correlationId,omitempty" yaml:"correlationId,omitempty"`
}

// Build validates the spec and returns the EvaluationContext it describes.
func (s ContextSpec) Build() (EvaluationContext, error) {
	return NewEvaluationContext(s.Now, HistorySummary{
		LastExecutionAt:    s.ExecutionHistory.LastExecutionAt,
		ExecutionsInWindow: s.ExecutionHistory.ExecutionsInWindow,
		RecentExecutions:   s.ExecutionHistory.RecentExecutions,
	}, WithDryRun(s.DryRun), WithCorrelationID(s.CorrelationID))
}
