// Package policy decides whether a scheduled action may fire at a given instant.
//
// The engine is a pure function over three inputs: a Definition (what runs and
// when), a Policy (governance constraints layered on top) and an
// EvaluationContext (the instant of judgment plus a pre-aggregated execution
// history). It never reads a wall clock, never touches storage and never logs,
// so a Service can be shared freely between goroutines.
//
// Evaluation is short-circuiting and ordered:
//
//	DISABLED > EXCLUDED_DATE > EXCLUDED_DAY > WINDOW > COOLDOWN > LIMIT > type-specific
//
// Callers gather history, call Service.Evaluate, act on the Decision and
// record the execution themselves.
package policy
