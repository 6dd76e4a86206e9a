package policy

import (
	"fmt"
	"time"
)

// Request bundles the three evaluation inputs in their wire form. It is the
// document accepted by the CLI and the ops API.
type Request struct {
	Definition DefinitionSpec `json:"definition" yaml:"definition"`
	Policy     *PolicySpec    `json:"policy,omitempty" yaml:"policy,omitempty"`
	Context    ContextSpec    `json:"context" yaml:"context"`
}

// Build validates every part of the request. A missing policy means no
// restriction.
func (r Request) Build() (*Definition, *Policy, EvaluationContext, error) {
	def, err := r.Definition.Build()
	if err != nil {
		return nil, nil, EvaluationContext{}, fmt.Errorf("definition: %w", err)
	}

	pol := &Policy{}
	if r.Policy != nil {
		if pol, err = r.Policy.Build(); err != nil {
			return nil, nil, EvaluationContext{}, fmt.Errorf("policy: %w", err)
		}
	}

	ec, err := r.Context.Build()
	if err != nil {
		return nil, nil, EvaluationContext{}, fmt.Errorf("context: %w", err)
	}
	return def, pol, ec, nil
}

// EvaluateRequest builds r and evaluates it.
func (s *Service) EvaluateRequest(r Request) (Decision, error) {
	def, pol, ec, err := r.Build()
	if err != nil {
		return Decision{}, err
	}
	return s.Evaluate(def, pol, ec), nil
}

// NextEligibleRequest builds r and projects its next eligible instant.
func (s *Service) NextEligibleRequest(r Request) (*time.Time, error) {
	def, pol, ec, err := r.Build()
	if err != nil {
		return nil, err
	}
	return s.NextEligible(def, pol, ec), nil
}
