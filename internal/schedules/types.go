// Package schedules persists schedule definitions together with their policy
// overlay and keeps them in sync with a YAML manifest.
package schedules

import (
	"errors"
	"time"

	"github.com/watzon/cadence/internal/policy"
)

var (
	// ErrNotFound is returned when no schedule matches the lookup.
	ErrNotFound = errors.New("schedule not found")
	// ErrAlreadyExists is returned when a tenant already has a schedule with
	// the same name.
	ErrAlreadyExists = errors.New("schedule already exists")
)

// Schedule is a stored definition and the policy that governs it.
type Schedule struct {
	ID         string
	Definition *policy.Definition
	Policy     *policy.Policy
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TenantID returns the owning tenant.
func (s *Schedule) TenantID() string { return s.Definition.TenantID }

// Name returns the schedule name, unique per tenant.
func (s *Schedule) Name() string { return s.Definition.Name }

// Key identifies the schedule as "<tenant>/<name>".
func (s *Schedule) Key() string {
	return s.Definition.TenantID + "/" + s.Definition.Name
}

// ListOptions filters List.
type ListOptions struct {
	TenantID    string
	EnabledOnly bool
	Limit       int
	Offset      int
}
