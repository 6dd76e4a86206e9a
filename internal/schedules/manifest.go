package schedules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/watzon/cadence/internal/policy"
)

// Manifest is the YAML document that declares a tenant's schedules.
//
//	tenant: acme
//	schedules:
//	  - name: nightly-report
//	    type: CALENDAR
//	    timezone: Europe/Berlin
//	    config: {hour: 2, minute: 30}
//	    policy:
//	      excludedDaysOfWeek: [0, 6]
type Manifest struct {
	Tenant    string          `yaml:"tenant" json:"tenant"`
	Schedules []ManifestEntry `yaml:"schedules" json:"schedules"`
}

// ManifestEntry declares one schedule. Tenant falls back to the manifest's.
type ManifestEntry struct {
	Tenant   string              `yaml:"tenant,omitempty" json:"tenant,omitempty"`
	Name     string              `yaml:"name" json:"name"`
	Type     policy.ScheduleType `yaml:"type" json:"type"`
	Timezone string              `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	Enabled  *bool               `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Config   policy.ConfigSpec   `yaml:"config" json:"config"`
	Policy   policy.PolicySpec   `yaml:"policy,omitempty" json:"policy,omitempty"`
}

// Entry is a validated manifest entry.
type Entry struct {
	Definition *policy.Definition
	Policy     *policy.Policy
}

// EntryError ties a validation failure to the manifest entry that caused it.
type EntryError struct {
	Index int
	Name  string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("schedules[%d] (%s): %v", e.Index, e.Name, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes a manifest document. Unknown keys are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Build validates every entry and returns them in document order. All
// failures are reported together.
func (m *Manifest) Build() ([]Entry, error) {
	var errs []error
	entries := make([]Entry, 0, len(m.Schedules))
	seen := make(map[string]int, len(m.Schedules))

	for i, e := range m.Schedules {
		tenant := e.Tenant
		if tenant == "" {
			tenant = m.Tenant
		}

		def, err := policy.DefinitionSpec{
			TenantID: tenant,
			Name:     e.Name,
			Type:     policy.ScheduleType(strings.ToUpper(string(e.Type))),
			Config:   e.Config,
			Timezone: e.Timezone,
			Enabled:  e.Enabled,
		}.Build()
		if err != nil {
			errs = append(errs, &EntryError{Index: i, Name: e.Name, Err: err})
			continue
		}

		pol, err := e.Policy.Build()
		if err != nil {
			errs = append(errs, &EntryError{Index: i, Name: e.Name, Err: err})
			continue
		}

		key := def.TenantID + "/" + def.Name
		if first, dup := seen[key]; dup {
			errs = append(errs, &EntryError{Index: i, Name: e.Name, Err: fmt.Errorf("duplicates schedules[%d]", first)})
			continue
		}
		seen[key] = i

		entries = append(entries, Entry{Definition: def, Policy: pol})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return entries, nil
}

// SyncOptions controls Sync.
type SyncOptions struct {
	// Prune deletes schedules of the manifest's tenants that the manifest no
	// longer lists.
	Prune bool
}

// SyncResult lists the "<tenant>/<name>" keys touched by Sync.
type SyncResult struct {
	Created []string
	Updated []string
	Deleted []string
}

// Sync upserts every manifest entry into the store. Nothing is written when
// any entry fails validation.
func (s *Store) Sync(ctx context.Context, m *Manifest, opts SyncOptions) (*SyncResult, error) {
	entries, err := m.Build()
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	declared := make(map[string]bool, len(entries))
	tenants := make(map[string]bool)

	for _, e := range entries {
		schedule, created, err := s.Upsert(ctx, e.Definition, e.Policy)
		if err != nil {
			return result, fmt.Errorf("syncing %s/%s: %w", e.Definition.TenantID, e.Definition.Name, err)
		}
		declared[schedule.Key()] = true
		tenants[schedule.TenantID()] = true

		if created {
			result.Created = append(result.Created, schedule.Key())
			log.Info().Str("schedule", schedule.Key()).Str("type", string(schedule.Definition.Type)).Msg("Created schedule")
		} else {
			result.Updated = append(result.Updated, schedule.Key())
			log.Debug().Str("schedule", schedule.Key()).Msg("Updated schedule")
		}
	}

	if opts.Prune {
		if m.Tenant != "" {
			tenants[m.Tenant] = true
		}
		for tenant := range tenants {
			existing, err := s.ListByTenant(ctx, tenant)
			if err != nil {
				return result, fmt.Errorf("listing schedules of %s: %w", tenant, err)
			}
			for _, schedule := range existing {
				if declared[schedule.Key()] {
					continue
				}
				if err := s.Delete(ctx, schedule.ID); err != nil {
					return result, fmt.Errorf("pruning %s: %w", schedule.Key(), err)
				}
				result.Deleted = append(result.Deleted, schedule.Key())
				log.Info().Str("schedule", schedule.Key()).Msg("Pruned schedule")
			}
		}
	}

	return result, nil
}
