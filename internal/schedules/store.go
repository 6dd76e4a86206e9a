package schedules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/cadence/internal/database"
	"github.com/watzon/cadence/internal/policy"
)

const scheduleColumns = "id, tenant_id, name, type, config, timezone, enabled, policy, created_at, updated_at"

// Store handles database operations for schedules.
type Store struct {
	db *database.DB
}

// NewStore creates a new schedule store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new schedule. A nil policy is stored as the empty policy.
func (s *Store) Create(ctx context.Context, def *policy.Definition, pol *policy.Policy) (*Schedule, error) {
	now := time.Now().UTC()
	schedule := &Schedule{
		ID:         uuid.New().String(),
		Definition: def,
		Policy:     orEmpty(pol),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := insert(ctx, s.db, schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

// Update replaces the definition and policy of an existing schedule. The
// tenant and name may change as long as they stay unique.
func (s *Store) Update(ctx context.Context, schedule *Schedule) error {
	schedule.Policy = orEmpty(schedule.Policy)
	schedule.UpdatedAt = time.Now().UTC()

	res, err := update(ctx, s.db, schedule)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, schedule.ID)
	}
	return nil
}

// Upsert creates the schedule named by def for its tenant, or replaces the
// definition and policy of the existing one. created reports which happened.
func (s *Store) Upsert(ctx context.Context, def *policy.Definition, pol *policy.Policy) (schedule *Schedule, created bool, err error) {
	err = s.db.Transaction(ctx, func(tx *database.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT "+scheduleColumns+" FROM schedules WHERE tenant_id = ? AND name = ?",
			def.TenantID, def.Name)

		existing, scanErr := scanSchedule(row)
		switch {
		case errors.Is(scanErr, sql.ErrNoRows):
			now := time.Now().UTC()
			schedule = &Schedule{
				ID:         uuid.New().String(),
				Definition: def,
				Policy:     orEmpty(pol),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			created = true
			return insert(ctx, tx, schedule)
		case scanErr != nil:
			return fmt.Errorf("getting schedule: %w", scanErr)
		}

		existing.Definition = def
		existing.Policy = orEmpty(pol)
		existing.UpdatedAt = time.Now().UTC()
		schedule = existing
		_, updErr := update(ctx, tx, existing)
		return updErr
	})
	if err != nil {
		return nil, false, err
	}
	return schedule, created, nil
}

// Delete removes a schedule together with its state and history.
func (s *Store) Delete(ctx context.Context, scheduleID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, scheduleID)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, scheduleID)
	}
	return nil
}

// Get retrieves a schedule by ID.
func (s *Store) Get(ctx context.Context, scheduleID string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+scheduleColumns+" FROM schedules WHERE id = ?", scheduleID)

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, scheduleID)
		}
		return nil, fmt.Errorf("getting schedule: %w", err)
	}
	return schedule, nil
}

// GetByName retrieves a schedule by tenant and name.
func (s *Store) GetByName(ctx context.Context, tenantID, name string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+scheduleColumns+" FROM schedules WHERE tenant_id = ? AND name = ?", tenantID, name)

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, tenantID, name)
		}
		return nil, fmt.Errorf("getting schedule: %w", err)
	}
	return schedule, nil
}

// List retrieves schedules ordered by tenant and name.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Schedule, error) {
	q := database.NewQuery("schedules").
		Select(scheduleColumns).
		WhereIf("tenant_id", opts.TenantID).
		OrderBy("tenant_id").
		OrderBy("name").
		Limit(opts.Limit).
		Offset(opts.Offset)
	if opts.EnabledOnly {
		q.Where("enabled", 1)
	}

	query, args := q.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule row: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedule rows: %w", err)
	}

	return schedules, nil
}

// ListByTenant retrieves every schedule owned by tenantID.
func (s *Store) ListByTenant(ctx context.Context, tenantID string) ([]*Schedule, error) {
	return s.List(ctx, ListOptions{TenantID: tenantID})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func insert(ctx context.Context, db execer, schedule *Schedule) error {
	configJSON, policyJSON, err := encode(schedule)
	if err != nil {
		return err
	}

	def := schedule.Definition
	_, err = db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		schedule.ID,
		def.TenantID,
		def.Name,
		string(def.Type),
		configJSON,
		def.Timezone,
		def.Enabled,
		policyJSON,
		database.FormatTime(schedule.CreatedAt),
		database.FormatTime(schedule.UpdatedAt),
	)
	if err != nil {
		return wrapWriteError("inserting schedule", schedule, err)
	}
	return nil
}

func update(ctx context.Context, db execer, schedule *Schedule) (sql.Result, error) {
	configJSON, policyJSON, err := encode(schedule)
	if err != nil {
		return nil, err
	}

	def := schedule.Definition
	res, err := db.ExecContext(ctx, `
		UPDATE schedules
		SET tenant_id = ?, name = ?, type = ?, config = ?, timezone = ?, enabled = ?, policy = ?, updated_at = ?
		WHERE id = ?
	`,
		def.TenantID,
		def.Name,
		string(def.Type),
		configJSON,
		def.Timezone,
		def.Enabled,
		policyJSON,
		database.FormatTime(schedule.UpdatedAt),
		schedule.ID,
	)
	if err != nil {
		return nil, wrapWriteError("updating schedule", schedule, err)
	}
	return res, nil
}

func wrapWriteError(action string, schedule *Schedule, err error) error {
	err = database.ClassifyError(err)
	if database.IsUniqueError(err) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, schedule.Key())
	}
	return fmt.Errorf("%s: %w", action, err)
}

func encode(schedule *Schedule) (configJSON, policyJSON string, err error) {
	spec := schedule.Definition.Spec()
	c, err := json.Marshal(spec.Config)
	if err != nil {
		return "", "", fmt.Errorf("marshaling config: %w", err)
	}
	p, err := json.Marshal(schedule.Policy.Spec())
	if err != nil {
		return "", "", fmt.Errorf("marshaling policy: %w", err)
	}
	return string(c), string(p), nil
}

// scanSchedule rebuilds a row through the policy constructors, so a row that
// no longer validates surfaces as an error rather than a half-built schedule.
func scanSchedule(row scanner) (*Schedule, error) {
	var (
		schedule             Schedule
		spec                 policy.DefinitionSpec
		scheduleType         string
		configJSON           string
		policyJSON           string
		enabled              bool
		createdAt, updatedAt string
	)

	err := row.Scan(
		&schedule.ID,
		&spec.TenantID,
		&spec.Name,
		&scheduleType,
		&configJSON,
		&spec.Timezone,
		&enabled,
		&policyJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	spec.Type = policy.ScheduleType(scheduleType)
	spec.Enabled = &enabled
	if err := json.Unmarshal([]byte(configJSON), &spec.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling config of %s: %w", schedule.ID, err)
	}
	if schedule.Definition, err = spec.Build(); err != nil {
		return nil, fmt.Errorf("rebuilding definition %s: %w", schedule.ID, err)
	}

	var polSpec policy.PolicySpec
	if err := json.Unmarshal([]byte(policyJSON), &polSpec); err != nil {
		return nil, fmt.Errorf("unmarshaling policy of %s: %w", schedule.ID, err)
	}
	if schedule.Policy, err = polSpec.Build(); err != nil {
		return nil, fmt.Errorf("rebuilding policy %s: %w", schedule.ID, err)
	}

	if schedule.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if schedule.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &schedule, nil
}

func orEmpty(pol *policy.Policy) *policy.Policy {
	if pol == nil {
		return &policy.Policy{}
	}
	return pol
}
