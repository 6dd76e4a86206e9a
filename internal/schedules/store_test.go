package schedules

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/cadence/internal/config"
	"github.com/watzon/cadence/internal/database"
	"github.com/watzon/cadence/internal/policy"
)

func testStore(t *testing.T) (*Store, *database.DB) {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		ForeignKeys: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return NewStore(db), db
}

func calendarDefinition(t *testing.T, tenant, name string) *policy.Definition {
	t.Helper()

	dow := time.Monday
	def, err := policy.NewDefinition(tenant, name,
		policy.CalendarConfig{Hour: 9, Minute: 30, DayOfWeek: &dow},
		policy.WithTimezone("Europe/Berlin"))
	require.NoError(t, err)
	return def
}

func TestStore_CreateAndGet(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	pol, err := policy.NewPolicy(policy.Policy{
		ExcludedDates:      []string{"2024-12-25"},
		AllowedTimeWindows: []policy.TimeWindow{{Start: "08:00", End: "18:00"}},
		Cooldown:           5 * time.Minute,
		SkipMissed:         true,
	})
	require.NoError(t, err)

	created, err := store.Create(ctx, calendarDefinition(t, "acme", "weekly"), pol)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, "acme/weekly", got.Key())
	assert.Equal(t, policy.ScheduleTypeCalendar, got.Definition.Type)
	assert.Equal(t, "Europe/Berlin", got.Definition.Timezone)
	assert.Equal(t, "Europe/Berlin", got.Definition.Location().String())
	assert.True(t, got.Definition.Enabled)

	cal, ok := got.Definition.Config.(policy.CalendarConfig)
	require.True(t, ok)
	assert.Equal(t, 9, cal.Hour)
	assert.Equal(t, 30, cal.Minute)
	require.NotNil(t, cal.DayOfWeek)
	assert.Equal(t, time.Monday, *cal.DayOfWeek)
	assert.Nil(t, cal.DayOfMonth)

	assert.Equal(t, []string{"2024-12-25"}, got.Policy.ExcludedDates)
	assert.Equal(t, 5*time.Minute, got.Policy.Cooldown)
	assert.True(t, got.Policy.SkipMissed)
	require.Len(t, got.Policy.AllowedTimeWindows, 1)
	assert.Equal(t, "08:00", got.Policy.AllowedTimeWindows[0].Start)

	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
}

func TestStore_CreateNilPolicy(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	def, err := policy.NewDefinition("acme", "once", policy.OnceConfig{
		TargetDate: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	created, err := store.Create(ctx, def, nil)
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Policy)
	assert.Equal(t, policy.Policy{}, *got.Policy)

	once, ok := got.Definition.Config.(policy.OnceConfig)
	require.True(t, ok)
	assert.True(t, once.TargetDate.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)))
}

func TestStore_CreateDuplicate(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, calendarDefinition(t, "acme", "weekly"), nil)
	require.NoError(t, err)

	_, err = store.Create(ctx, calendarDefinition(t, "acme", "weekly"), nil)
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = store.Create(ctx, calendarDefinition(t, "globex", "weekly"), nil)
	require.NoError(t, err, "names are scoped per tenant")
}

func TestStore_GetNotFound(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetByName(ctx, "acme", "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, store.Delete(ctx, "missing"), ErrNotFound)
}

func TestStore_Update(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, calendarDefinition(t, "acme", "weekly"), nil)
	require.NoError(t, err)

	def, err := policy.NewDefinition("acme", "weekly", policy.IntervalConfig{Hours: 2}, policy.WithEnabled(false))
	require.NoError(t, err)
	created.Definition = def
	created.Policy = &policy.Policy{MaxExecutionsPerWindow: 3}
	require.NoError(t, store.Update(ctx, created))

	got, err := store.GetByName(ctx, "acme", "weekly")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, policy.ScheduleTypeInterval, got.Definition.Type)
	assert.False(t, got.Definition.Enabled)
	assert.Equal(t, policy.IntervalConfig{Hours: 2}, got.Definition.Config)
	assert.Equal(t, 3, got.Policy.MaxExecutionsPerWindow)

	created.ID = "missing"
	require.ErrorIs(t, store.Update(ctx, created), ErrNotFound)
}

func TestStore_Upsert(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	first, created, err := store.Upsert(ctx, calendarDefinition(t, "acme", "weekly"), nil)
	require.NoError(t, err)
	require.True(t, created)

	def, err := policy.NewDefinition("acme", "weekly", policy.IntervalConfig{Minutes: 15})
	require.NoError(t, err)

	second, created, err := store.Upsert(ctx, def, &policy.Policy{Cooldown: time.Minute})
	require.NoError(t, err)
	require.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt.Truncate(time.Millisecond)))

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.IntervalConfig{Minutes: 15}, got.Definition.Config)
	assert.Equal(t, time.Minute, got.Policy.Cooldown)
}

func TestStore_List(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	for _, key := range [][2]string{{"globex", "b"}, {"acme", "z"}, {"acme", "a"}} {
		_, err := store.Create(ctx, calendarDefinition(t, key[0], key[1]), nil)
		require.NoError(t, err)
	}

	disabled, err := policy.NewDefinition("acme", "off", policy.IntervalConfig{Minutes: 1}, policy.WithEnabled(false))
	require.NoError(t, err)
	_, err = store.Create(ctx, disabled, nil)
	require.NoError(t, err)

	keys := func(list []*Schedule) []string {
		out := make([]string, len(list))
		for i, s := range list {
			out[i] = s.Key()
		}
		return out
	}

	all, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/a", "acme/off", "acme/z", "globex/b"}, keys(all))

	acme, err := store.ListByTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/a", "acme/off", "acme/z"}, keys(acme))

	enabled, err := store.List(ctx, ListOptions{TenantID: "acme", EnabledOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/a", "acme/z"}, keys(enabled))

	page, err := store.List(ctx, ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/off", "acme/z"}, keys(page))
}

func TestStore_RejectsCorruptRow(t *testing.T) {
	store, db := testStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, calendarDefinition(t, "acme", "weekly"), nil)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE schedules SET timezone = 'Mars/Olympus' WHERE id = ?`, created.ID)
	require.NoError(t, err)

	_, err = store.Get(ctx, created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrInvalidDefinition)
}

func TestStore_DeleteCascades(t *testing.T) {
	store, db := testStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, calendarDefinition(t, "acme", "weekly"), nil)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO schedule_executions (id, schedule_id, tenant_id, triggered_at) VALUES ('e1', ?, 'acme', ?)`,
		created.ID, database.Now())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, created.ID))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedule_executions`).Scan(&count))
	assert.Zero(t, count)
}
