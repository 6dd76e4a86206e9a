package schedules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/cadence/internal/policy"
)

const testManifest = `
tenant: acme
schedules:
  - name: nightly-report
    type: CALENDAR
    timezone: Europe/Berlin
    config:
      hour: 2
      minute: 30
    policy:
      excludedDaysOfWeek: [0, 6]
      cooldownPeriodMs: 60000
  - name: heartbeat
    type: interval
    config:
      minutes: 5
    policy:
      allowedTimeWindows:
        - startTime: "22:00"
          endTime: "06:00"
          daysOfWeek: [1, 2, 3, 4, 5]
  - name: launch
    tenant: globex
    type: ONCE
    enabled: false
    config:
      targetDate: "2024-07-01T09:00:00"
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	assert.Equal(t, "acme", m.Tenant)
	require.Len(t, m.Schedules, 3)
	assert.Equal(t, "nightly-report", m.Schedules[0].Name)
	require.NotNil(t, m.Schedules[0].Config.Hour)
	assert.Equal(t, 2, *m.Schedules[0].Config.Hour)
	assert.Equal(t, int64(60000), m.Schedules[0].Policy.CooldownPeriodMs)
}

func TestParseManifest_UnknownField(t *testing.T) {
	_, err := ParseManifest([]byte("tenant: acme\nschedulez: []\n"))
	require.Error(t, err)
}

func TestManifest_Build(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	entries, err := m.Build()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	report := entries[0]
	assert.Equal(t, "acme", report.Definition.TenantID)
	assert.Equal(t, policy.ScheduleTypeCalendar, report.Definition.Type)
	assert.Equal(t, []time.Weekday{time.Sunday, time.Saturday}, report.Policy.ExcludedDaysOfWeek)
	assert.Equal(t, time.Minute, report.Policy.Cooldown)

	heartbeat := entries[1]
	assert.Equal(t, policy.ScheduleTypeInterval, heartbeat.Definition.Type, "type is case-insensitive")
	assert.Equal(t, "UTC", heartbeat.Definition.Timezone)
	require.Len(t, heartbeat.Policy.AllowedTimeWindows, 1)

	launch := entries[2]
	assert.Equal(t, "globex", launch.Definition.TenantID)
	assert.False(t, launch.Definition.Enabled)
	once := launch.Definition.Config.(policy.OnceConfig)
	assert.True(t, once.TargetDate.Equal(time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)))
}

func TestManifest_BuildReportsEveryError(t *testing.T) {
	m := &Manifest{
		Tenant: "acme",
		Schedules: []ManifestEntry{
			{Name: "bad-type", Type: "HOURLY"},
			{Name: "ok", Type: policy.ScheduleTypeInterval, Config: policy.ConfigSpec{Minutes: 1}},
			{Name: "bad-policy", Type: policy.ScheduleTypeInterval, Config: policy.ConfigSpec{Minutes: 1},
				Policy: policy.PolicySpec{ExcludedDates: []string{"tomorrow"}}},
			{Name: "ok", Type: policy.ScheduleTypeInterval, Config: policy.ConfigSpec{Hours: 1}},
		},
	}

	_, err := m.Build()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "schedules[0] (bad-type)")
	assert.Contains(t, msg, "schedules[2] (bad-policy)")
	assert.Contains(t, msg, "schedules[3] (ok): duplicates schedules[1]")

	assert.ErrorIs(t, err, policy.ErrInvalidDefinition)
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)
}

func TestStore_Sync(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	result, err := store.Sync(ctx, m, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/nightly-report", "acme/heartbeat", "globex/launch"}, result.Created)
	assert.Empty(t, result.Updated)

	result, err = store.Sync(ctx, m, SyncOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Len(t, result.Updated, 3)

	all, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_SyncPrune(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, calendarDefinition(t, "acme", "legacy"), nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, calendarDefinition(t, "initech", "untouched"), nil)
	require.NoError(t, err)

	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	result, err := store.Sync(ctx, m, SyncOptions{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/legacy"}, result.Deleted)

	_, err = store.GetByName(ctx, "acme", "legacy")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetByName(ctx, "initech", "untouched")
	require.NoError(t, err, "tenants absent from the manifest are left alone")
}

func TestStore_SyncInvalidWritesNothing(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	m := &Manifest{
		Tenant: "acme",
		Schedules: []ManifestEntry{
			{Name: "ok", Type: policy.ScheduleTypeInterval, Config: policy.ConfigSpec{Minutes: 1}},
			{Name: "broken", Type: policy.ScheduleTypeCalendar},
		},
	}

	_, err := store.Sync(ctx, m, SyncOptions{})
	require.Error(t, err)

	all, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, m.Schedules, 3)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
