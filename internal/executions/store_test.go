package executions

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

func testDBExec(t *testing.T) *database.DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		ForeignKeys: true,
	}

	db, err := database.Open(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// seedSchedule inserts a bare schedule row so executions can reference it.
func seedSchedule(t *testing.T, db *database.DB, id string) {
	t.Helper()

	now := database.Now()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO schedules (id, tenant_id, name, type, created_at, updated_at)
		VALUES (?, 'acme', ?, 'INTERVAL', ?, ?)
	`, id, id, now, now)
	require.NoError(t, err)
}

var base = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func TestStore_RecordAndGet(t *testing.T) {
	db := testDBExec(t)
	seedSchedule(t, db, "s1")
	store := NewStore(db)
	ctx := context.Background()

	exec := &Execution{
		ScheduleID:    "s1",
		TenantID:      "acme",
		CorrelationID: "corr-1",
		TriggeredAt:   base,
	}
	require.NoError(t, store.Record(ctx, exec))
	require.NotEmpty(t, exec.ID)
	require.Equal(t, StatusTriggered, exec.Status)

	got, err := store.Get(ctx, exec.ID)
	require.NoError(t, err)
	require.Equal(t, "s1", got.ScheduleID)
	require.Equal(t, "corr-1", got.CorrelationID)
	require.True(t, got.TriggeredAt.Equal(base))

	require.NoError(t, store.UpdateStatus(ctx, exec.ID, StatusDelivered))
	got, err = store.Get(ctx, exec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, got.Status)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.UpdateStatus(ctx, "missing", StatusFailed), ErrNotFound)
}

func TestStore_RecordUnknownSchedule(t *testing.T) {
	db := testDBExec(t)
	store := NewStore(db)

	err := store.Record(context.Background(), &Execution{ScheduleID: "ghost", TenantID: "acme"})
	require.Error(t, err)
	require.True(t, database.IsForeignKeyError(err))
}

func TestStore_List(t *testing.T) {
	db := testDBExec(t)
	seedSchedule(t, db, "s1")
	seedSchedule(t, db, "s2")
	store := NewStore(db)
	ctx := context.Background()

	for i, id := range []string{"s1", "s2", "s1", "s1"} {
		require.NoError(t, store.Record(ctx, &Execution{
			ID:          id + "-" + string(rune('a'+i)),
			ScheduleID:  id,
			TenantID:    "acme",
			TriggeredAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.UpdateStatus(ctx, "s1-d", StatusFailed))

	all, err := store.List(ctx, ListOptions{ScheduleID: "s1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "s1-d", all[0].ID, "newest first")

	failed, err := store.List(ctx, ListOptions{Status: StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)

	since, err := store.List(ctx, ListOptions{Since: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, since, 3)

	page, err := store.List(ctx, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "s1-c", page[0].ID)
}

func TestStore_Summary(t *testing.T) {
	db := testDBExec(t)
	seedSchedule(t, db, "s1")
	seedSchedule(t, db, "other")
	store := NewStore(db)
	ctx := context.Background()

	offsets := []time.Duration{-3 * time.Hour, -50 * time.Minute, -10 * time.Minute, -time.Minute, time.Hour}
	for _, off := range offsets {
		require.NoError(t, store.Record(ctx, &Execution{ScheduleID: "s1", TenantID: "acme", TriggeredAt: base.Add(off)}))
	}
	require.NoError(t, store.Record(ctx, &Execution{ScheduleID: "other", TenantID: "acme", TriggeredAt: base}))

	summary, err := store.Summary(ctx, "s1", time.Hour, base, 2)
	require.NoError(t, err)

	require.NotNil(t, summary.LastExecutionAt)
	assert.True(t, summary.LastExecutionAt.Equal(base.Add(-time.Minute)), "future executions are ignored")
	assert.Equal(t, 3, summary.ExecutionsInWindow)
	require.Len(t, summary.RecentExecutions, 2)
	assert.True(t, summary.RecentExecutions[0].Equal(base.Add(-time.Minute)))
	assert.True(t, summary.RecentExecutions[1].Equal(base.Add(-10*time.Minute)))
}

func TestStore_SummaryWindowIsHalfOpen(t *testing.T) {
	db := testDBExec(t)
	seedSchedule(t, db, "s1")
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, &Execution{ScheduleID: "s1", TenantID: "acme", TriggeredAt: base.Add(-time.Hour)}))
	require.NoError(t, store.Record(ctx, &Execution{ScheduleID: "s1", TenantID: "acme", TriggeredAt: base}))

	summary, err := store.Summary(ctx, "s1", time.Hour, base, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ExecutionsInWindow)
	assert.Nil(t, summary.RecentExecutions)
}

func TestStore_SummaryEmpty(t *testing.T) {
	db := testDBExec(t)
	store := NewStore(db)

	summary, err := store.Summary(context.Background(), "none", time.Hour, base, 10)
	require.NoError(t, err)
	assert.Equal(t, policy.HistorySummary{}, summary)
}

func TestStore_Decisions(t *testing.T) {
	db := testDBExec(t)
	seedSchedule(t, db, "s1")
	store := NewStore(db)
	ctx := context.Background()

	next := base.Add(3 * time.Minute)
	blocked := &DecisionRecord{
		ScheduleID:    "s1",
		TenantID:      "acme",
		CorrelationID: "corr-1",
		DryRun:        true,
		Decision: policy.Decision{
			BlockedBy:      policy.BlockedByCooldown,
			Reason:         "cooldown active",
			NextEligibleAt: &next,
			Details:        map[string]any{"remainingMs": 180000},
			EvaluatedAt:    base,
		},
	}
	require.NoError(t, store.RecordDecision(ctx, blocked))

	triggered := &DecisionRecord{
		ScheduleID: "s1",
		TenantID:   "acme",
		Decision: policy.Decision{
			ShouldTrigger: true,
			Reason:        "interval elapsed",
			EvaluatedAt:   base.Add(5 * time.Minute),
		},
	}
	require.NoError(t, store.RecordDecision(ctx, triggered))

	all, err := store.ListDecisions(ctx, DecisionListOptions{ScheduleID: "s1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Decision.ShouldTrigger)
	assert.Equal(t, policy.BlockedByNone, all[0].Decision.BlockedBy)
	assert.Nil(t, all[0].Decision.NextEligibleAt)
	assert.Nil(t, all[0].Decision.Details)

	got := all[1]
	assert.Equal(t, policy.BlockedByCooldown, got.Decision.BlockedBy)
	assert.True(t, got.DryRun)
	require.NotNil(t, got.Decision.NextEligibleAt)
	assert.True(t, got.Decision.NextEligibleAt.Equal(next))
	assert.Equal(t, float64(180000), got.Decision.Details["remainingMs"])

	cooldowns, err := store.ListDecisions(ctx, DecisionListOptions{BlockedBy: policy.BlockedByCooldown})
	require.NoError(t, err)
	require.Len(t, cooldowns, 1)

	fired, err := store.ListDecisions(ctx, DecisionListOptions{TriggeredOnly: true})
	require.NoError(t, err)
	require.Len(t, fired, 1)

	byCorrelation, err := store.ListDecisions(ctx, DecisionListOptions{CorrelationID: "corr-1"})
	require.NoError(t, err)
	require.Len(t, byCorrelation, 1)
}

func TestJanitor_Cleanup(t *testing.T) {
	db := testDBExec(t)
	seedSchedule(t, db, "s1")
	store := NewStore(db)
	ctx := context.Background()

	now := base
	for _, age := range []time.Duration{48 * time.Hour, 25 * time.Hour, time.Hour} {
		at := now.Add(-age)
		require.NoError(t, store.Record(ctx, &Execution{ScheduleID: "s1", TenantID: "acme", TriggeredAt: at}))
		require.NoError(t, store.RecordDecision(ctx, &DecisionRecord{
			ScheduleID: "s1",
			TenantID:   "acme",
			Decision:   policy.Decision{Reason: "x", EvaluatedAt: at},
		}))
	}

	j := NewJanitor(store, 24*time.Hour)
	j.now = func() time.Time { return now }

	execs, decisions, err := j.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), execs)
	assert.Equal(t, int64(2), decisions)

	remaining, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestJanitor_ZeroRetentionIsNoop(t *testing.T) {
	j := NewJanitor(nil, 0)
	j.Start(context.Background())
	j.Stop()
}
