package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicy_Normalizes(t *testing.T) {
	pol, err := NewPolicy(Policy{
		ExcludedDates:      []string{"2024-12-25", "2024-01-01", "2024-12-25"},
		ExcludedDaysOfWeek: []time.Weekday{time.Sunday, time.Saturday, time.Sunday},
		AllowedTimeWindows: []TimeWindow{
			{Start: "13:00", End: "17:00", DaysOfWeek: []time.Weekday{time.Friday, time.Monday}},
			{Start: "08:00", End: "12:00"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-01", "2024-12-25"}, pol.ExcludedDates)
	assert.Equal(t, []time.Weekday{time.Sunday, time.Saturday}, pol.ExcludedDaysOfWeek)
	require.Len(t, pol.AllowedTimeWindows, 2)
	assert.Equal(t, "13:00", pol.AllowedTimeWindows[0].Start)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, pol.AllowedTimeWindows[0].DaysOfWeek)
}

func TestNewPolicy_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		wantField string
	}{
		{name: "bad date", policy: Policy{ExcludedDates: []string{"01/02/2024"}}, wantField: "excludedDates[0]"},
		{name: "impossible date", policy: Policy{ExcludedDates: []string{"2024-02-30"}}, wantField: "excludedDates[0]"},
		{name: "bad weekday", policy: Policy{ExcludedDaysOfWeek: []time.Weekday{9}}, wantField: "excludedDaysOfWeek[0]"},
		{name: "bad window start", policy: Policy{AllowedTimeWindows: []TimeWindow{{Start: "25:00", End: "10:00"}}}, wantField: "allowedTimeWindows[0].startTime"},
		{name: "bad window end", policy: Policy{AllowedTimeWindows: []TimeWindow{{Start: "08:00", End: "8pm"}}}, wantField: "allowedTimeWindows[0].endTime"},
		{name: "bad window day", policy: Policy{AllowedTimeWindows: []TimeWindow{{Start: "08:00", End: "09:00", DaysOfWeek: []time.Weekday{-1}}}}, wantField: "allowedTimeWindows[0].daysOfWeek[0]"},
		{name: "negative cooldown", policy: Policy{Cooldown: -time.Second}, wantField: "cooldownPeriodMs"},
		{name: "negative limit", policy: Policy{MaxExecutionsPerWindow: -1}, wantField: "maxExecutionsPerWindow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.policy)
			require.ErrorIs(t, err, ErrInvalidPolicy)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestPolicySpec_Build(t *testing.T) {
	pol, err := PolicySpec{
		ExcludedDates:          []string{"2024-01-01"},
		ExcludedDaysOfWeek:     []int{0, 6},
		AllowedTimeWindows:     []TimeWindowSpec{{StartTime: "08:00", EndTime: "18:00", DaysOfWeek: []int{1, 2, 3, 4, 5}}},
		CooldownPeriodMs:       300000,
		MaxExecutionsPerWindow: 10,
		SkipMissed:             true,
	}.Build()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, pol.Cooldown)
	assert.Equal(t, []time.Weekday{time.Sunday, time.Saturday}, pol.ExcludedDaysOfWeek)
	assert.True(t, pol.SkipMissed)

	assert.Equal(t, int64(300000), pol.Spec().CooldownPeriodMs)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, pol.Spec().AllowedTimeWindows[0].DaysOfWeek)

	var nilPolicy *Policy
	assert.Equal(t, PolicySpec{}, nilPolicy.Spec())
}

func TestNewEvaluationContext(t *testing.T) {
	t.Run("zero now rejected", func(t *testing.T) {
		_, err := NewEvaluationContext(time.Time{}, HistorySummary{})
		require.ErrorIs(t, err, ErrInvalidContext)
	})

	t.Run("negative count rejected", func(t *testing.T) {
		_, err := NewEvaluationContext(monday, HistorySummary{ExecutionsInWindow: -1})
		require.ErrorIs(t, err, ErrInvalidContext)
	})

	t.Run("recent executions sorted and used as last", func(t *testing.T) {
		a := monday.Add(-3 * time.Hour)
		b := monday.Add(-time.Hour)
		c := monday.Add(-2 * time.Hour)
		input := []time.Time{a, b, c}

		ec, err := NewEvaluationContext(monday, HistorySummary{RecentExecutions: input},
			WithDryRun(true), WithCorrelationID("req-1"))
		require.NoError(t, err)

		assert.Equal(t, []time.Time{b, c, a}, ec.History.RecentExecutions)
		require.NotNil(t, ec.History.LastExecutionAt)
		assert.Equal(t, b, *ec.History.LastExecutionAt)
		assert.Equal(t, []time.Time{a, b, c}, input, "caller slice must not be reordered")
		assert.True(t, ec.DryRun)
		assert.Equal(t, "req-1", ec.CorrelationID)
	})

	t.Run("explicit last wins", func(t *testing.T) {
		last := monday.Add(-10 * time.Minute)
		ec, err := NewEvaluationContext(monday, HistorySummary{
			LastExecutionAt:  &last,
			RecentExecutions: []time.Time{monday.Add(-time.Hour)},
		})
		require.NoError(t, err)
		assert.Equal(t, last, *ec.History.LastExecutionAt)
	})
}

func TestWindowContains(t *testing.T) {
	overnight := TimeWindow{Start: "22:00", End: "06:00"}

	tests := []struct {
		at   time.Time
		want bool
	}{
		{at: time.Date(2024, 1, 15, 22, 0, 0, 0, time.UTC), want: true},
		{at: time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC), want: true},
		{at: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), want: true},
		{at: time.Date(2024, 1, 16, 6, 0, 0, 0, time.UTC), want: true},
		{at: time.Date(2024, 1, 16, 6, 1, 0, 0, time.UTC), want: false},
		{at: time.Date(2024, 1, 16, 21, 59, 0, 0, time.UTC), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.at.Format(time.Kitchen), func(t *testing.T) {
			assert.Equal(t, tt.want, overnight.contains(localize(tt.at, time.UTC)))
		})
	}
}
