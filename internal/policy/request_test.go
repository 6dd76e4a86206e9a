package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const requestDoc = `
definition:
  tenantId: acme
  name: heartbeat
  type: INTERVAL
  config:
    minutes: 15
policy:
  cooldownPeriodMs: 600000
context:
  now: 2024-01-15T09:05:00Z
  executionHistory:
    lastExecutionAt: 2024-01-15T09:00:00Z
`

func TestRequest_EvaluateFromYAML(t *testing.T) {
	var req Request
	require.NoError(t, yaml.Unmarshal([]byte(requestDoc), &req))

	svc := NewService()
	d, err := svc.EvaluateRequest(req)
	require.NoError(t, err)
	assert.False(t, d.ShouldTrigger)
	assert.Equal(t, BlockedByCooldown, d.BlockedBy)

	next, err := svc.NextEligibleRequest(req)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)))
}

func TestRequest_NilPolicy(t *testing.T) {
	req := Request{
		Definition: DefinitionSpec{TenantID: "acme", Name: "hb", Type: ScheduleTypeInterval, Config: ConfigSpec{Minutes: 5}},
		Context:    ContextSpec{Now: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)},
	}

	d, err := NewService().EvaluateRequest(req)
	require.NoError(t, err)
	assert.True(t, d.ShouldTrigger)
}

func TestRequest_BuildErrors(t *testing.T) {
	valid := Request{
		Definition: DefinitionSpec{TenantID: "acme", Name: "hb", Type: ScheduleTypeInterval, Config: ConfigSpec{Minutes: 5}},
		Context:    ContextSpec{Now: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)},
	}

	tests := []struct {
		name   string
		mutate func(*Request)
		prefix string
		target error
	}{
		{"definition", func(r *Request) { r.Definition.TenantID = "" }, "definition:", ErrInvalidDefinition},
		{"policy", func(r *Request) { r.Policy = &PolicySpec{ExcludedDates: []string{"yesterday"}} }, "policy:", ErrInvalidPolicy},
		{"context", func(r *Request) { r.Context.Now = time.Time{} }, "context:", ErrInvalidContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			_, err := NewService().EvaluateRequest(req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.prefix)
			assert.True(t, errors.Is(err, tt.target))
		})
	}
}
