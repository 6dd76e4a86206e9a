// Package handlers implements the read-only ops API: health, schedule state,
// decision and execution history, and offline evaluation.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/watzon/cadence/internal/database"
	"github.com/watzon/cadence/internal/executions"
	"github.com/watzon/cadence/internal/policy"
	"github.com/watzon/cadence/internal/runner"
	"github.com/watzon/cadence/internal/schedules"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type Handlers struct {
	db         *database.DB
	schedules  *schedules.Store
	executions *executions.Store
	state      *runner.StateStore
	engine     *policy.Service
	version    string
	started    time.Time
}

func New(db *database.DB, version string) *Handlers {
	return &Handlers{
		db:         db,
		schedules:  schedules.NewStore(db),
		executions: executions.NewStore(db),
		state:      runner.NewStateStore(db),
		engine:     policy.NewService(),
		version:    version,
		started:    time.Now(),
	}
}

// pageParams reads limit and offset, clamping limit to maxPageSize.
func pageParams(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageSize
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid limit parameter %q", r.URL.Query().Get("limit"))
		}
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset parameter %q", r.URL.Query().Get("offset"))
		}
	}
	return limit, offset, nil
}
