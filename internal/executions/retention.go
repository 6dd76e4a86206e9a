package executions

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultCleanupInterval = time.Hour

// Janitor periodically deletes executions and decisions older than the
// retention period.
type Janitor struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewJanitor creates a janitor for store. A zero retention keeps history
// forever and makes Start a no-op.
func NewJanitor(store *Store, retention time.Duration) *Janitor {
	return &Janitor{
		store:     store,
		retention: retention,
		interval:  defaultCleanupInterval,
		now:       time.Now,
	}
}

// Start begins background cleanup. An initial pass runs immediately.
func (j *Janitor) Start(ctx context.Context) {
	if j.retention <= 0 {
		return
	}

	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go j.cleanupLoop(ctx)
}

// Stop gracefully shuts down the janitor.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

// Cleanup runs one retention pass and returns how many executions and
// decisions were removed.
func (j *Janitor) Cleanup(ctx context.Context) (executions, decisions int64, err error) {
	cutoff := j.now().UTC().Add(-j.retention)

	if executions, err = j.store.DeleteOlderThan(ctx, cutoff); err != nil {
		return 0, 0, err
	}
	if decisions, err = j.store.DeleteDecisionsOlderThan(ctx, cutoff); err != nil {
		return executions, 0, err
	}

	if executions > 0 || decisions > 0 {
		log.Debug().
			Int64("executions", executions).
			Int64("decisions", decisions).
			Time("cutoff", cutoff).
			Msg("Pruned schedule history")
	}
	return executions, decisions, nil
}

func (j *Janitor) cleanupLoop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, _, err := j.Cleanup(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to cleanup old schedule history")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
