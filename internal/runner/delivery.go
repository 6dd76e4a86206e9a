package runner

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/events"
	"github.com/watzon/cadence/internal/executions"
	"github.com/watzon/cadence/internal/metrics"
)

// DeliveryObserver returns an events.ProcessedFunc that copies the dispatch
// outcome of a trigger event onto its execution.
func DeliveryObserver(store *executions.Store) events.ProcessedFunc {
	return func(ctx context.Context, event *events.Event, status events.Status, err error) {
		metrics.RecordEventProcessed(string(status))

		if event.Type != events.EventTypeTrigger || event.Metadata.ExecutionID == "" {
			return
		}

		execStatus := executions.StatusDelivered
		if status == events.StatusFailed {
			execStatus = executions.StatusFailed
		}

		if updateErr := store.UpdateStatus(ctx, event.Metadata.ExecutionID, execStatus); updateErr != nil {
			log.Error().
				Err(updateErr).
				Str("event_id", event.ID).
				Str("execution_id", event.Metadata.ExecutionID).
				Msg("Failed to record delivery status")
			return
		}

		if err != nil {
			log.Warn().
				Err(err).
				Str("execution_id", event.Metadata.ExecutionID).
				Str("source", event.Source).
				Msg("Trigger delivery failed")
		}
	}
}
