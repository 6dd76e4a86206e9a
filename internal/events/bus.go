package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/database"
)

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event *Event) error

// ProcessedFunc observes the final status of every dispatched event. err is
// the last handler error, nil when every handler succeeded.
type ProcessedFunc func(ctx context.Context, event *Event, status Status, err error)

type subscription struct {
	eventType EventType
	source    glob.Glob
	action    glob.Glob
	pattern   string
	handler   EventHandler
}

func (s *subscription) matches(event *Event) bool {
	return s.eventType == event.Type &&
		s.source.Match(event.Source) &&
		s.action.Match(event.Action)
}

// EventBus manages event publishing and subscription.
type EventBus struct {
	store       *Store
	config      EventBusConfig
	subscribers []*subscription
	onProcessed ProcessedFunc
	mu          sync.RWMutex
	processMu   sync.Mutex
	now         func() time.Time
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// EventBusConfig holds configuration for EventBus.
type EventBusConfig struct {
	// Retention is how long to keep completed/failed events (default: 7 days).
	Retention time.Duration
	// ProcessInterval is how often to poll for pending events (default: 1 second).
	ProcessInterval time.Duration
	// CleanupInterval is how often to cleanup old events (default: 1 hour).
	CleanupInterval time.Duration
	// BatchSize caps the events dispatched per poll (default: 100).
	BatchSize int
}

// NewEventBus creates a new event bus.
func NewEventBus(db *database.DB, config *EventBusConfig) *EventBus {
	cfg := EventBusConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Retention == 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.ProcessInterval == 0 {
		cfg.ProcessInterval = 1 * time.Second
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 1 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &EventBus{
		store:  NewStore(db),
		config: cfg,
		now:    time.Now,
	}
}

// Store returns the underlying event store.
func (bus *EventBus) Store() *Store {
	return bus.store
}

// OnProcessed registers fn to observe the outcome of every dispatched event.
func (bus *EventBus) OnProcessed(fn ProcessedFunc) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.onProcessed = fn
}

// Start begins background processing.
func (bus *EventBus) Start(ctx context.Context) {
	ctx, bus.cancel = context.WithCancel(ctx)

	bus.wg.Add(2)
	go bus.processLoop(ctx, bus.config.ProcessInterval)
	go bus.cleanupLoop(ctx, bus.config.CleanupInterval)
}

// Stop gracefully shuts down the event bus.
func (bus *EventBus) Stop() {
	if bus.cancel != nil {
		bus.cancel()
	}
	bus.wg.Wait()
}

// Publish publishes an event to the queue.
func (bus *EventBus) Publish(ctx context.Context, event *Event) error {
	if err := bus.store.Create(ctx, event); err != nil {
		return fmt.Errorf("creating event: %w", err)
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Str("source", event.Source).
		Str("action", event.Action).
		Msg("Event published")

	return nil
}

// Subscribe registers a handler for events of eventType whose source and
// action match the given glob patterns, e.g. "acme/report-*" or "*".
func (bus *EventBus) Subscribe(eventType EventType, source, action string, handler EventHandler) error {
	sourceGlob, err := glob.Compile(source)
	if err != nil {
		return fmt.Errorf("invalid source pattern %q: %w", source, err)
	}
	actionGlob, err := glob.Compile(action)
	if err != nil {
		return fmt.Errorf("invalid action pattern %q: %w", action, err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.subscribers = append(bus.subscribers, &subscription{
		eventType: eventType,
		source:    sourceGlob,
		action:    actionGlob,
		pattern:   fmt.Sprintf("%s:%s:%s", eventType, source, action),
		handler:   handler,
	})

	log.Debug().
		Str("type", string(eventType)).
		Str("source", source).
		Str("action", action).
		Msg("Handler subscribed")

	return nil
}

// ProcessPending dispatches every due event and returns how many were
// processed. Calls are serialized so an event is never dispatched twice.
func (bus *EventBus) ProcessPending(ctx context.Context) (int, error) {
	bus.processMu.Lock()
	defer bus.processMu.Unlock()

	events, err := bus.store.GetDue(ctx, bus.now(), bus.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("getting pending events: %w", err)
	}

	for _, event := range events {
		if err := bus.processEvent(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID).
				Msg("Failed to process event")
		}
	}

	return len(events), nil
}

// processEvent processes a single event.
func (bus *EventBus) processEvent(ctx context.Context, event *Event) error {
	if err := bus.store.UpdateStatus(ctx, event.ID, StatusProcessing); err != nil {
		return fmt.Errorf("updating event status to processing: %w", err)
	}

	handlers, observer := bus.findHandlers(event)

	var handlerErr error
	for _, handler := range handlers {
		if err := bus.invoke(ctx, handler, event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID).
				Str("source", event.Source).
				Msg("Handler failed")
			handlerErr = err
		}
	}

	status := StatusCompleted
	if handlerErr != nil {
		status = StatusFailed
	}

	if err := bus.store.UpdateStatus(ctx, event.ID, status); err != nil {
		return fmt.Errorf("updating event status to %s: %w", status, err)
	}
	event.Status = status

	if observer != nil {
		observer(ctx, event, status, handlerErr)
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("status", string(status)).
		Int("handlers", len(handlers)).
		Msg("Event processed")

	return handlerErr
}

// invoke runs a handler, turning a panic into an error so one faulty
// subscriber cannot stop the loop.
func (bus *EventBus) invoke(ctx context.Context, handler EventHandler, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(fmt.Sprint("handler panic: ", r))
		}
	}()
	return handler(ctx, event)
}

// findHandlers finds all handlers matching the event, in subscription order.
func (bus *EventBus) findHandlers(event *Event) ([]EventHandler, ProcessedFunc) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	var handlers []EventHandler
	for _, sub := range bus.subscribers {
		if sub.matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	return handlers, bus.onProcessed
}

// processLoop periodically processes pending and scheduled events.
func (bus *EventBus) processLoop(ctx context.Context, interval time.Duration) {
	defer bus.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := bus.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Failed to process pending events")
			}
		}
	}
}

// cleanupLoop periodically removes old events.
func (bus *EventBus) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer bus.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := bus.store.DeleteOlderThan(ctx, bus.now().Add(-bus.config.Retention))
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old events")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("Cleaned up old events")
			}
		}
	}
}
