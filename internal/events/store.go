package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/cadence/internal/database"
)

const eventColumns = "id, type, source, action, payload, metadata, created_at, process_at, processed_at, status"

// Store handles database operations for events.
type Store struct {
	db *database.DB
}

// NewStore creates a new event store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new event into the database.
func (s *Store) Create(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = StatusPending
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, type, source, action, payload, metadata, created_at, process_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		string(event.Type),
		event.Source,
		event.Action,
		string(payloadJSON),
		string(metadataJSON),
		database.FormatTime(event.CreatedAt),
		database.FormatTimePtr(event.ProcessAt),
		string(event.Status),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// Get retrieves an event by ID.
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("event not found: %s", id)
	}
	return events[0], nil
}

// GetDue retrieves pending events that are due at now: immediate events and
// delayed events whose process_at has passed, oldest first.
func (s *Store) GetDue(ctx context.Context, now time.Time, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE status = ? AND (process_at IS NULL OR process_at <= ?)
		ORDER BY COALESCE(process_at, created_at) ASC, created_at ASC
		LIMIT ?
	`, string(StatusPending), database.FormatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("querying due events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// List retrieves events of the given status, newest first. An empty status
// lists everything.
func (s *Store) List(ctx context.Context, status Status, limit int) ([]*Event, error) {
	q := database.NewQuery("events").
		Select(eventColumns).
		WhereIf("status", string(status)).
		OrderByDesc("created_at").
		Limit(limit)

	query, args := q.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// UpdateStatus updates the status of an event. Terminal statuses stamp
// processed_at.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	var processedAt sql.NullString
	processed := status == StatusCompleted || status == StatusFailed
	if processed {
		processedAt = sql.NullString{String: database.Now(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET status = ?, processed = ?, processed_at = ?
		WHERE id = ?
	`, string(status), processed, processedAt, id)
	if err != nil {
		return fmt.Errorf("updating event status: %w", err)
	}

	return nil
}

// DeleteOlderThan deletes processed events created before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM events
		WHERE created_at < ? AND status IN (?, ?)
	`, database.FormatTime(cutoff), string(StatusCompleted), string(StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("deleting old events: %w", err)
	}

	return result.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event

	for rows.Next() {
		var event Event
		var eventType, status string
		var payloadJSON, metadataJSON sql.NullString
		var createdAt string
		var processAt, processedAt sql.NullString

		err := rows.Scan(
			&event.ID,
			&eventType,
			&event.Source,
			&event.Action,
			&payloadJSON,
			&metadataJSON,
			&createdAt,
			&processAt,
			&processedAt,
			&status,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		event.Type = EventType(eventType)
		event.Status = Status(status)

		if payloadJSON.Valid {
			if err := json.Unmarshal([]byte(payloadJSON.String), &event.Payload); err != nil {
				return nil, fmt.Errorf("unmarshaling payload: %w", err)
			}
		}
		if metadataJSON.Valid {
			if err := json.Unmarshal([]byte(metadataJSON.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata: %w", err)
			}
		}

		if event.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if event.ProcessAt, err = database.ParseNullTime(processAt); err != nil {
			return nil, fmt.Errorf("parsing process_at: %w", err)
		}
		if event.ProcessedAt, err = database.ParseNullTime(processedAt); err != nil {
			return nil, fmt.Errorf("parsing processed_at: %w", err)
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	return events, nil
}
