package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("record not found")

// SessionRecord is one account's persisted session state. At most one record
// exists per username; inactive records are retained for audit and never
// restored automatically.
type SessionRecord struct {
	Username    string          `json:"username"`
	SessionData json.RawMessage `json:"session_data"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SessionStore persists serialized session credentials keyed by username.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Get returns the record for username, or ErrNotFound.
	Get(username string) (*SessionRecord, error)

	// Upsert inserts or replaces the record for rec.Username, maintaining
	// CreatedAt on update and stamping UpdatedAt.
	Upsert(rec *SessionRecord) error

	// SetActive flips the active flag for username. ErrNotFound if absent.
	SetActive(username string, active bool) error

	// List returns all records, or only active ones when activeOnly is set.
	List(activeOnly bool) ([]*SessionRecord, error)
}

// EventRecord is one detected activity event. Immutable once appended except
// for the Processed and WebhookDelivered flags.
type EventRecord struct {
	ID               string                 `json:"id"`
	Username         string                 `json:"username"`
	EventType        string                 `json:"event_type"`
	Payload          map[string]interface{} `json:"payload"`
	Processed        bool                   `json:"processed"`
	WebhookDelivered bool                   `json:"webhook_delivered"`
	CreatedAt        time.Time              `json:"created_at"`
}

// EventStore is the durable log of activity events.
type EventStore interface {
	// Append stores a new event record.
	Append(rec *EventRecord) error

	// List returns up to limit events, newest first, optionally filtered by
	// processed state, along with the total count matching the filter.
	List(limit int, processed *bool) ([]*EventRecord, int, error)

	// MarkProcessed flips the processed flag. ErrNotFound if absent.
	MarkProcessed(id string) error

	// MarkDelivered records the webhook delivery outcome. ErrNotFound if absent.
	MarkDelivered(id string, delivered bool) error
}
