package store

import (
	"sync"
	"time"
)

// MemorySessionStore implements SessionStore in memory. It backs the hub's
// degraded memory-only mode when the durable store cannot be opened, and
// doubles as the test store; the exported error fields inject failures.
type MemorySessionStore struct {
	mu      sync.RWMutex
	records map[string]*SessionRecord

	GetError       error
	UpsertError    error
	SetActiveError error
	ListError      error
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{records: make(map[string]*SessionRecord)}
}

func (m *MemorySessionStore) Get(username string) (*SessionRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemorySessionStore) Upsert(rec *SessionRecord) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	stored := *rec
	stored.UpdatedAt = now
	if existing, ok := m.records[rec.Username]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	m.records[rec.Username] = &stored
	return nil
}

func (m *MemorySessionStore) SetActive(username string, active bool) error {
	if m.SetActiveError != nil {
		return m.SetActiveError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[username]
	if !ok {
		return ErrNotFound
	}
	rec.IsActive = active
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemorySessionStore) List(activeOnly bool) ([]*SessionRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*SessionRecord
	for _, rec := range m.records {
		if activeOnly && !rec.IsActive {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// MemoryEventStore implements EventStore in memory, for tests and for the
// degraded mode when the event log file cannot be opened.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events []*EventRecord
	byID   map[string]*EventRecord

	AppendError error
	ListError   error
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{byID: make(map[string]*EventRecord)}
}

func (m *MemoryEventStore) Append(rec *EventRecord) error {
	if m.AppendError != nil {
		return m.AppendError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *rec
	m.events = append(m.events, &stored)
	m.byID[stored.ID] = &stored
	return nil
}

func (m *MemoryEventStore) List(limit int, processed *bool) ([]*EventRecord, int, error) {
	if m.ListError != nil {
		return nil, 0, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*EventRecord
	for i := len(m.events) - 1; i >= 0; i-- {
		rec := m.events[i]
		if processed != nil && rec.Processed != *processed {
			continue
		}
		matched = append(matched, rec)
	}

	total := len(matched)
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	out := make([]*EventRecord, len(matched))
	for i, rec := range matched {
		cp := *rec
		out[i] = &cp
	}
	return out, total, nil
}

func (m *MemoryEventStore) MarkProcessed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.Processed = true
	return nil
}

func (m *MemoryEventStore) MarkDelivered(id string, delivered bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.WebhookDelivered = delivered
	return nil
}
