package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EventLog implements EventStore backed by a JSON file, with the full log
// held in memory. Events are small and the log is append-mostly; the file is
// rewritten atomically on every mutation.
type EventLog struct {
	path   string
	mu     sync.RWMutex
	events []*EventRecord
	byID   map[string]*EventRecord
}

// NewEventLog opens or creates the event log at path.
func NewEventLog(path string) (*EventLog, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create event log directory: %w", err)
		}
	}

	l := &EventLog{path: path, byID: make(map[string]*EventRecord)}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &l.events); err != nil {
			return nil, fmt.Errorf("failed to parse event log: %w", err)
		}
	}
	for _, rec := range l.events {
		l.byID[rec.ID] = rec
	}
	return l, nil
}

// Append stores a new event record.
func (l *EventLog) Append(rec *EventRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := *rec
	l.events = append(l.events, &stored)
	l.byID[stored.ID] = &stored
	return l.save()
}

// List returns up to limit events, newest first.
func (l *EventLog) List(limit int, processed *bool) ([]*EventRecord, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []*EventRecord
	for i := len(l.events) - 1; i >= 0; i-- {
		rec := l.events[i]
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

// MarkProcessed flips the processed flag.
func (l *EventLog) MarkProcessed(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.Processed = true
	return l.save()
}

// MarkDelivered records the webhook delivery outcome.
func (l *EventLog) MarkDelivered(id string, delivered bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.WebhookDelivered = delivered
	return l.save()
}

func (l *EventLog) save() error {
	data, err := json.MarshalIndent(l.events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	tempPath := l.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	if err := os.Rename(tempPath, l.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace event log: %w", err)
	}
	return nil
}
