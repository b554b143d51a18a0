package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore implements SessionStore backed by a single JSON file. Writes go
// through a temp file and rename so a crash never leaves a torn file.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a file-backed session store at path, creating the
// parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Get returns the record for username, or ErrNotFound.
func (s *FileStore) Get(username string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := records[username]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Upsert inserts or replaces the record for rec.Username.
func (s *FileStore) Upsert(rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	stored := *rec
	stored.UpdatedAt = now
	if existing, ok := records[rec.Username]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	records[rec.Username] = &stored
	return s.save(records)
}

// SetActive flips the active flag for username.
func (s *FileStore) SetActive(username string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	rec, ok := records[username]
	if !ok {
		return ErrNotFound
	}
	rec.IsActive = active
	rec.UpdatedAt = time.Now().UTC()
	return s.save(records)
}

// List returns all records, optionally only active ones.
func (s *FileStore) List(activeOnly bool) ([]*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	var out []*SessionRecord
	for _, rec := range records {
		if activeOnly && !rec.IsActive {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *FileStore) load() (map[string]*SessionRecord, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*SessionRecord), nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	records := make(map[string]*SessionRecord)
	if len(content) > 0 {
		if err := json.Unmarshal(content, &records); err != nil {
			return nil, fmt.Errorf("failed to parse session file: %w", err)
		}
	}
	return records, nil
}

func (s *FileStore) save(records map[string]*SessionRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
