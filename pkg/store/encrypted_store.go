package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
)

// EncryptedFileStore implements SessionStore with the session file encrypted
// at rest. Keys are derived from a passphrase with PBKDF2; the payload is
// sealed with AES-GCM.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// encryptedFile is the on-disk envelope.
type encryptedFile struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore creates an encrypted session store at path. The
// passphrase comes from IGHUB_PASSPHRASE, falling back to a generated file
// next to the store.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	s := &EncryptedFileStore{path: path}
	passphrase, err := s.getPassphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	s.passphrase = passphrase
	return s, nil
}

// Get returns the record for username, or ErrNotFound.
func (s *EncryptedFileStore) Get(username string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, _, err := s.load()
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
func (s *EncryptedFileStore) Upsert(rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, salt, err := s.load()
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
	return s.save(records, salt)
}

// SetActive flips the active flag for username.
func (s *EncryptedFileStore) SetActive(username string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, salt, err := s.load()
	if err != nil {
		return err
	}
	rec, ok := records[username]
	if !ok {
		return ErrNotFound
	}
	rec.IsActive = active
	rec.UpdatedAt = time.Now().UTC()
	return s.save(records, salt)
}

// List returns all records, optionally only active ones.
func (s *EncryptedFileStore) List(activeOnly bool) ([]*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, _, err := s.load()
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

func (s *EncryptedFileStore) load() (map[string]*SessionRecord, string, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*SessionRecord), "", nil
		}
		return nil, "", fmt.Errorf("failed to read session file: %w", err)
	}

	var file encryptedFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, "", fmt.Errorf("failed to parse session file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode salt: %w", err)
	}
	encrypted, err := base64.StdEncoding.DecodeString(file.Encrypted)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode payload: %w", err)
	}

	key := pbkdf2.Key([]byte(s.passphrase), salt, iterations, keySize, sha256.New)
	decrypted, err := decrypt(encrypted, key)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decrypt session file: %w", err)
	}

	records := make(map[string]*SessionRecord)
	if err := json.Unmarshal(decrypted, &records); err != nil {
		return nil, "", fmt.Errorf("failed to parse decrypted sessions: %w", err)
	}
	return records, file.Salt, nil
}

func (s *EncryptedFileStore) save(records map[string]*SessionRecord, saltB64 string) error {
	var salt []byte
	if saltB64 == "" {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
		saltB64 = base64.StdEncoding.EncodeToString(salt)
	} else {
		var err error
		salt, err = base64.StdEncoding.DecodeString(saltB64)
		if err != nil {
			return fmt.Errorf("failed to decode salt: %w", err)
		}
	}

	key := pbkdf2.Key([]byte(s.passphrase), salt, iterations, keySize, sha256.New)

	plaintext, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	encrypted, err := encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt sessions: %w", err)
	}

	file := encryptedFile{
		Salt:      saltB64,
		Encrypted: base64.StdEncoding.EncodeToString(encrypted),
		Version:   1,
		Modified:  time.Now().UTC(),
	}
	content, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session file: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return os.Rename(tempPath, s.path)
}

func (s *EncryptedFileStore) getPassphrase() (string, error) {
	if pass := os.Getenv("IGHUB_PASSPHRASE"); pass != "" {
		return pass, nil
	}

	passphraseFile := filepath.Join(filepath.Dir(s.path), ".passphrase")
	if content, err := os.ReadFile(passphraseFile); err == nil && len(content) > 0 {
		return string(content), nil
	}

	passphrase := generatePassphrase()
	if err := os.WriteFile(passphraseFile, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

func generatePassphrase() string {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
