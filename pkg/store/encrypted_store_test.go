package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	t.Setenv("IGHUB_PASSPHRASE", "test-passphrase")
	path := filepath.Join(t.TempDir(), "sessions.json")

	st, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	blob := json.RawMessage(`{"session_id":"secret"}`)
	require.NoError(t, st.Upsert(&SessionRecord{
		Username:    "alice",
		SessionData: blob,
		IsActive:    true,
	}))

	rec, err := st.Get("alice")
	require.NoError(t, err)
	assert.JSONEq(t, string(blob), string(rec.SessionData))

	// The blob must not appear in plaintext on disk.
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "secret")
	assert.Contains(t, string(content), "encrypted")
}

func TestEncryptedFileStoreReopenSamePassphrase(t *testing.T) {
	t.Setenv("IGHUB_PASSPHRASE", "test-passphrase")
	path := filepath.Join(t.TempDir(), "sessions.json")

	st, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Upsert(&SessionRecord{Username: "alice", IsActive: true}))

	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	rec, err := reopened.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	t.Setenv("IGHUB_PASSPHRASE", "right")
	st, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Upsert(&SessionRecord{Username: "alice", IsActive: true}))

	t.Setenv("IGHUB_PASSPHRASE", "wrong")
	broken, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = broken.Get("alice")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "decrypt"))
}

func TestEncryptedFileStoreGeneratedPassphrase(t *testing.T) {
	t.Setenv("IGHUB_PASSPHRASE", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	st, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Upsert(&SessionRecord{Username: "alice", IsActive: true}))

	// The generated passphrase lands next to the store and reopening reuses it.
	_, err = os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)

	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = reopened.Get("alice")
	assert.NoError(t, err)
}

func TestEncryptedFileStoreSetActiveAndList(t *testing.T) {
	t.Setenv("IGHUB_PASSPHRASE", "test-passphrase")
	st, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)

	require.NoError(t, st.Upsert(&SessionRecord{Username: "alice", IsActive: true}))
	require.NoError(t, st.Upsert(&SessionRecord{Username: "bob", IsActive: true}))
	require.NoError(t, st.SetActive("bob", false))

	active, err := st.List(true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].Username)
}
