package session

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "ighub/pkg/errors"
	"ighub/pkg/instagram"
	"ighub/pkg/store"
)

// recordingFactory hands out scripted fakes in order and remembers every
// client it created.
type recordingFactory struct {
	clients []*instagram.FakeClient
	next    func() *instagram.FakeClient
}

func newRecordingFactory(next func() *instagram.FakeClient) *recordingFactory {
	return &recordingFactory{next: next}
}

func (f *recordingFactory) factory() instagram.Client {
	c := f.next()
	f.clients = append(f.clients, c)
	return c
}

func sessionBlob(t *testing.T, userID, username string) json.RawMessage {
	t.Helper()
	blob, err := json.Marshal(map[string]string{"user_id": userID, "username": username})
	require.NoError(t, err)
	return blob
}

func TestLoginFreshSuccess(t *testing.T) {
	st := store.NewMemorySessionStore()
	factory := newRecordingFactory(func() *instagram.FakeClient {
		return instagram.NewFakeClient("123", "alice")
	})
	m := NewManager(st, factory.factory, nil)

	result := m.Login("alice", "hunter2")

	require.True(t, result.Success)
	assert.Equal(t, "Login successful", result.Message)
	require.NotNil(t, result.Profile)
	assert.Equal(t, "alice", result.Profile.Username)

	_, ok := m.Client("alice")
	assert.True(t, ok)

	rec, err := st.Get("alice")
	require.NoError(t, err)
	assert.True(t, rec.IsActive)
	assert.NotEmpty(t, rec.SessionData)
}

func TestLoginBadPassword(t *testing.T) {
	st := store.NewMemorySessionStore()
	factory := newRecordingFactory(func() *instagram.FakeClient {
		c := instagram.NewFakeClient("123", "alice")
		c.Password = "correct"
		return c
	})
	m := NewManager(st, factory.factory, nil)

	result := m.Login("alice", "wrong")

	assert.False(t, result.Success)
	assert.Equal(t, "Invalid username or password", result.Message)
	assert.Nil(t, result.Profile)

	_, ok := m.Client("alice")
	assert.False(t, ok)
	_, err := st.Get("alice")
	assert.Equal(t, store.ErrNotFound, err)
}

func TestLoginChallengeRequired(t *testing.T) {
	factory := newRecordingFactory(func() *instagram.FakeClient {
		c := instagram.NewFakeClient("123", "alice")
		c.LoginErr = errs.New(errs.ErrorTypeChallenge, "challenge_required", 400)
		return c
	})
	m := NewManager(store.NewMemorySessionStore(), factory.factory, nil)

	result := m.Login("alice", "hunter2")

	assert.False(t, result.Success)
	assert.Equal(t, "Challenge required - please log in through the Instagram app first", result.Message)
}

func TestLoginUsesExistingSession(t *testing.T) {
	st := store.NewMemorySessionStore()
	require.NoError(t, st.Upsert(&store.SessionRecord{
		Username:    "alice",
		SessionData: sessionBlob(t, "123", "alice"),
		IsActive:    true,
	}))

	factory := newRecordingFactory(func() *instagram.FakeClient {
		return instagram.NewFakeClient("", "")
	})
	m := NewManager(st, factory.factory, nil)

	result := m.Login("alice", "ignored")

	require.True(t, result.Success)
	assert.Equal(t, "Using existing session", result.Message)
	require.NotNil(t, result.Profile)
	assert.Equal(t, "alice", result.Profile.Username)

	// The stored session was restored without touching the login endpoint.
	require.Len(t, factory.clients, 1)
	assert.Zero(t, factory.clients[0].LoginCalls)
}

func TestLoginFallsBackWhenRestoreFails(t *testing.T) {
	st := store.NewMemorySessionStore()
	require.NoError(t, st.Upsert(&store.SessionRecord{
		Username:    "alice",
		SessionData: sessionBlob(t, "123", "alice"),
		IsActive:    true,
	}))

	calls := 0
	factory := newRecordingFactory(func() *instagram.FakeClient {
		calls++
		c := instagram.NewFakeClient("123", "alice")
		if calls == 1 {
			// First client handles the restore probe and rejects it.
			c.AccountInfoErr = errs.New(errs.ErrorTypeAuth, "login_required", 401)
		}
		return c
	})
	m := NewManager(st, factory.factory, nil)

	result := m.Login("alice", "hunter2")

	require.True(t, result.Success)
	assert.Equal(t, "Login successful", result.Message)
	require.Len(t, factory.clients, 2)
	assert.Equal(t, 1, factory.clients[1].LoginCalls)
}

func TestLoginPersistFailureStillSucceeds(t *testing.T) {
	st := store.NewMemorySessionStore()
	st.UpsertError = errors.New("disk full")

	factory := newRecordingFactory(func() *instagram.FakeClient {
		return instagram.NewFakeClient("123", "alice")
	})
	m := NewManager(st, factory.factory, nil)

	result := m.Login("alice", "hunter2")

	require.True(t, result.Success)
	_, ok := m.Client("alice")
	assert.True(t, ok)
}

func TestLoginMemoryOnly(t *testing.T) {
	factory := newRecordingFactory(func() *instagram.FakeClient {
		return instagram.NewFakeClient("123", "alice")
	})
	m := NewManager(nil, factory.factory, nil)

	result := m.Login("alice", "hunter2")

	require.True(t, result.Success)
	_, ok := m.Client("alice")
	assert.True(t, ok)
}

func TestLogout(t *testing.T) {
	st := store.NewMemorySessionStore()
	factory := newRecordingFactory(func() *instagram.FakeClient {
		return instagram.NewFakeClient("123", "alice")
	})
	m := NewManager(st, factory.factory, nil)
	require.True(t, m.Login("alice", "hunter2").Success)

	ok, msg := m.Logout("alice")
	assert.True(t, ok)
	assert.Equal(t, "Logged out alice", msg)

	_, registered := m.Client("alice")
	assert.False(t, registered)
	rec, err := st.Get("alice")
	require.NoError(t, err)
	assert.False(t, rec.IsActive)
	assert.Equal(t, 1, factory.clients[0].LogoutCalls)
}

func TestLogoutIdempotent(t *testing.T) {
	m := NewManager(store.NewMemorySessionStore(), func() instagram.Client {
		return instagram.NewFakeClient("123", "alice")
	}, nil)

	ok, msg := m.Logout("nobody")
	assert.True(t, ok)
	assert.Equal(t, "Logged out nobody", msg)
}

func TestLogoutSurvivesRemoteFailure(t *testing.T) {
	factory := newRecordingFactory(func() *instagram.FakeClient {
		c := instagram.NewFakeClient("123", "alice")
		c.LogoutErr = errs.New(errs.ErrorTypeNetwork, "connection reset", 0)
		return c
	})
	m := NewManager(store.NewMemorySessionStore(), factory.factory, nil)
	require.True(t, m.Login("alice", "hunter2").Success)

	ok, _ := m.Logout("alice")
	assert.True(t, ok)
	_, registered := m.Client("alice")
	assert.False(t, registered)
}

func TestRestoreAll(t *testing.T) {
	st := store.NewMemorySessionStore()
	require.NoError(t, st.Upsert(&store.SessionRecord{
		Username: "alice", SessionData: sessionBlob(t, "1", "alice"), IsActive: true,
	}))
	require.NoError(t, st.Upsert(&store.SessionRecord{
		Username: "bob", SessionData: sessionBlob(t, "2", "bob"), IsActive: true,
	}))
	require.NoError(t, st.Upsert(&store.SessionRecord{
		Username: "carol", SessionData: sessionBlob(t, "3", "carol"), IsActive: false,
	}))

	factory := newRecordingFactory(func() *instagram.FakeClient {
		return instagram.NewFakeClient("", "")
	})
	m := NewManager(st, factory.factory, nil)

	restored := m.RestoreAll()

	assert.Equal(t, 2, restored)
	assert.ElementsMatch(t, []string{"alice", "bob"}, m.Usernames())
}

func TestRestoreAllMarksInvalidSessionsInactive(t *testing.T) {
	st := store.NewMemorySessionStore()
	require.NoError(t, st.Upsert(&store.SessionRecord{
		Username: "alice", SessionData: sessionBlob(t, "1", "alice"), IsActive: true,
	}))
	require.NoError(t, st.Upsert(&store.SessionRecord{
		Username: "bob", SessionData: sessionBlob(t, "2", "bob"), IsActive: true,
	}))

	factory := newRecordingFactory(func() *instagram.FakeClient {
		c := instagram.NewFakeClient("", "")
		c.AccountInfoErr = errs.New(errs.ErrorTypeAuth, "login_required", 401)
		return c
	})
	m := NewManager(st, factory.factory, nil)

	restored := m.RestoreAll()

	assert.Zero(t, restored)
	assert.Empty(t, m.Usernames())
	for _, username := range []string{"alice", "bob"} {
		rec, err := st.Get(username)
		require.NoError(t, err)
		assert.False(t, rec.IsActive)
	}
}

func TestStats(t *testing.T) {
	factory := newRecordingFactory(func() *instagram.FakeClient {
		return instagram.NewFakeClient("123", "x")
	})
	m := NewManager(nil, factory.factory, nil)
	require.True(t, m.Login("alice", "pw").Success)
	require.True(t, m.Login("bob", "pw").Success)

	stats := m.Stats()
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.ElementsMatch(t, []string{"alice", "bob"}, stats.Usernames)
}

func TestUserInfoUnknownAccount(t *testing.T) {
	m := NewManager(nil, func() instagram.Client {
		return instagram.NewFakeClient("123", "alice")
	}, nil)

	_, err := m.UserInfo("nobody")
	assert.Error(t, err)
}
