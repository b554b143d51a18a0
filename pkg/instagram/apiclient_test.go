package instagram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ighub/pkg/config"
	errs "ighub/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*APIClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.DefaultConfig()
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond

	client := NewAPIClient(cfg, nil)
	client.baseURL = server.URL
	return client, server
}

func TestLoginSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accounts/login/", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "alice", r.PostForm.Get("username"))

		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "sess-1"})
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf-1"})
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "ok",
			"logged_in_user": map[string]interface{}{"pk": 123, "username": "alice"},
		})
	}))

	require.NoError(t, client.Login("alice", "hunter2"))
	assert.Equal(t, "123", client.UserID())

	blob, err := client.Settings()
	require.NoError(t, err)

	restored := &APIClient{headers: map[string]string{}}
	require.NoError(t, restored.SetSettings(blob))
	assert.Equal(t, "123", restored.UserID())
}

func TestLoginBadPassword(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"message":    "The password you entered is incorrect.",
			"error_type": "bad_password",
		})
	}))

	err := client.Login("alice", "wrong")
	require.Error(t, err)
	assert.True(t, errs.IsBadCredentials(err))
}

func TestLoginChallengeRequired(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"message":    "challenge_required",
			"error_type": "challenge_required",
		})
	}))

	err := client.Login("alice", "hunter2")
	require.Error(t, err)
	assert.True(t, errs.IsChallenge(err))
}

func TestSettingsWithoutSession(t *testing.T) {
	cfg := config.DefaultConfig()
	client := NewAPIClient(cfg, nil)

	_, err := client.Settings()
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
}

func TestSetSettingsRejectsGarbage(t *testing.T) {
	client := NewAPIClient(config.DefaultConfig(), nil)

	err := client.SetSettings([]byte("not json"))
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))

	err = client.SetSettings([]byte(`{"username":"alice"}`))
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
}

func TestThreadMessagesTimestamps(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"thread": map[string]interface{}{
				"thread_id": "t1",
				"items": []map[string]interface{}{
					{"item_id": "m1", "user_id": 456, "text": "hi", "timestamp": ts.UnixMicro()},
				},
			},
		})
	}))

	messages, err := client.ThreadMessages("t1", 3)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "t1", messages[0].ThreadID)
	assert.Equal(t, "456", messages[0].Sender.UserID)
	assert.True(t, messages[0].Timestamp.Equal(ts))
}

func TestDirectThreads(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"inbox": map[string]interface{}{
				"threads": []map[string]interface{}{
					{"thread_id": "t1", "users": []map[string]interface{}{{"pk": 456, "username": "bob"}}},
					{"thread_id": "t2"},
				},
			},
		})
	}))

	threads, err := client.DirectThreads(3)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "t1", threads[0].ID)
	require.Len(t, threads[0].Users, 1)
	assert.Equal(t, "bob", threads[0].Users[0].Username)
}

func TestMediaComments(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"comments": []map[string]interface{}{
				{"pk": 789, "text": "nice", "created_at": 1748779200, "user": map[string]interface{}{"pk": 456, "username": "bob"}},
			},
		})
	}))

	comments, err := client.MediaComments("p1", 5)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "789", comments[0].ID)
	assert.Equal(t, "p1", comments[0].MediaID)
	assert.Equal(t, "bob", comments[0].User.Username)
}

func TestUserMediasRequiresLogin(t *testing.T) {
	client := NewAPIClient(config.DefaultConfig(), nil)

	_, err := client.UserMedias(1)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
}

func TestServerErrorRetried(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"user":   map[string]interface{}{"pk": 123, "username": "alice"},
		})
	}))

	profile, err := client.AccountInfo()
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "alice", profile.Username)
}

func TestBadCredentialsNotRetried(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error_type": "bad_password"})
	}))

	err := client.Login("alice", "wrong")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestToUserShort(t *testing.T) {
	u := toUserShort(wireUser{PK: 456, Username: "bob", FullName: "Bob B"})
	assert.Equal(t, "456", u.UserID)
	assert.Equal(t, "bob", u.Username)
	assert.Equal(t, "Bob B", u.FullName)
}

func TestConcurrentUse(t *testing.T) {
	// One registered handle serves both the polling loop and API handlers;
	// session cookies captured from one response must not race reads on
	// another goroutine.
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: fmt.Sprintf("sess-%d", n)})
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: fmt.Sprintf("csrf-%d", n)})
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"user":   map[string]interface{}{"pk": 123, "username": "alice"},
		})
	}))
	require.NoError(t, client.SetSettings([]byte(`{"session_id":"sess-0","user_id":"123","username":"alice"}`)))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := client.AccountInfo()
				assert.NoError(t, err)
				_ = client.UserID()
				_, _ = client.Settings()
			}
		}()
	}
	wg.Wait()
}

func TestClassifyAPIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   errs.ErrorType
	}{
		{"bad password", 400, `{"error_type":"bad_password"}`, errs.ErrorTypeBadCredentials},
		{"invalid user", 400, `{"error_type":"invalid_user"}`, errs.ErrorTypeBadCredentials},
		{"challenge", 400, `{"error_type":"challenge_required"}`, errs.ErrorTypeChallenge},
		{"checkpoint", 400, `{"error_type":"checkpoint_challenge_required"}`, errs.ErrorTypeChallenge},
		{"two factor", 400, `{"error_type":"two_factor_required"}`, errs.ErrorTypeChallenge},
		{"login required", 400, `{"message":"login_required"}`, errs.ErrorTypeAuth},
		{"rate limit", 429, `{}`, errs.ErrorTypeRateLimit},
		{"not found", 404, `{}`, errs.ErrorTypeNotFound},
		{"server error", 500, `not even json`, errs.ErrorTypeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyAPIError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.want, errs.TypeOf(err))
		})
	}
}
