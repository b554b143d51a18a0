package session

import (
	"fmt"
	"sync"

	errs "ighub/pkg/errors"
	"ighub/pkg/instagram"
	"ighub/pkg/logger"
	"ighub/pkg/store"
)

// Manager owns the registry of authenticated Instagram clients, one per
// account. The registry is the source of truth for live sessions; the store
// only exists so sessions survive restarts. Persistence failures during
// login and logout are therefore logged and deliberately discarded.
//
// Login, logout and restore may run concurrently for different accounts.
// Concurrent logins for the same username race on the registry and the last
// writer wins; callers that need per-account exclusion must provide it.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]instagram.Client

	store   store.SessionStore
	factory instagram.Factory
	logger  logger.Logger
}

// LoginResult is the outcome of a login attempt. Failures are reported in
// Message rather than as errors: a bad password is a business outcome, not a
// transport failure.
type LoginResult struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Profile *instagram.Profile `json:"user_info,omitempty"`
}

// Stats summarizes the registry.
type Stats struct {
	ActiveSessions int      `json:"active_sessions"`
	Usernames      []string `json:"usernames"`
}

// NewManager creates a session manager. st may be nil, in which case the hub
// runs memory-only: logins work but nothing survives a restart.
func NewManager(st store.SessionStore, factory instagram.Factory, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{
		clients: make(map[string]instagram.Client),
		store:   st,
		factory: factory,
		logger:  log,
	}
}

// Login authenticates an account, preferring a stored session over a fresh
// password login. On success the client handle is registered and the session
// persisted.
func (m *Manager) Login(username, password string) LoginResult {
	log := m.logger.WithField("username", username)

	existing := m.storedSession(username)

	// Fast path: restore and verify the stored session without touching the
	// login endpoint.
	if existing != nil && existing.IsActive {
		client := m.factory()
		profile, err := m.restore(client, existing.SessionData)
		if err == nil {
			m.register(username, client)
			log.Info("using existing session")
			return LoginResult{Success: true, Message: "Using existing session", Profile: profile}
		}

		log.WithError(err).Warn("existing session invalid, falling back to fresh login")
		// Best-effort: the fresh login below will overwrite the record anyway.
		if storeErr := m.setActive(username, false); storeErr != nil {
			log.WithError(storeErr).Warn("failed to deactivate stale session")
		}
	}

	// Fresh login.
	client := m.factory()
	if err := client.Login(username, password); err != nil {
		switch {
		case errs.IsBadCredentials(err):
			log.Warn("bad password")
			return LoginResult{Success: false, Message: "Invalid username or password"}
		case errs.IsChallenge(err):
			log.Warn("challenge required")
			return LoginResult{Success: false, Message: "Challenge required - please log in through the Instagram app first"}
		default:
			log.WithError(err).Error("login failed")
			return LoginResult{Success: false, Message: fmt.Sprintf("Login failed: %v", err)}
		}
	}

	profile, err := client.AccountInfo()
	if err != nil {
		// The session is live even if the profile fetch hiccuped.
		log.WithError(err).Warn("failed to fetch profile after login")
	}

	m.persistSession(username, client, log)
	m.register(username, client)

	log.Info("login successful")
	return LoginResult{Success: true, Message: "Login successful", Profile: profile}
}

// Logout removes the account from the registry and deactivates the stored
// session. It is idempotent and succeeds as long as memory state is cleared;
// remote and store failures are logged only.
func (m *Manager) Logout(username string) (bool, string) {
	log := m.logger.WithField("username", username)

	if client, ok := m.Client(username); ok {
		if err := client.Logout(); err != nil {
			log.WithError(err).Warn("remote logout failed")
		}
	}

	m.mu.Lock()
	delete(m.clients, username)
	m.mu.Unlock()

	if err := m.setActive(username, false); err != nil && err != store.ErrNotFound {
		log.WithError(err).Warn("failed to deactivate stored session")
	}

	log.Info("logged out")
	return true, fmt.Sprintf("Logged out %s", username)
}

// Client returns the registered handle for username.
func (m *Manager) Client(username string) (instagram.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[username]
	return client, ok
}

// Usernames returns all registered account names.
func (m *Manager) Usernames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for username := range m.clients {
		names = append(names, username)
	}
	return names
}

// Stats returns registry statistics.
func (m *Manager) Stats() Stats {
	names := m.Usernames()
	return Stats{ActiveSessions: len(names), Usernames: names}
}

// UserInfo fetches the profile for a registered account.
func (m *Manager) UserInfo(username string) (*instagram.Profile, error) {
	client, ok := m.Client(username)
	if !ok {
		return nil, fmt.Errorf("session not found or inactive")
	}
	profile, err := client.AccountInfo()
	if err != nil {
		m.logger.WithError(err).WithField("username", username).Error("failed to get user info")
		return nil, err
	}
	return profile, nil
}

// RestoreAll loads every active stored session at startup, verifying each
// with an account-info probe. Sessions that fail verification are marked
// inactive; one account's failure never aborts the batch. Returns the number
// of restored accounts.
func (m *Manager) RestoreAll() int {
	if m.store == nil {
		m.logger.Warn("no session store configured, skipping session restore")
		return 0
	}

	records, err := m.store.List(true)
	if err != nil {
		m.logger.WithError(err).Error("failed to list stored sessions")
		return 0
	}

	restored := 0
	for _, rec := range records {
		log := m.logger.WithField("username", rec.Username)

		client := m.factory()
		if _, err := m.restore(client, rec.SessionData); err != nil {
			log.WithError(err).Warn("stored session no longer valid")
			if storeErr := m.setActive(rec.Username, false); storeErr != nil {
				log.WithError(storeErr).Warn("failed to deactivate session")
			}
			continue
		}

		m.register(rec.Username, client)
		restored++
		log.Info("session restored")
	}

	m.logger.WithField("count", restored).Info("session restore complete")
	return restored
}

// restore loads a credential blob into a fresh client and probes it.
func (m *Manager) restore(client instagram.Client, blob []byte) (*instagram.Profile, error) {
	if err := client.SetSettings(blob); err != nil {
		return nil, err
	}
	profile, err := client.AccountInfo()
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// persistSession writes the client's session blob to the store. Failures are
// logged and swallowed on purpose: the in-memory session already works, and
// the caller's login must not be failed retroactively.
func (m *Manager) persistSession(username string, client instagram.Client, log logger.Logger) {
	if m.store == nil {
		return
	}

	blob, err := client.Settings()
	if err != nil {
		log.WithError(err).Warn("failed to serialize session, not persisted")
		return
	}

	rec := &store.SessionRecord{
		Username:    username,
		SessionData: blob,
		IsActive:    true,
	}
	if err := m.store.Upsert(rec); err != nil {
		log.WithError(err).Warn("failed to persist session, continuing with in-memory session")
	}
}

func (m *Manager) register(username string, client instagram.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[username] = client
	m.logger.WithField("username", username).Debug("client registered")
}

func (m *Manager) storedSession(username string) *store.SessionRecord {
	if m.store == nil {
		return nil
	}
	rec, err := m.store.Get(username)
	if err != nil {
		if err != store.ErrNotFound {
			m.logger.WithError(err).WithField("username", username).Warn("failed to read stored session")
		}
		return nil
	}
	return rec
}

func (m *Manager) setActive(username string, active bool) error {
	if m.store == nil {
		return nil
	}
	return m.store.SetActive(username, active)
}
