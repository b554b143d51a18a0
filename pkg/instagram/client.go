package instagram

// Client is the per-account handle onto Instagram's private API. One Client
// holds the credentials of exactly one account; the session manager owns the
// mapping from username to handle.
//
// The credential blob returned by Settings is opaque to callers: it is
// produced and consumed only by the same Client implementation, and the
// session store persists it as-is.
type Client interface {
	// Login authenticates with a fresh username/password pair. Failures are
	// typed (errors.ErrorTypeBadCredentials, errors.ErrorTypeChallenge, ...).
	Login(username, password string) error

	// Settings serializes the current session state for persistence.
	Settings() ([]byte, error)

	// SetSettings restores session state from a previously serialized blob.
	SetSettings(blob []byte) error

	// AccountInfo fetches the authenticated account's profile. It doubles as
	// the probe that verifies a restored session is still valid.
	AccountInfo() (*Profile, error)

	// UserID returns the authenticated account's numeric id, or "" before login.
	UserID() string

	// DirectThreads lists the most recent direct message threads.
	DirectThreads(limit int) ([]Thread, error)

	// ThreadMessages lists the most recent messages of one thread.
	ThreadMessages(threadID string, limit int) ([]Message, error)

	// UserMedias lists the account's own most recent posts.
	UserMedias(limit int) ([]Media, error)

	// MediaComments lists the most recent comments on one post.
	MediaComments(mediaID string, limit int) ([]Comment, error)

	// SendDirectMessage sends a text message to the given usernames.
	SendDirectMessage(text string, recipients []string) (*Message, error)

	// Logout invalidates the remote session.
	Logout() error
}

// Factory constructs a fresh, unauthenticated Client. The session manager
// calls it once per login or restore attempt.
type Factory func() Client
