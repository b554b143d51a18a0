package instagram

import (
	"encoding/json"
	"sync"
	"time"

	errs "ighub/pkg/errors"
)

// FakeClient implements Client in memory for tests and local development.
// Behavior is scripted through the exported fields; methods are safe for
// concurrent use.
type FakeClient struct {
	mu sync.Mutex

	Account Profile

	// Error injection
	LoginErr       error
	AccountInfoErr error
	ThreadsErr     error
	MessagesErr    error
	MediasErr      error
	CommentsErr    error
	SendErr        error
	LogoutErr      error

	// Scripted data
	Threads          []Thread
	MessagesByThread map[string][]Message
	Medias           []Media
	CommentsByMedia  map[string][]Comment

	// Valid password accepted by Login; empty means any password succeeds.
	Password string

	// Call counters
	LoginCalls       int
	AccountInfoCalls int
	LogoutCalls      int

	// Messages sent through SendDirectMessage
	Sent []Message

	loggedIn bool
}

// NewFakeClient creates a fake client for the given account.
func NewFakeClient(userID, username string) *FakeClient {
	return &FakeClient{
		Account: Profile{
			UserID:   userID,
			Username: username,
			FullName: username,
		},
		MessagesByThread: make(map[string][]Message),
		CommentsByMedia:  make(map[string][]Comment),
	}
}

// fakeSettings is the serialized form of a fake session.
type fakeSettings struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (f *FakeClient) Login(username, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.LoginCalls++
	if f.LoginErr != nil {
		return f.LoginErr
	}
	if f.Password != "" && password != f.Password {
		return errs.New(errs.ErrorTypeBadCredentials, "bad password", 400)
	}
	f.Account.Username = username
	f.loggedIn = true
	return nil
}

func (f *FakeClient) Settings() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.loggedIn {
		return nil, errs.New(errs.ErrorTypeAuth, "no active session to serialize", 0)
	}
	return json.Marshal(fakeSettings{UserID: f.Account.UserID, Username: f.Account.Username})
}

func (f *FakeClient) SetSettings(blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var s fakeSettings
	if err := json.Unmarshal(blob, &s); err != nil {
		return errs.New(errs.ErrorTypeParsing, "invalid session blob", 0)
	}
	f.Account.UserID = s.UserID
	f.Account.Username = s.Username
	f.loggedIn = true
	return nil
}

func (f *FakeClient) AccountInfo() (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.AccountInfoCalls++
	if f.AccountInfoErr != nil {
		return nil, f.AccountInfoErr
	}
	profile := f.Account
	return &profile, nil
}

func (f *FakeClient) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Account.UserID
}

func (f *FakeClient) DirectThreads(limit int) ([]Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ThreadsErr != nil {
		return nil, f.ThreadsErr
	}
	threads := f.Threads
	if limit < len(threads) {
		threads = threads[:limit]
	}
	out := make([]Thread, len(threads))
	copy(out, threads)
	return out, nil
}

func (f *FakeClient) ThreadMessages(threadID string, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.MessagesErr != nil {
		return nil, f.MessagesErr
	}
	msgs := f.MessagesByThread[threadID]
	if limit < len(msgs) {
		msgs = msgs[:limit]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (f *FakeClient) UserMedias(limit int) ([]Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.MediasErr != nil {
		return nil, f.MediasErr
	}
	medias := f.Medias
	if limit < len(medias) {
		medias = medias[:limit]
	}
	out := make([]Media, len(medias))
	copy(out, medias)
	return out, nil
}

func (f *FakeClient) MediaComments(mediaID string, limit int) ([]Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CommentsErr != nil {
		return nil, f.CommentsErr
	}
	comments := f.CommentsByMedia[mediaID]
	if limit < len(comments) {
		comments = comments[:limit]
	}
	out := make([]Comment, len(comments))
	copy(out, comments)
	return out, nil
}

func (f *FakeClient) SendDirectMessage(text string, recipients []string) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SendErr != nil {
		return nil, f.SendErr
	}
	msg := Message{
		ID:        "sent-" + text,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Sender:    UserShort{UserID: f.Account.UserID, Username: f.Account.Username},
	}
	f.Sent = append(f.Sent, msg)
	return &msg, nil
}

func (f *FakeClient) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.LogoutCalls++
	if f.LogoutErr != nil {
		return f.LogoutErr
	}
	f.loggedIn = false
	return nil
}

// SetThreadsErr swaps the thread-listing error while the client may be in
// use by a polling loop.
func (f *FakeClient) SetThreadsErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ThreadsErr = err
}

// AddMessage scripts an incoming direct message.
func (f *FakeClient) AddMessage(threadID string, msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg.ThreadID = threadID
	found := false
	for _, t := range f.Threads {
		if t.ID == threadID {
			found = true
			break
		}
	}
	if !found {
		f.Threads = append(f.Threads, Thread{ID: threadID})
	}
	// Most recent first, matching the real inbox ordering.
	f.MessagesByThread[threadID] = append([]Message{msg}, f.MessagesByThread[threadID]...)
}

// AddComment scripts an incoming comment on one of the account's posts.
func (f *FakeClient) AddComment(mediaID string, c Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c.MediaID = mediaID
	found := false
	for _, m := range f.Medias {
		if m.ID == mediaID {
			found = true
			break
		}
	}
	if !found {
		f.Medias = append(f.Medias, Media{ID: mediaID, TakenAt: time.Now().UTC()})
	}
	f.CommentsByMedia[mediaID] = append([]Comment{c}, f.CommentsByMedia[mediaID]...)
}
