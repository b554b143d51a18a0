package instagram

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ighub/pkg/config"
	errs "ighub/pkg/errors"
	"ighub/pkg/logger"
	"ighub/pkg/ratelimit"
	"ighub/pkg/retry"
)

const (
	// BaseURL is the private API root used by the official mobile apps.
	BaseURL = "https://i.instagram.com/api/v1"

	defaultUserAgent = "Instagram 275.0.0.27.98 Android (33/13; 420dpi; 1080x2400; Google; Pixel 7; panther; en_US)"
)

// settings is the serialized session state of an APIClient. Consumers treat
// it as an opaque blob; only this package reads it back.
type settings struct {
	Username  string `json:"username"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	CSRFToken string `json:"csrf_token"`
	DeviceID  string `json:"device_id"`
	UserAgent string `json:"user_agent"`
}

// APIClient talks to Instagram's private API over HTTP. It implements Client.
// A registered handle is shared between the monitor's polling goroutine and
// API handlers, so session state and headers are guarded by a mutex.
type APIClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    ratelimit.Limiter
	retrier    *retry.Retrier
	logger     logger.Logger

	mu      sync.RWMutex
	headers map[string]string
	session settings
}

// NewAPIClient creates an unauthenticated API client. Rate limiting and retry
// behavior come from the hub configuration.
func NewAPIClient(cfg *config.Config, log logger.Logger) *APIClient {
	if log == nil {
		log = logger.GetLogger()
	}

	retryCfg := &retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
			Jitter:       true,
		},
		RetryIf: retry.DefaultRetryIf,
		Logger:  log,
	}

	return &APIClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		headers: map[string]string{
			"User-Agent":      defaultUserAgent,
			"Accept":          "*/*",
			"Accept-Language": "en-US",
			"X-IG-App-ID":     "567067343352427",
		},
		baseURL: BaseURL,
		session: settings{
			DeviceID:  "android-" + uuid.NewString()[:16],
			UserAgent: defaultUserAgent,
		},
		limiter: ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute),
		retrier: retry.NewRetrier(retryCfg),
		logger:  log,
	}
}

// NewFactory returns a Factory producing APIClients with shared configuration.
// Each client gets its own token bucket so one busy account cannot starve the
// others.
func NewFactory(cfg *config.Config, log logger.Logger) Factory {
	return func() Client {
		return NewAPIClient(cfg, log)
	}
}

// SetHeader sets a custom header for the client.
func (c *APIClient) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// Settings serializes the session state.
func (c *APIClient) Settings() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.session.SessionID == "" {
		return nil, errs.New(errs.ErrorTypeAuth, "no active session to serialize", 0)
	}
	return json.Marshal(c.session)
}

// SetSettings restores session state from a serialized blob.
func (c *APIClient) SetSettings(blob []byte) error {
	var s settings
	if err := json.Unmarshal(blob, &s); err != nil {
		return errs.New(errs.ErrorTypeParsing, fmt.Sprintf("invalid session blob: %v", err), 0)
	}
	if s.SessionID == "" {
		return errs.New(errs.ErrorTypeAuth, "session blob has no session id", 0)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	if s.UserAgent != "" {
		c.headers["User-Agent"] = s.UserAgent
	}
	return nil
}

// UserID returns the authenticated account's id.
func (c *APIClient) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.UserID
}

// Login authenticates with username and password.
func (c *APIClient) Login(username, password string) error {
	c.mu.RLock()
	deviceID := c.session.DeviceID
	c.mu.RUnlock()

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("device_id", deviceID)
	form.Set("login_attempt_count", "0")

	var resp loginResponse
	if err := c.postForm("/accounts/login/", form, &resp); err != nil {
		return err
	}

	if resp.LoggedInUser == nil {
		return errs.New(errs.ErrorTypeAuth, "login response missing user", 0)
	}

	userID := strconv.FormatInt(resp.LoggedInUser.PK, 10)
	c.mu.Lock()
	c.session.Username = username
	c.session.UserID = userID
	c.mu.Unlock()

	c.logger.InfoWithFields("logged in", map[string]interface{}{
		"username": username,
		"user_id":  userID,
	})
	return nil
}

// AccountInfo fetches the authenticated account's profile.
func (c *APIClient) AccountInfo() (*Profile, error) {
	var resp accountInfoResponse
	if err := c.getJSON("/accounts/current_user/?edit=true", &resp); err != nil {
		return nil, err
	}

	return &Profile{
		UserID:         strconv.FormatInt(resp.User.PK, 10),
		Username:       resp.User.Username,
		FullName:       resp.User.FullName,
		FollowerCount:  resp.User.FollowerCount,
		FollowingCount: resp.User.FollowingCount,
		MediaCount:     resp.User.MediaCount,
		ProfilePicURL:  resp.User.ProfilePicURL,
	}, nil
}

// DirectThreads lists the most recent direct message threads.
func (c *APIClient) DirectThreads(limit int) ([]Thread, error) {
	var resp inboxResponse
	path := fmt.Sprintf("/direct_v2/inbox/?thread_message_limit=1&limit=%d", limit)
	if err := c.getJSON(path, &resp); err != nil {
		return nil, err
	}

	threads := make([]Thread, 0, len(resp.Inbox.Threads))
	for _, wt := range resp.Inbox.Threads {
		t := Thread{ID: wt.ThreadID}
		for _, wu := range wt.Users {
			t.Users = append(t.Users, toUserShort(wu))
		}
		threads = append(threads, t)
	}
	return threads, nil
}

// ThreadMessages lists the most recent messages of one thread.
func (c *APIClient) ThreadMessages(threadID string, limit int) ([]Message, error) {
	var resp threadResponse
	path := fmt.Sprintf("/direct_v2/threads/%s/?limit=%d", url.PathEscape(threadID), limit)
	if err := c.getJSON(path, &resp); err != nil {
		return nil, err
	}

	// The thread payload carries bare user ids; resolve display names
	// lazily from the thread's user list when available.
	messages := make([]Message, 0, len(resp.Thread.Items))
	for _, item := range resp.Thread.Items {
		messages = append(messages, Message{
			ID:        item.ItemID,
			ThreadID:  resp.Thread.ThreadID,
			Text:      item.Text,
			Timestamp: time.UnixMicro(item.Timestamp),
			Sender:    UserShort{UserID: strconv.FormatInt(item.UserID, 10)},
		})
	}
	return messages, nil
}

// UserMedias lists the account's own most recent posts.
func (c *APIClient) UserMedias(limit int) ([]Media, error) {
	userID := c.UserID()
	if userID == "" {
		return nil, errs.New(errs.ErrorTypeAuth, "not logged in", 0)
	}

	var resp userFeedResponse
	path := fmt.Sprintf("/feed/user/%s/?count=%d", userID, limit)
	if err := c.getJSON(path, &resp); err != nil {
		return nil, err
	}

	medias := make([]Media, 0, len(resp.Items))
	for _, item := range resp.Items {
		id := item.ID
		if id == "" {
			id = strconv.FormatInt(item.PK, 10)
		}
		medias = append(medias, Media{
			ID:           id,
			Shortcode:    item.Code,
			TakenAt:      time.Unix(item.TakenAt, 0),
			CommentCount: item.CommentCount,
		})
	}
	return medias, nil
}

// MediaComments lists the most recent comments on one post.
func (c *APIClient) MediaComments(mediaID string, limit int) ([]Comment, error) {
	var resp commentsResponse
	path := fmt.Sprintf("/media/%s/comments/?count=%d", url.PathEscape(mediaID), limit)
	if err := c.getJSON(path, &resp); err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(resp.Comments))
	for _, wc := range resp.Comments {
		comments = append(comments, Comment{
			ID:        strconv.FormatInt(wc.PK, 10),
			MediaID:   mediaID,
			Text:      wc.Text,
			CreatedAt: time.Unix(wc.CreatedAt, 0),
			User:      toUserShort(wc.User),
		})
	}
	return comments, nil
}

// SendDirectMessage sends a text message to the given usernames.
func (c *APIClient) SendDirectMessage(text string, recipients []string) (*Message, error) {
	if len(recipients) == 0 {
		return nil, errs.New(errs.ErrorTypeUnknown, "no recipients", 0)
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("recipient_users", fmt.Sprintf(`[["%s"]]`, strings.Join(recipients, `","`)))
	form.Set("client_context", uuid.NewString())

	var resp sendItemResponse
	if err := c.postForm("/direct_v2/threads/broadcast/text/", form, &resp); err != nil {
		return nil, err
	}

	c.mu.RLock()
	sender := UserShort{UserID: c.session.UserID, Username: c.session.Username}
	c.mu.RUnlock()

	return &Message{
		ID:        resp.Payload.ItemID,
		ThreadID:  resp.Payload.ThreadID,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Sender:    sender,
	}, nil
}

// Logout invalidates the remote session.
func (c *APIClient) Logout() error {
	err := c.postForm("/accounts/logout/", url.Values{}, &struct{}{})
	c.mu.Lock()
	c.session.SessionID = ""
	c.mu.Unlock()
	return err
}

// getJSON performs a rate-limited GET with retry and decodes the response.
func (c *APIClient) getJSON(path string, target interface{}) error {
	return c.retrier.Do(func() error {
		c.limiter.Wait()

		req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return errs.New(errs.ErrorTypeUnknown, fmt.Sprintf("failed to create request: %v", err), 0)
		}
		return c.doRequest(req, target)
	})
}

// postForm performs a rate-limited POST with retry and decodes the response.
func (c *APIClient) postForm(path string, form url.Values, target interface{}) error {
	return c.retrier.Do(func() error {
		c.limiter.Wait()

		req, err := http.NewRequest(http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return errs.New(errs.ErrorTypeUnknown, fmt.Sprintf("failed to create request: %v", err), 0)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return c.doRequest(req, target)
	})
}

// doRequest executes one HTTP round trip with the configured headers and
// session cookies, classifying failures into the typed error taxonomy.
func (c *APIClient) doRequest(req *http.Request, target interface{}) error {
	c.mu.RLock()
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	cookie := c.cookieHeader()
	c.mu.RUnlock()
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return errs.New(errs.ErrorTypeNetwork, fmt.Sprintf("network error: %v", err), 0)
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	c.captureCookies(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errs.New(errs.ErrorTypeNetwork, fmt.Sprintf("failed to read response: %v", err), 0)
	}

	if resp.StatusCode != http.StatusOK {
		return classifyAPIError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return errs.New(errs.ErrorTypeParsing, fmt.Sprintf("failed to decode response: %v", err), resp.StatusCode)
	}
	return nil
}

// cookieHeader renders the stored session cookies. Caller holds c.mu.
func (c *APIClient) cookieHeader() string {
	var cookies []string
	if c.session.SessionID != "" {
		cookies = append(cookies, "sessionid="+c.session.SessionID)
	}
	if c.session.CSRFToken != "" {
		cookies = append(cookies, "csrftoken="+c.session.CSRFToken)
	}
	if c.session.UserID != "" {
		cookies = append(cookies, "ds_user_id="+c.session.UserID)
	}
	return strings.Join(cookies, "; ")
}

// captureCookies keeps session cookies handed back by the server.
func (c *APIClient) captureCookies(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range resp.Cookies() {
		switch ck.Name {
		case "sessionid":
			if ck.Value != "" {
				c.session.SessionID = ck.Value
			}
		case "csrftoken":
			if ck.Value != "" {
				c.session.CSRFToken = ck.Value
			}
		}
	}
}

// classifyAPIError maps a non-200 response to a typed error. Instagram
// reports login problems as 400s with an error_type discriminator.
func classifyAPIError(statusCode int, body []byte) error {
	var payload struct {
		Message   string `json:"message"`
		ErrorType string `json:"error_type"`
	}
	_ = json.Unmarshal(body, &payload)

	if statusCode == http.StatusBadRequest {
		switch payload.ErrorType {
		case "bad_password", "invalid_user":
			return errs.New(errs.ErrorTypeBadCredentials, payload.Message, statusCode)
		case "checkpoint_challenge_required", "challenge_required", "two_factor_required":
			return errs.New(errs.ErrorTypeChallenge, payload.Message, statusCode)
		}
		if payload.Message == "login_required" {
			return errs.New(errs.ErrorTypeAuth, payload.Message, statusCode)
		}
	}

	msg := payload.Message
	if msg == "" {
		msg = fmt.Sprintf("server returned status %d", statusCode)
	}
	return errs.FromStatusCode(statusCode, msg)
}
