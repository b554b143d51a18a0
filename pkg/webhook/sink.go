package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"ighub/pkg/config"
	"ighub/pkg/instagram"
	"ighub/pkg/logger"
	"ighub/pkg/store"
)

// Event type names carried in the envelope.
const (
	EventNewMessage  = "new_message"
	EventNewComment  = "new_comment"
	EventMention     = "mention"
	EventNewFollower = "new_follower"
)

// Envelope is the fixed JSON shape delivered to the webhook endpoint.
type Envelope struct {
	Timestamp time.Time              `json:"timestamp"`
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Username  string                 `json:"username"`
	Data      map[string]interface{} `json:"data"`
}

// Sink records detected activity events and forwards them to the configured
// webhook endpoint. Delivery is one attempt with a bounded timeout: a failed
// POST leaves the event durably recorded with webhook_delivered=false, and an
// external job can re-drive delivery from the store later.
type Sink struct {
	url        string
	httpClient *http.Client
	events     store.EventStore
	logger     logger.Logger

	mu          sync.Mutex
	subscribers map[int]chan *store.EventRecord
	nextSubID   int
}

// NewSink creates an event sink. events must not be nil; url may be empty,
// in which case events are recorded but never delivered.
func NewSink(cfg *config.WebhookConfig, events store.EventStore, log logger.Logger) *Sink {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Sink{
		url:         cfg.URL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		events:      events,
		logger:      log,
		subscribers: make(map[int]chan *store.EventRecord),
	}
}

// RecordAndDeliver persists an activity event and attempts one webhook
// delivery. The event id is returned regardless of the delivery outcome.
func (s *Sink) RecordAndDeliver(username, eventType string, data map[string]interface{}) string {
	eventID := uuid.NewString()

	rec := &store.EventRecord{
		ID:        eventID,
		Username:  username,
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.events.Append(rec); err != nil {
		// The id is still returned: detection happened, only the log write failed.
		s.logger.WithError(err).WithField("event_type", eventType).Error("failed to record event")
	}

	delivered := s.deliver(rec)
	rec.WebhookDelivered = delivered
	if err := s.events.MarkDelivered(eventID, delivered); err != nil && err != store.ErrNotFound {
		s.logger.WithError(err).Warn("failed to update delivery flag")
	}

	s.notify(rec)

	s.logger.InfoWithFields("event recorded", map[string]interface{}{
		"event_id":   eventID,
		"event_type": eventType,
		"username":   username,
		"delivered":  delivered,
	})
	return eventID
}

// deliver posts the envelope to the webhook endpoint. One attempt only.
func (s *Sink) deliver(rec *store.EventRecord) bool {
	if s.url == "" {
		s.logger.Warn("no webhook URL configured")
		return false
	}

	envelope := Envelope{
		Timestamp: time.Now().UTC(),
		EventID:   rec.ID,
		EventType: rec.EventType,
		Username:  rec.Username,
		Data:      rec.Payload,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		s.logger.WithError(err).Error("failed to marshal webhook envelope")
		return false
	}

	req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.logger.WithError(err).Error("failed to create webhook request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ighub-webhook/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.WithError(err).Warn("webhook delivery failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.WithField("status", resp.StatusCode).Warn("webhook rejected event")
		return false
	}
	return true
}

// HandleNewMessage records a detected direct message.
func (s *Sink) HandleNewMessage(username string, msg instagram.Message) {
	s.RecordAndDeliver(username, EventNewMessage, map[string]interface{}{
		"sender":     msg.Sender.Username,
		"sender_id":  msg.Sender.UserID,
		"message":    msg.Text,
		"timestamp":  msg.Timestamp.Format(time.RFC3339),
		"thread_id":  msg.ThreadID,
		"message_id": msg.ID,
	})
}

// HandleNewComment records a detected comment on the account's own media.
func (s *Sink) HandleNewComment(username string, c instagram.Comment) {
	s.RecordAndDeliver(username, EventNewComment, map[string]interface{}{
		"commenter":  c.User.Username,
		"comment":    c.Text,
		"timestamp":  c.CreatedAt.Format(time.RFC3339),
		"post_id":    c.MediaID,
		"comment_id": c.ID,
	})
}

// HandleMention records a detected mention.
func (s *Sink) HandleMention(username, mentionedBy, content, contentID string) {
	s.RecordAndDeliver(username, EventMention, map[string]interface{}{
		"mentioned_by": mentionedBy,
		"content":      content,
		"content_id":   contentID,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleNewFollower records a detected new follower.
func (s *Sink) HandleNewFollower(username, follower string, followerCount int) {
	s.RecordAndDeliver(username, EventNewFollower, map[string]interface{}{
		"follower":       follower,
		"follower_count": followerCount,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// ListEvents returns recorded events, newest first.
func (s *Sink) ListEvents(limit int, processed *bool) ([]*store.EventRecord, int, error) {
	return s.events.List(limit, processed)
}

// MarkProcessed flags an event as handled downstream.
func (s *Sink) MarkProcessed(eventID string) error {
	return s.events.MarkProcessed(eventID)
}

// Subscribe returns a channel receiving every event recorded after the call,
// and a cancel function that must be called to release it. Slow subscribers
// drop events rather than blocking detection.
func (s *Sink) Subscribe() (<-chan *store.EventRecord, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan *store.EventRecord, 16)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (s *Sink) notify(rec *store.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subscribers {
		cp := *rec
		select {
		case ch <- &cp:
		default:
		}
	}
}
