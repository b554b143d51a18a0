package monitor

import (
	"context"
	"sync"
	"time"

	"ighub/pkg/config"
	"ighub/pkg/instagram"
	"ighub/pkg/logger"
)

// Registry is the view of the session manager the monitor needs: a way to
// look up the live client for an account and to notice the account is gone.
type Registry interface {
	Client(username string) (instagram.Client, bool)
	Usernames() []string
}

// Sink receives detected activity.
type Sink interface {
	HandleNewMessage(username string, msg instagram.Message)
	HandleNewComment(username string, c instagram.Comment)
}

// Status describes the monitor's current state.
type Status struct {
	Monitoring     bool                 `json:"monitoring"`
	ActiveAccounts []string             `json:"active_accounts"`
	LastChecks     map[string]time.Time `json:"last_checks"`
}

// task is one account's running polling loop.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Monitor runs one polling goroutine per monitored account. Each loop checks
// recent direct messages, then recent comments on the account's own media,
// forwarding anything newer than the account's checkpoint to the sink.
//
// Cancellation is cooperative: the loop observes it between steps, never
// mid-call, so an in-flight remote request completes before a stop takes
// effect.
type Monitor struct {
	registry Registry
	sink     Sink
	cfg      config.MonitorConfig
	logger   logger.Logger

	mu        sync.Mutex
	tasks     map[string]*task
	lastCheck map[string]time.Time
}

// New creates a monitor over the given registry and sink.
func New(registry Registry, sink Sink, cfg config.MonitorConfig, log logger.Logger) *Monitor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Monitor{
		registry:  registry,
		sink:      sink,
		cfg:       cfg,
		logger:    log,
		tasks:     make(map[string]*task),
		lastCheck: make(map[string]time.Time),
	}
}

// StartAll starts monitoring every account currently in the registry.
func (m *Monitor) StartAll() {
	m.logger.Info("starting activity monitoring")
	for _, username := range m.registry.Usernames() {
		m.StartOne(username)
	}
}

// StartOne starts a monitoring task for one account. It is a no-op if the
// account is already monitored. The checkpoint starts at "now": only
// activity after this moment is reported.
func (m *Monitor) StartOne(username string) bool {
	m.mu.Lock()
	if _, running := m.tasks[username]; running {
		m.mu.Unlock()
		m.logger.WithField("username", username).Debug("already monitoring")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	m.tasks[username] = t
	m.lastCheck[username] = time.Now().UTC()
	m.mu.Unlock()

	go m.run(ctx, username, t)

	m.logger.WithField("username", username).Info("started monitoring")
	return true
}

// StopAll cancels every monitoring task and waits for the loops to exit.
func (m *Monitor) StopAll() {
	m.logger.Info("stopping activity monitoring")

	m.mu.Lock()
	stopped := make([]*task, 0, len(m.tasks))
	for username, t := range m.tasks {
		t.cancel()
		stopped = append(stopped, t)
		delete(m.tasks, username)
		delete(m.lastCheck, username)
	}
	m.mu.Unlock()

	for _, t := range stopped {
		<-t.done
	}
}

// StopOne cancels one account's monitoring task and waits for its loop to
// exit. Stopping an account that is not monitored is a no-op.
func (m *Monitor) StopOne(username string) bool {
	m.mu.Lock()
	t, ok := m.tasks[username]
	if ok {
		t.cancel()
		delete(m.tasks, username)
		delete(m.lastCheck, username)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	<-t.done
	m.logger.WithField("username", username).Info("stopped monitoring")
	return true
}

// Status reports which accounts are monitored and when each was last checked.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make([]string, 0, len(m.tasks))
	for username := range m.tasks {
		accounts = append(accounts, username)
	}
	lastChecks := make(map[string]time.Time, len(m.lastCheck))
	for username, ts := range m.lastCheck {
		lastChecks[username] = ts
	}

	return Status{
		Monitoring:     len(accounts) > 0,
		ActiveAccounts: accounts,
		LastChecks:     lastChecks,
	}
}

// run is the per-account polling loop.
func (m *Monitor) run(ctx context.Context, username string, t *task) {
	defer close(t.done)
	defer m.cleanup(username, t)

	log := m.logger.WithField("username", username)
	log.Info("monitoring loop started")

	for {
		if ctx.Err() != nil {
			break
		}

		client, ok := m.registry.Client(username)
		if !ok {
			log.Info("account no longer registered, ending loop")
			break
		}

		checkpoint := m.checkpoint(username)

		if err := m.checkMessages(username, client, checkpoint); err != nil {
			log.WithError(err).Error("message check failed")
			if !sleepCtx(ctx, m.cfg.ErrorBackoff) {
				break
			}
			continue
		}

		if !sleepCtx(ctx, m.cfg.InterCheckDelay) {
			break
		}

		if err := m.checkComments(username, client, checkpoint); err != nil {
			log.WithError(err).Error("comment check failed")
			if !sleepCtx(ctx, m.cfg.ErrorBackoff) {
				break
			}
			continue
		}

		m.advanceCheckpoint(username)

		if !sleepCtx(ctx, m.cfg.CycleDelay) {
			break
		}
	}

	log.Info("monitoring loop ended")
}

// checkMessages scans a bounded window of recent direct messages and forwards
// every message newer than since that was not authored by the account itself.
// Per-thread failures are logged and skipped; only a failure to list threads
// aborts the check.
func (m *Monitor) checkMessages(username string, client instagram.Client, since time.Time) error {
	threads, err := client.DirectThreads(m.cfg.ThreadLimit)
	if err != nil {
		return err
	}

	selfID := client.UserID()
	log := m.logger.WithField("username", username)

	for _, thread := range threads {
		messages, err := client.ThreadMessages(thread.ID, m.cfg.MessagesPerThread)
		if err != nil {
			log.WithError(err).WithField("thread_id", thread.ID).Warn("failed to fetch thread messages")
			continue
		}

		for _, msg := range messages {
			if msg.Sender.UserID == selfID {
				continue
			}
			// Strictly newer than the checkpoint: a message stamped exactly
			// at the boundary is not reported.
			if !msg.Timestamp.After(since) {
				continue
			}

			m.sink.HandleNewMessage(username, msg)
			log.WithFields(map[string]interface{}{
				"sender":    msg.Sender.Username,
				"thread_id": msg.ThreadID,
			}).Info("new message detected")
		}
	}
	return nil
}

// checkComments scans comments on the account's own most recent media, same
// skip-self and newer-than-checkpoint semantics as checkMessages.
func (m *Monitor) checkComments(username string, client instagram.Client, since time.Time) error {
	medias, err := client.UserMedias(m.cfg.MediaLimit)
	if err != nil {
		return err
	}

	selfID := client.UserID()
	log := m.logger.WithField("username", username)

	for _, media := range medias {
		comments, err := client.MediaComments(media.ID, m.cfg.CommentsPerMedia)
		if err != nil {
			log.WithError(err).WithField("media_id", media.ID).Warn("failed to fetch media comments")
			continue
		}

		for _, comment := range comments {
			if comment.User.UserID == selfID {
				continue
			}
			if !comment.CreatedAt.After(since) {
				continue
			}

			m.sink.HandleNewComment(username, comment)
			log.WithFields(map[string]interface{}{
				"commenter": comment.User.Username,
				"media_id":  comment.MediaID,
			}).Info("new comment detected")
		}
	}
	return nil
}

func (m *Monitor) checkpoint(username string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheck[username]
}

func (m *Monitor) advanceCheckpoint(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[username]; ok {
		m.lastCheck[username] = time.Now().UTC()
	}
}

// cleanup drops monitor state when a loop exits on its own (account removed
// from the registry). A loop stopped through StopOne/StopAll was already
// removed by the canceller.
func (m *Monitor) cleanup(username string, t *task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.tasks[username]; ok && current == t {
		delete(m.tasks, username)
		delete(m.lastCheck, username)
	}
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
