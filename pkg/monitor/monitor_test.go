package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ighub/pkg/config"
	"ighub/pkg/instagram"
)

type fakeRegistry struct {
	mu      sync.Mutex
	clients map[string]instagram.Client
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{clients: make(map[string]instagram.Client)}
}

func (r *fakeRegistry) add(username string, c instagram.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[username] = c
}

func (r *fakeRegistry) remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, username)
}

func (r *fakeRegistry) Client(username string) (instagram.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[username]
	return c, ok
}

func (r *fakeRegistry) Usernames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.clients))
	for username := range r.clients {
		names = append(names, username)
	}
	return names
}

type captured struct {
	username string
	kind     string
	id       string
}

type fakeSink struct {
	mu     sync.Mutex
	events []captured
}

func (s *fakeSink) HandleNewMessage(username string, msg instagram.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, captured{username: username, kind: "message", id: msg.ID})
}

func (s *fakeSink) HandleNewComment(username string, c instagram.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, captured{username: username, kind: "comment", id: c.ID})
}

func (s *fakeSink) all() []captured {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]captured, len(s.events))
	copy(out, s.events)
	return out
}

func testConfig() config.MonitorConfig {
	return config.MonitorConfig{
		ThreadLimit:       3,
		MessagesPerThread: 3,
		MediaLimit:        1,
		CommentsPerMedia:  5,
		InterCheckDelay:   time.Millisecond,
		CycleDelay:        5 * time.Millisecond,
		ErrorBackoff:      5 * time.Millisecond,
	}
}

func TestCheckMessagesCheckpointBoundary(t *testing.T) {
	checkpoint := time.Now().UTC()
	client := instagram.NewFakeClient("self", "alice")
	client.AddMessage("t1", instagram.Message{
		ID:        "before",
		Timestamp: checkpoint.Add(-time.Second),
		Sender:    instagram.UserShort{UserID: "other", Username: "bob"},
	})
	client.AddMessage("t1", instagram.Message{
		ID:        "exact",
		Timestamp: checkpoint,
		Sender:    instagram.UserShort{UserID: "other", Username: "bob"},
	})
	client.AddMessage("t1", instagram.Message{
		ID:        "after",
		Timestamp: checkpoint.Add(time.Second),
		Sender:    instagram.UserShort{UserID: "other", Username: "bob"},
	})

	sink := &fakeSink{}
	m := New(newFakeRegistry(), sink, testConfig(), nil)

	require.NoError(t, m.checkMessages("alice", client, checkpoint))

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "after", events[0].id)
}

func TestCheckMessagesSkipsOwnMessages(t *testing.T) {
	checkpoint := time.Now().UTC()
	client := instagram.NewFakeClient("self", "alice")
	client.AddMessage("t1", instagram.Message{
		ID:        "mine",
		Timestamp: checkpoint.Add(time.Second),
		Sender:    instagram.UserShort{UserID: "self", Username: "alice"},
	})
	client.AddMessage("t1", instagram.Message{
		ID:        "theirs",
		Timestamp: checkpoint.Add(time.Second),
		Sender:    instagram.UserShort{UserID: "other", Username: "bob"},
	})

	sink := &fakeSink{}
	m := New(newFakeRegistry(), sink, testConfig(), nil)

	require.NoError(t, m.checkMessages("alice", client, checkpoint))

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "theirs", events[0].id)
}

func TestCheckMessagesThreadFailureSkipped(t *testing.T) {
	checkpoint := time.Now().UTC()
	client := instagram.NewFakeClient("self", "alice")
	client.AddMessage("t1", instagram.Message{
		ID:        "m1",
		Timestamp: checkpoint.Add(time.Second),
		Sender:    instagram.UserShort{UserID: "other", Username: "bob"},
	})
	client.MessagesErr = assert.AnError

	sink := &fakeSink{}
	m := New(newFakeRegistry(), sink, testConfig(), nil)

	// Per-thread failures do not abort the check.
	require.NoError(t, m.checkMessages("alice", client, checkpoint))
	assert.Empty(t, sink.all())
}

func TestCheckMessagesListFailureAborts(t *testing.T) {
	client := instagram.NewFakeClient("self", "alice")
	client.ThreadsErr = assert.AnError

	m := New(newFakeRegistry(), &fakeSink{}, testConfig(), nil)
	assert.Error(t, m.checkMessages("alice", client, time.Now()))
}

func TestCheckCommentsCheckpointAndSelfSkip(t *testing.T) {
	checkpoint := time.Now().UTC()
	client := instagram.NewFakeClient("self", "alice")
	client.AddComment("p1", instagram.Comment{
		ID:        "old",
		CreatedAt: checkpoint.Add(-time.Second),
		User:      instagram.UserShort{UserID: "other", Username: "bob"},
	})
	client.AddComment("p1", instagram.Comment{
		ID:        "own",
		CreatedAt: checkpoint.Add(time.Second),
		User:      instagram.UserShort{UserID: "self", Username: "alice"},
	})
	client.AddComment("p1", instagram.Comment{
		ID:        "new",
		CreatedAt: checkpoint.Add(time.Second),
		User:      instagram.UserShort{UserID: "other", Username: "bob"},
	})

	sink := &fakeSink{}
	m := New(newFakeRegistry(), sink, testConfig(), nil)

	require.NoError(t, m.checkComments("alice", client, checkpoint))

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].id)
	assert.Equal(t, "comment", events[0].kind)
}

func TestStartOneDetectsNewActivity(t *testing.T) {
	registry := newFakeRegistry()
	client := instagram.NewFakeClient("self", "alice")
	registry.add("alice", client)

	sink := &fakeSink{}
	m := New(registry, sink, testConfig(), nil)

	require.True(t, m.StartOne("alice"))
	defer m.StopAll()

	// Activity arrives after the checkpoint was taken.
	time.Sleep(2 * time.Millisecond)
	client.AddMessage("t1", instagram.Message{
		ID:        "m1",
		Timestamp: time.Now().UTC().Add(time.Second),
		Sender:    instagram.UserShort{UserID: "other", Username: "bob"},
	})

	require.Eventually(t, func() bool {
		return len(sink.all()) > 0
	}, time.Second, time.Millisecond)

	events := sink.all()
	assert.Equal(t, "alice", events[0].username)
	assert.Equal(t, "m1", events[0].id)
}

func TestStartOneTwiceIsNoop(t *testing.T) {
	registry := newFakeRegistry()
	registry.add("alice", instagram.NewFakeClient("self", "alice"))

	m := New(registry, &fakeSink{}, testConfig(), nil)
	defer m.StopAll()

	assert.True(t, m.StartOne("alice"))
	assert.False(t, m.StartOne("alice"))
	assert.Len(t, m.Status().ActiveAccounts, 1)
}

func TestStopOne(t *testing.T) {
	registry := newFakeRegistry()
	client := instagram.NewFakeClient("self", "alice")
	registry.add("alice", client)

	sink := &fakeSink{}
	m := New(registry, sink, testConfig(), nil)

	require.True(t, m.StartOne("alice"))
	require.True(t, m.StopOne("alice"))

	// The loop has fully exited; activity added now must go unseen.
	client.AddMessage("t1", instagram.Message{
		ID:        "late",
		Timestamp: time.Now().UTC().Add(time.Second),
		Sender:    instagram.UserShort{UserID: "other", Username: "bob"},
	})
	before := len(sink.all())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, len(sink.all()))

	status := m.Status()
	assert.False(t, status.Monitoring)
	assert.Empty(t, status.ActiveAccounts)
}

func TestStopOneUnknownAccount(t *testing.T) {
	m := New(newFakeRegistry(), &fakeSink{}, testConfig(), nil)
	assert.False(t, m.StopOne("nobody"))
}

func TestLoopEndsWhenAccountRemoved(t *testing.T) {
	registry := newFakeRegistry()
	registry.add("alice", instagram.NewFakeClient("self", "alice"))

	m := New(registry, &fakeSink{}, testConfig(), nil)
	require.True(t, m.StartOne("alice"))

	registry.remove("alice")

	require.Eventually(t, func() bool {
		return !m.Status().Monitoring
	}, time.Second, time.Millisecond)
}

func TestStartAll(t *testing.T) {
	registry := newFakeRegistry()
	registry.add("alice", instagram.NewFakeClient("1", "alice"))
	registry.add("bob", instagram.NewFakeClient("2", "bob"))

	m := New(registry, &fakeSink{}, testConfig(), nil)
	defer m.StopAll()

	m.StartAll()

	status := m.Status()
	assert.True(t, status.Monitoring)
	assert.ElementsMatch(t, []string{"alice", "bob"}, status.ActiveAccounts)
	assert.Len(t, status.LastChecks, 2)
}

func TestErrorBackoffKeepsLoopAlive(t *testing.T) {
	registry := newFakeRegistry()
	client := instagram.NewFakeClient("self", "alice")
	client.ThreadsErr = assert.AnError
	registry.add("alice", client)

	sink := &fakeSink{}
	m := New(registry, sink, testConfig(), nil)
	require.True(t, m.StartOne("alice"))
	defer m.StopAll()

	// Let a few failing cycles pass, then recover.
	time.Sleep(20 * time.Millisecond)
	client.SetThreadsErr(nil)
	client.AddMessage("t1", instagram.Message{
		ID:        "recovered",
		Timestamp: time.Now().UTC().Add(time.Second),
		Sender:    instagram.UserShort{UserID: "other", Username: "bob"},
	})

	require.Eventually(t, func() bool {
		return len(sink.all()) > 0
	}, time.Second, time.Millisecond)
}
