package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/convo/internal/events"
	"github.com/tOgg1/convo/internal/models"
	"github.com/tOgg1/convo/internal/testutil"
)

type collector struct {
	mu     sync.Mutex
	events []*models.StreamEvent
}

func (c *collector) handle(ev *models.StreamEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []*models.StreamEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.StreamEvent, len(c.events))
	copy(out, c.events)
	return out
}

func streamFrame(t *testing.T, event string, payload any) []byte {
	t.Helper()
	var raw string
	switch v := payload.(type) {
	case string:
		raw = v
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		raw = string(data)
	}
	data, err := json.Marshal(frame{Stream: []string{"direct"}, Event: event, Payload: raw})
	require.NoError(t, err)
	return data
}

// newStreamServer serves each connection with the next batch of frames, then
// closes it so the watcher reconnects.
func newStreamServer(t *testing.T, batches ...[][]byte) (*httptest.Server, *sync.WaitGroup) {
	t.Helper()
	testutil.SkipIfNoNetwork(t)
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	next := 0
	var subscribed sync.WaitGroup
	subscribed.Add(len(batches))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/streaming" || r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for range defaultStreams {
			var req subscribeRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
		}

		mu.Lock()
		idx := next
		next++
		mu.Unlock()
		if idx >= len(batches) {
			// Hold the connection open until the client goes away.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
		subscribed.Done()
		for _, f := range batches[idx] {
			if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &subscribed
}

func newTestWatcher(t *testing.T, srv *httptest.Server, pub events.Publisher) *Watcher {
	t.Helper()
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	w, err := NewWatcher(Config{
		BaseURL:              base,
		Token:                "tok",
		AccountID:            "acct-1",
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectInterval: 50 * time.Millisecond,
	}, pub)
	require.NoError(t, err)
	return w
}

func TestWatcher_PublishesDecodedEvents(t *testing.T) {
	conv := models.Conversation{ID: "c1", Unread: true}
	srv, _ := newStreamServer(t, [][]byte{
		streamFrame(t, "conversation", conv),
		streamFrame(t, "update", map[string]string{"id": "ignored"}),
		streamFrame(t, "notification", map[string]string{"id": "n1"}),
		streamFrame(t, "delete", "s9"),
	})

	pub := events.NewInMemoryPublisher()
	got := &collector{}
	require.NoError(t, pub.Subscribe("all", events.Filter{}, got.handle))

	w := newTestWatcher(t, srv, pub)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(got.snapshot()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	evs := got.snapshot()
	require.Equal(t, models.EventKindConversation, evs[0].Kind)
	require.Equal(t, "c1", evs[0].Conversation.ID)
	require.Equal(t, "acct-1", evs[0].AccountID)
	require.Equal(t, models.EventKindNotification, evs[1].Kind)
	require.Equal(t, models.EventKindDelete, evs[2].Kind)
	require.Equal(t, "s9", evs[2].StatusID)

	for i := 1; i < len(evs); i++ {
		require.Greater(t, evs[i].ID, evs[i-1].ID)
	}
	require.Equal(t, evs[2].ID, w.LastEventID())
}

func TestWatcher_ReconnectsAndKeepsIDsMonotonic(t *testing.T) {
	srv, subscribed := newStreamServer(t,
		[][]byte{streamFrame(t, "conversation", models.Conversation{ID: "a"})},
		[][]byte{streamFrame(t, "conversation", models.Conversation{ID: "b"})},
	)

	pub := events.NewInMemoryPublisher()
	got := &collector{}
	require.NoError(t, pub.Subscribe("all", events.Filter{}, got.handle))

	w := newTestWatcher(t, srv, pub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	subscribed.Wait()
	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)

	evs := got.snapshot()
	require.Equal(t, "a", evs[0].Conversation.ID)
	require.Equal(t, "b", evs[1].Conversation.ID)
	require.Equal(t, uint64(1), evs[0].ID)
	require.Equal(t, uint64(2), evs[1].ID)
}

func TestWatcher_RunTwice(t *testing.T) {
	srv, _ := newStreamServer(t)
	w := newTestWatcher(t, srv, events.NewInMemoryPublisher())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, w.Connected, 2*time.Second, 5*time.Millisecond)
	require.ErrorIs(t, w.Run(ctx), ErrWatcherRunning)
}

func TestNewWatcher_Validation(t *testing.T) {
	base, _ := url.Parse("https://example.social")
	pub := events.NewInMemoryPublisher()

	_, err := NewWatcher(Config{Token: "tok"}, pub)
	require.Error(t, err)
	_, err = NewWatcher(Config{BaseURL: base}, pub)
	require.Error(t, err)
	_, err = NewWatcher(Config{BaseURL: base, Token: "tok"}, nil)
	require.Error(t, err)

	w, err := NewWatcher(Config{BaseURL: base, Token: "tok"}, pub)
	require.NoError(t, err)
	require.Equal(t, "wss://example.social/api/v1/streaming", w.endpoint)
}

func TestDecode_RejectsMalformedConversation(t *testing.T) {
	base, _ := url.Parse("http://localhost")
	w, err := NewWatcher(Config{BaseURL: base, Token: "tok"}, events.NewInMemoryPublisher())
	require.NoError(t, err)

	_, _, err = w.decode([]byte(`{"event":"conversation","payload":"{}"}`))
	require.Error(t, err)
	_, _, err = w.decode([]byte(`not json`))
	require.Error(t, err)
	require.Zero(t, w.LastEventID())
}

type countingIncrementer struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingIncrementer) IncrementNotificationCount(token string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[token]++
	return c.counts[token]
}

func TestTrackNotifications(t *testing.T) {
	pub := events.NewInMemoryPublisher()
	counter := &countingIncrementer{}

	stop, err := TrackNotifications(pub, counter, "acct-1", "tok")
	require.NoError(t, err)
	require.Equal(t, 1, pub.SubscriberCount())

	pub.Publish(&models.StreamEvent{ID: 1, Kind: models.EventKindNotification, AccountID: "acct-1"})
	pub.Publish(&models.StreamEvent{ID: 2, Kind: models.EventKindNotification, AccountID: "acct-2"})
	pub.Publish(&models.StreamEvent{ID: 3, Kind: models.EventKindConversation, AccountID: "acct-1"})
	require.Equal(t, 1, counter.counts["tok"])

	stop()
	require.Zero(t, pub.SubscriberCount())
	pub.Publish(&models.StreamEvent{ID: 4, Kind: models.EventKindNotification, AccountID: "acct-1"})
	require.Equal(t, 1, counter.counts["tok"])
}

func TestWatcher_SubscribesConfiguredStreams(t *testing.T) {
	testutil.SkipIfNoNetwork(t)
	upgrader := websocket.Upgrader{}
	requests := make(chan subscribeRequest, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		requests <- req
		if err := conn.WriteMessage(websocket.TextMessage, streamFrame(t, "notification", map[string]string{"id": "n1"})); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	pub := events.NewInMemoryPublisher()
	got := &collector{}
	require.NoError(t, pub.Subscribe("all", events.Filter{}, got.handle))

	w, err := NewWatcher(Config{
		BaseURL:   base,
		Token:     "tok",
		AccountID: "acct-2",
		Streams:   []string{NotificationStream},
	}, pub)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	select {
	case req := <-requests:
		require.Equal(t, subscribeRequest{Type: "subscribe", Stream: NotificationStream}, req)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe request")
	}
	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	ev := got.snapshot()[0]
	require.Equal(t, models.EventKindNotification, ev.Kind)
	require.Equal(t, "acct-2", ev.AccountID)

	// Only one subscribe frame was sent.
	select {
	case extra := <-requests:
		t.Fatalf("unexpected subscribe %+v", extra)
	default:
	}
}

func TestNewWatcher_DefaultStreams(t *testing.T) {
	base, _ := url.Parse("https://example.social")
	w, err := NewWatcher(Config{BaseURL: base, Token: "tok"}, events.NewInMemoryPublisher())
	require.NoError(t, err)
	require.Equal(t, []string{DirectStream, NotificationStream}, w.streams)
}
