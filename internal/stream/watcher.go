// Package stream watches a server's streaming API and turns frames into
// models.StreamEvent values with monotonic identities.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tOgg1/convo/internal/events"
	"github.com/tOgg1/convo/internal/logging"
	"github.com/tOgg1/convo/internal/models"
)

const (
	defaultReconnectInterval    = 2 * time.Second
	defaultMaxReconnectInterval = time.Minute
	handshakeTimeout            = 10 * time.Second
	pongWait                    = 60 * time.Second
	pingPeriod                  = 30 * time.Second
	writeWait                   = 10 * time.Second
)

// Stream names accepted by the streaming API.
const (
	DirectStream       = "direct"
	NotificationStream = "user:notification"
)

// Streams subscribed when Config.Streams is empty.
var defaultStreams = []string{DirectStream, NotificationStream}

// ErrWatcherRunning is returned when Run is called twice concurrently.
var ErrWatcherRunning = errors.New("watcher already running")

// Config configures a Watcher.
type Config struct {
	// BaseURL is the instance URL (http(s)://host).
	BaseURL *url.URL
	// Token authenticates the stream.
	Token string
	// AccountID tags every emitted event.
	AccountID string
	// ReconnectInterval is the first reconnect delay; it doubles up to MaxReconnectInterval.
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	// Streams lists the streams to subscribe to. Empty means direct messages
	// and notifications.
	Streams []string
	// Dialer overrides the websocket dialer (tests).
	Dialer *websocket.Dialer
}

// Watcher maintains one streaming connection and publishes decoded events.
type Watcher struct {
	endpoint          string
	token             string
	accountID         string
	reconnectInterval time.Duration
	maxReconnect      time.Duration
	streams           []string
	dialer            *websocket.Dialer
	publisher         events.Publisher
	logger            zerolog.Logger

	lastID    atomic.Uint64
	connected atomic.Bool

	mu      sync.Mutex
	running bool
}

// frame is the wire envelope. Payload is itself a JSON document encoded as a string.
type frame struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}

type subscribeRequest struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
}

// NewWatcher creates a watcher publishing into publisher.
func NewWatcher(cfg Config, publisher events.Publisher) (*Watcher, error) {
	if cfg.BaseURL == nil {
		return nil, fmt.Errorf("base url required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("token required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher required")
	}

	endpoint, err := streamingEndpoint(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	reconnect := cfg.ReconnectInterval
	if reconnect <= 0 {
		reconnect = defaultReconnectInterval
	}
	maxReconnect := cfg.MaxReconnectInterval
	if maxReconnect < reconnect {
		maxReconnect = defaultMaxReconnectInterval
		if maxReconnect < reconnect {
			maxReconnect = reconnect
		}
	}
	streams := slices.Clone(cfg.Streams)
	if len(streams) == 0 {
		streams = slices.Clone(defaultStreams)
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}

	return &Watcher{
		endpoint:          endpoint,
		token:             strings.TrimSpace(cfg.Token),
		accountID:         cfg.AccountID,
		reconnectInterval: reconnect,
		maxReconnect:      maxReconnect,
		streams:           streams,
		dialer:            dialer,
		publisher:         publisher,
		logger:            logging.Component("stream").With().Str("account_id", cfg.AccountID).Logger(),
	}, nil
}

func streamingEndpoint(base *url.URL) (string, error) {
	u := *base
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/streaming"
	u.RawQuery = ""
	return u.String(), nil
}

// Connected reports whether a stream connection is currently open.
func (w *Watcher) Connected() bool {
	return w.connected.Load()
}

// LastEventID returns the ID of the most recently emitted event.
func (w *Watcher) LastEventID() uint64 {
	return w.lastID.Load()
}

// Run connects and reconnects until ctx is cancelled. It always returns ctx.Err()
// on shutdown; connection failures are logged and retried, never returned.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWatcherRunning
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	backoff := w.reconnectInterval
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		connectedAt := time.Now()
		err := w.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that stayed up for a while resets the backoff.
		if time.Since(connectedAt) > w.maxReconnect {
			backoff = w.reconnectInterval
		}
		w.logger.Warn().
			Str("error", logging.Redact(fmt.Sprint(err))).
			Dur("retry_in", backoff).
			Msg("stream disconnected")

		if err := sleepWithContext(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if backoff > w.maxReconnect {
			backoff = w.maxReconnect
		}
	}
}

func (w *Watcher) session(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+w.token)

	conn, resp, err := w.dialer.DialContext(ctx, w.endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %s: %w", w.endpoint, resp.Status, err)
		}
		return fmt.Errorf("dial %s: %w", w.endpoint, err)
	}
	defer conn.Close()

	for _, name := range w.streams {
		if err := conn.WriteJSON(subscribeRequest{Type: "subscribe", Stream: name}); err != nil {
			return fmt.Errorf("subscribe %s: %w", name, err)
		}
	}

	w.connected.Store(true)
	defer w.connected.Store(false)
	w.logger.Info().Str("endpoint", w.endpoint).Msg("stream connected")

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go w.keepAlive(ctx, conn, done)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		event, ok, err := w.decode(payload)
		if err != nil {
			w.logger.Debug().Err(err).Msg("skipping undecodable frame")
			continue
		}
		if !ok {
			continue
		}
		w.publisher.Publish(event)
	}
}

// keepAlive pings the server and closes the connection when ctx ends so the
// blocked ReadMessage returns.
func (w *Watcher) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// decode converts a raw frame into an event. ok is false for frames the
// client does not care about.
func (w *Watcher) decode(payload []byte) (*models.StreamEvent, bool, error) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, false, fmt.Errorf("decode frame: %w", err)
	}

	event := &models.StreamEvent{
		AccountID:  w.accountID,
		ReceivedAt: time.Now().UTC(),
	}

	switch f.Event {
	case "conversation":
		var conversation models.Conversation
		if err := json.Unmarshal([]byte(f.Payload), &conversation); err != nil {
			return nil, false, fmt.Errorf("decode conversation: %w", err)
		}
		if conversation.ID == "" {
			return nil, false, fmt.Errorf("conversation without id")
		}
		event.Kind = models.EventKindConversation
		event.Conversation = &conversation
	case "notification":
		event.Kind = models.EventKindNotification
	case "delete":
		event.Kind = models.EventKindDelete
		event.StatusID = strings.TrimSpace(f.Payload)
	default:
		return nil, false, nil
	}

	event.ID = w.lastID.Add(1)
	return event, true, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
