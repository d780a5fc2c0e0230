// Package feed keeps the paginated, live-updating conversation list.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/convo/internal/api"
	"github.com/tOgg1/convo/internal/logging"
	"github.com/tOgg1/convo/internal/models"
)

const (
	// DefaultPageSize matches the server's default page size.
	DefaultPageSize = 20
	// PlaceholderCount is the number of stand-in rows shown while the first page loads.
	PlaceholderCount = 10
)

// ErrSuperseded is returned by a fetch whose result was discarded because a
// newer first-page fetch started after it.
var ErrSuperseded = errors.New("fetch superseded by a newer first-page fetch")

// State is the first-page lifecycle of the feed.
type State int

const (
	StateIdle State = iota
	StateLoadingFirst
	StateLoaded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingFirst:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Client is the subset of the API the feed needs.
type Client interface {
	Conversations(ctx context.Context, maxID string, limit int) (api.Page, error)
	MarkConversationRead(ctx context.Context, id string) (models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Snapshot is an immutable view of the feed.
type Snapshot struct {
	State         State
	Conversations []models.Conversation
	// Placeholders is non-empty only while the first page is loading.
	Placeholders []models.Conversation
	HasMore      bool
	LoadingNext  bool
	Err          error
	LastEventID  uint64
}

// Rows returns what a view should render: placeholders while loading,
// otherwise the conversations.
func (s Snapshot) Rows() []models.Conversation {
	if s.State == StateLoadingFirst {
		return s.Placeholders
	}
	return s.Conversations
}

// IsEmpty reports a loaded feed with nothing in it.
func (s Snapshot) IsEmpty() bool {
	return s.State == StateLoaded && len(s.Conversations) == 0
}

// Options configures a Feed.
type Options struct {
	PageSize int
	Logger   *zerolog.Logger
}

// Feed is safe for concurrent use. Page results and live events are merged
// under one mutex; network calls run outside it.
type Feed struct {
	client   Client
	pageSize int
	logger   zerolog.Logger

	mu          sync.Mutex
	state       State
	items       []models.Conversation
	cursor      string
	loadingNext bool
	err         error
	lastEventID uint64

	// generation increments on every first-page fetch. Results tagged with
	// an older generation are dropped.
	generation  uint64
	cancelFirst context.CancelFunc

	observers    map[int]func(Snapshot)
	nextObserver int
}

// New creates an idle feed.
func New(client Client, opts Options) *Feed {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	logger := logging.Component("feed")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Feed{
		client:    client,
		pageSize:  pageSize,
		logger:    logger,
		observers: make(map[int]func(Snapshot)),
	}
}

// Subscribe registers fn to be called with a fresh snapshot after every change.
// Callbacks run on the goroutine that made the change, outside the feed lock.
func (f *Feed) Subscribe(fn func(Snapshot)) (cancel func()) {
	f.mu.Lock()
	id := f.nextObserver
	f.nextObserver++
	f.observers[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.observers, id)
		f.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Feed) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:         f.state,
		Conversations: make([]models.Conversation, len(f.items)),
		HasMore:       f.cursor != "",
		LoadingNext:   f.loadingNext,
		Err:           f.err,
		LastEventID:   f.lastEventID,
	}
	for i, c := range f.items {
		snap.Conversations[i] = c.Clone()
	}
	if f.state == StateLoadingFirst {
		snap.Placeholders = models.PlaceholderConversations(PlaceholderCount)
	}
	return snap
}

// unlockAndNotify releases the lock and fans the new snapshot out to observers.
func (f *Feed) unlockAndNotify() {
	snap := f.snapshotLocked()
	observers := make([]func(Snapshot), 0, len(f.observers))
	for i := 0; i < f.nextObserver; i++ {
		if fn, ok := f.observers[i]; ok {
			observers = append(observers, fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

// FetchFirstPage loads the first page and replaces the list with it. Any
// in-flight first-page fetch is cancelled and its result discarded.
func (f *Feed) FetchFirstPage(ctx context.Context) error {
	f.mu.Lock()
	if f.cancelFirst != nil {
		f.cancelFirst()
	}
	f.generation++
	gen := f.generation
	fetchCtx, cancel := context.WithCancel(ctx)
	f.cancelFirst = cancel
	f.state = StateLoadingFirst
	f.err = nil
	f.unlockAndNotify()

	page, err := f.client.Conversations(fetchCtx, "", f.pageSize)

	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		cancel()
		f.logger.Debug().Uint64("generation", gen).Msg("discarding superseded first page")
		return ErrSuperseded
	}
	f.cancelFirst = nil
	cancel()

	if err != nil {
		err = asNetworkError("conversations", err)
		f.state = StateError
		f.err = err
		f.unlockAndNotify()
		f.logger.Warn().Err(err).Msg("first page failed")
		return err
	}

	f.items = dedupe(nil, page.Conversations)
	f.cursor = page.NextCursor
	if len(page.Conversations) == 0 {
		f.cursor = ""
	}
	f.state = StateLoaded
	count := len(f.items)
	f.unlockAndNotify()

	f.logger.Debug().Int("count", count).Bool("has_more", page.NextCursor != "").Msg("first page loaded")
	return nil
}

// Retry reloads the first page, typically after StateError.
func (f *Feed) Retry(ctx context.Context) error {
	return f.FetchFirstPage(ctx)
}

// FetchNextPage appends the next page. It does nothing when there is no
// cursor, the first page is not loaded, or another next-page fetch is running.
func (f *Feed) FetchNextPage(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateLoaded || f.cursor == "" || f.loadingNext {
		f.mu.Unlock()
		return nil
	}
	f.loadingNext = true
	cursor := f.cursor
	gen := f.generation
	f.unlockAndNotify()

	page, err := f.client.Conversations(ctx, cursor, f.pageSize)

	f.mu.Lock()
	f.loadingNext = false
	if gen != f.generation {
		f.unlockAndNotify()
		return ErrSuperseded
	}
	if err != nil {
		err = asNetworkError("conversations", err)
		f.err = err
		f.unlockAndNotify()
		f.logger.Warn().Err(err).Str("max_id", cursor).Msg("next page failed")
		return err
	}

	before := len(f.items)
	f.items = dedupe(f.items, page.Conversations)
	f.cursor = page.NextCursor
	if len(page.Conversations) == 0 {
		f.cursor = ""
	}
	f.err = nil
	added := len(f.items) - before
	f.unlockAndNotify()

	f.logger.Debug().Int("added", added).Str("max_id", cursor).Msg("next page loaded")
	return nil
}

// ApplyLiveEvent merges a conversation event into the list. A known
// conversation is replaced in place; an unknown one is inserted at the head.
// Events at or below the last applied event ID are ignored. It reports
// whether the list changed.
func (f *Feed) ApplyLiveEvent(ev *models.StreamEvent) bool {
	if ev == nil || ev.Kind != models.EventKindConversation || ev.Conversation == nil || ev.Conversation.ID == "" {
		return false
	}

	f.mu.Lock()
	if ev.ID != 0 {
		if ev.ID <= f.lastEventID {
			f.mu.Unlock()
			return false
		}
		f.lastEventID = ev.ID
	}

	conversation := ev.Conversation.Clone()
	if idx := f.indexLocked(conversation.ID); idx >= 0 {
		f.items[idx] = conversation
	} else {
		f.items = append([]models.Conversation{conversation}, f.items...)
	}
	f.unlockAndNotify()
	return true
}

// MarkRead marks a conversation read on the server and updates it locally.
func (f *Feed) MarkRead(ctx context.Context, id string) error {
	updated, err := f.client.MarkConversationRead(ctx, id)
	if err != nil {
		return asNetworkError("mark read", err)
	}

	f.mu.Lock()
	if idx := f.indexLocked(id); idx >= 0 {
		if updated.ID == id {
			f.items[idx] = updated.Clone()
		} else {
			f.items[idx].Unread = false
		}
	}
	f.unlockAndNotify()
	return nil
}

// Delete removes a conversation on the server and from the list.
func (f *Feed) Delete(ctx context.Context, id string) error {
	if err := f.client.DeleteConversation(ctx, id); err != nil {
		return asNetworkError("delete conversation", err)
	}

	f.mu.Lock()
	if idx := f.indexLocked(id); idx >= 0 {
		f.items = append(f.items[:idx], f.items[idx+1:]...)
	}
	f.unlockAndNotify()
	return nil
}

func (f *Feed) indexLocked(id string) int {
	for i := range f.items {
		if f.items[i].ID == id {
			return i
		}
	}
	return -1
}

// dedupe appends incoming to existing, skipping identities already present.
func dedupe(existing, incoming []models.Conversation) []models.Conversation {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]models.Conversation, 0, len(existing)+len(incoming))
	for _, c := range existing {
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	for _, c := range incoming {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c.Clone())
	}
	return out
}

func asNetworkError(op string, err error) error {
	if api.IsNetworkError(err) {
		return err
	}
	return &api.NetworkError{Op: op, Err: err}
}
