// Package account implements the account selector: the registered accounts,
// the active one, and the aggregated notification badge.
package account

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/convo/internal/logging"
	"github.com/tOgg1/convo/internal/models"
)

// NotificationCounter reports unread notifications per token.
type NotificationCounter interface {
	NotificationCount(token string) int
}

// FollowRequestsFunc returns the number of pending follow requests for an account.
type FollowRequestsFunc func(ctx context.Context, account *models.Account) (int, error)

// AccountViewModel is one row of the selector.
type AccountViewModel struct {
	Account           models.Account
	IsActive          bool
	NotificationCount int
	// ShowBadge marks a non-active row with unread notifications.
	ShowBadge bool
}

// Options configures a Selector.
type Options struct {
	// AccountCreationEnabled mirrors the "add account" entry. Without it the
	// selector never shows a badge.
	AccountCreationEnabled bool
	// FollowRequests is consulted for the active account on refresh. Optional.
	FollowRequests FollowRequestsFunc
	Logger         *zerolog.Logger
}

// Selector holds the account snapshot shown by the account switcher.
type Selector struct {
	registry        Registry
	current         *CurrentAccount
	counter         NotificationCounter
	followRequests  FollowRequestsFunc
	creationEnabled bool
	logger          zerolog.Logger

	mu             sync.Mutex
	accounts       []AccountViewModel
	pendingFollows int
	generation     uint64
	presented      bool
	observers      map[int]func([]AccountViewModel)
	nextObserver   int

	countsChanged chan struct{}
}

// NewSelector creates a selector with an empty snapshot. Call Refresh or Open to populate it.
func NewSelector(registry Registry, current *CurrentAccount, counter NotificationCounter, opts Options) (*Selector, error) {
	if registry == nil || current == nil || counter == nil {
		return nil, fmt.Errorf("registry, current account and notification counter are required")
	}
	logger := logging.Component("account-selector")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Selector{
		registry:        registry,
		current:         current,
		counter:         counter,
		followRequests:  opts.FollowRequests,
		creationEnabled: opts.AccountCreationEnabled,
		logger:          logger,
		observers:       make(map[int]func([]AccountViewModel)),
		countsChanged:   make(chan struct{}, 1),
	}, nil
}

// Refresh rebuilds the snapshot from the registry. Concurrent refreshes are
// resolved last-started-wins.
func (s *Selector) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	accounts, err := s.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	activeID := s.current.ID()
	rows := make([]AccountViewModel, 0, len(accounts))
	var active *models.Account
	for _, account := range accounts {
		if account == nil {
			continue
		}
		row := AccountViewModel{
			Account:  *account,
			IsActive: account.ID == activeID,
		}
		if account.HasToken() {
			row.NotificationCount = max(s.counter.NotificationCount(account.OAuthToken), 0)
		}
		row.ShowBadge = s.creationEnabled && !row.IsActive && row.NotificationCount > 0
		if row.IsActive {
			active = account
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Account.Handle < rows[j].Account.Handle
	})

	pending := 0
	if active != nil && active.HasToken() && s.followRequests != nil {
		n, err := s.followRequests(ctx, active)
		if err != nil {
			// The badge degrades to notifications only.
			s.logger.Warn().Err(err).Str("account", active.Handle).Msg("follow requests unavailable")
		} else {
			pending = n
		}
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug().Uint64("generation", gen).Msg("discarding stale refresh")
		return nil
	}
	s.accounts = rows
	s.pendingFollows = pending
	snapshot := cloneRows(rows)
	observers := s.observersLocked()
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
	s.logger.Debug().Int("accounts", len(rows)).Msg("selector refreshed")
	return nil
}

// Open marks the selector presented and refreshes it.
func (s *Selector) Open(ctx context.Context) error {
	s.mu.Lock()
	s.presented = true
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Close marks the selector dismissed.
func (s *Selector) Close() {
	s.mu.Lock()
	s.presented = false
	s.mu.Unlock()
}

// IsOpen reports whether the selector is presented.
func (s *Selector) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presented
}

// Watch refreshes the snapshot whenever the active account changes or
// CountsChanged is signalled, until ctx ends.
func (s *Selector) Watch(ctx context.Context) error {
	changes, stop := s.current.Changes()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-changes:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn().Err(err).Str("active", id).Msg("refresh after account change failed")
			}
		case <-s.countsChanged:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("refresh after notification failed")
			}
		}
	}
}

// CountsChanged asks a running Watch to refresh. Signals that arrive while a
// refresh is pending are merged into it.
func (s *Selector) CountsChanged() {
	select {
	case s.countsChanged <- struct{}{}:
	default:
	}
}

// Select makes id the active account and refreshes.
func (s *Selector) Select(ctx context.Context, id string) error {
	if err := s.current.Set(ctx, id); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// Snapshot returns the rows ordered by handle.
func (s *Selector) Snapshot() []AccountViewModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRows(s.accounts)
}

// NotificationCount sums unread notifications over every authenticated
// account except the active one.
func (s *Selector) NotificationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, row := range s.accounts {
		if row.IsActive || !row.Account.HasToken() {
			continue
		}
		total += row.NotificationCount
	}
	return total
}

// PendingFollowRequests returns the active account's follow-request count from the last refresh.
func (s *Selector) PendingFollowRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingFollows
}

// ShowBadge reports whether the selector entry point should carry a badge dot.
func (s *Selector) ShowBadge() bool {
	if !s.creationEnabled {
		return false
	}
	return s.NotificationCount() > 0 || s.PendingFollowRequests() > 0
}

// Subscribe registers fn to receive every refreshed snapshot.
func (s *Selector) Subscribe(fn func([]AccountViewModel)) (cancel func()) {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Selector) observersLocked() []func([]AccountViewModel) {
	out := make([]func([]AccountViewModel), 0, len(s.observers))
	for i := 0; i < s.nextObserver; i++ {
		if fn, ok := s.observers[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func cloneRows(rows []AccountViewModel) []AccountViewModel {
	out := make([]AccountViewModel, len(rows))
	copy(out, rows)
	return out
}
