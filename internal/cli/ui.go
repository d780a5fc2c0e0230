package cli

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/convo/internal/account"
	"github.com/tOgg1/convo/internal/api"
	"github.com/tOgg1/convo/internal/events"
	"github.com/tOgg1/convo/internal/feed"
	"github.com/tOgg1/convo/internal/logging"
	"github.com/tOgg1/convo/internal/models"
	"github.com/tOgg1/convo/internal/stream"
	"github.com/tOgg1/convo/internal/tui"
)

var errNoTTY = errors.New("the TUI requires an interactive terminal; use `convo conversations` or `convo watch` instead")

func init() {
	rootCmd.AddCommand(uiCmd)
}

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the convo TUI",
	Long:  "Open the interactive inbox with the account switcher.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context())
	},
}

func runTUI(ctx context.Context) error {
	if IsNonInteractive() || !hasTTY() {
		return errNoTTY
	}

	cfg := GetConfig()
	if cfg.Logging.File == "" {
		// Anything written to stderr would corrupt the alt screen.
		logging.Init(logging.Config{Level: cfg.Logging.Level, Format: "json", Output: io.Discard})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	acct, err := accountContext(ctx, env, "")
	if err != nil {
		return err
	}
	selector, err := env.newSelector()
	if err != nil {
		return err
	}
	go func() { _ = selector.Watch(ctx) }()

	session := newLiveSession(ctx, env, selector)
	defer session.stop()

	f, err := session.start(acct)
	if err != nil {
		return err
	}

	return tui.Run(tui.Config{
		Feed:         f,
		Selector:     selector,
		Theme:        cfg.TUI.Theme,
		ActiveHandle: acct.Handle,
		Switch: func(ctx context.Context, accountID string) (*feed.Feed, error) {
			if err := selector.Select(ctx, accountID); err != nil {
				return nil, err
			}
			next, err := accountContext(ctx, env, accountID)
			if err != nil {
				return nil, err
			}
			session.stop()
			return session.start(next)
		},
	})
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// liveSession owns the feed and streams of the account currently shown. Other
// authenticated accounts get a notifications-only stream so the switcher badge
// follows them live.
type liveSession struct {
	parent    context.Context
	env       *environment
	selector  *account.Selector
	publisher *events.InMemoryPublisher
	logger    zerolog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	cleanups []func()
	watchers sync.WaitGroup
}

func newLiveSession(ctx context.Context, env *environment, selector *account.Selector) *liveSession {
	return &liveSession{
		parent:    ctx,
		env:       env,
		selector:  selector,
		publisher: events.NewInMemoryPublisher(),
		logger:    logging.Component("ui"),
	}
}

func (s *liveSession) start(acct *models.Account) (*feed.Feed, error) {
	f, client, err := s.env.newFeed(acct, 0)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel

	detach, err := f.Attach(s.publisher, acct.ID)
	if err != nil {
		return nil, err
	}
	s.cleanups = append(s.cleanups, detach)
	s.env.prefs.ClearNotifications(acct.OAuthToken)

	if !s.env.cfg.Stream.Enabled {
		return f, nil
	}

	if err := s.trackLocked(ctx, acct, client.BaseURL(), nil, s.env.prefs); err != nil {
		return nil, err
	}

	others, err := s.env.accounts.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("background notifications disabled")
		return f, nil
	}
	counter := s.selector.RefreshingCounter(s.env.prefs)
	for _, other := range backgroundAccounts(others, acct.ID) {
		base, err := api.ParseInstance(other.Instance)
		if err == nil {
			err = s.trackLocked(ctx, other, base, []string{stream.NotificationStream}, counter)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("account", other.Handle).Msg("background notifications unavailable")
		}
	}
	return f, nil
}

// trackLocked counts notifications for acct and starts its watcher.
func (s *liveSession) trackLocked(ctx context.Context, acct *models.Account, base *url.URL, streams []string, counter stream.NotificationIncrementer) error {
	untrack, err := stream.TrackNotifications(s.publisher, counter, acct.ID, acct.OAuthToken)
	if err != nil {
		return err
	}
	s.cleanups = append(s.cleanups, untrack)

	watcher, err := stream.NewWatcher(stream.Config{
		BaseURL:              base,
		Token:                acct.OAuthToken,
		AccountID:            acct.ID,
		ReconnectInterval:    s.env.cfg.Stream.ReconnectInterval,
		MaxReconnectInterval: s.env.cfg.Stream.MaxReconnectInterval,
		Streams:              streams,
	}, s.publisher)
	if err != nil {
		return err
	}

	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		_ = watcher.Run(ctx)
	}()
	return nil
}

func (s *liveSession) stop() {
	s.mu.Lock()
	cancel, cleanups := s.cancel, s.cleanups
	s.cancel, s.cleanups = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.watchers.Wait()
	for _, fn := range cleanups {
		fn()
	}
}

// backgroundAccounts returns the authenticated accounts other than activeID.
func backgroundAccounts(accounts []*models.Account, activeID string) []*models.Account {
	out := make([]*models.Account, 0, len(accounts))
	for _, acct := range accounts {
		if acct == nil || acct.ID == activeID || !acct.HasToken() {
			continue
		}
		out = append(out, acct)
	}
	return out
}
