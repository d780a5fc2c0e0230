package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tOgg1/convo/internal/events"
	"github.com/tOgg1/convo/internal/feed"
	"github.com/tOgg1/convo/internal/logging"
	"github.com/tOgg1/convo/internal/models"
	"github.com/tOgg1/convo/internal/stream"
)

var (
	watchAccount   string
	watchSkipFirst bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchAccount, "account", "", "account handle or id (default: active account)")
	watchCmd.Flags().BoolVar(&watchSkipFirst, "no-initial", false, "do not print the first page before streaming")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live conversation updates as JSONL",
	Long:  "Load the first page, then merge live events into it and print every change as one JSON object per line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		acct, err := accountContext(ctx, env, watchAccount)
		if err != nil {
			return err
		}
		f, client, err := env.newFeed(acct, 0)
		if err != nil {
			return err
		}

		publisher := events.NewInMemoryPublisher()
		defer publisher.Close()

		watcher, err := stream.NewWatcher(stream.Config{
			BaseURL:              client.BaseURL(),
			Token:                acct.OAuthToken,
			AccountID:            acct.ID,
			ReconnectInterval:    env.cfg.Stream.ReconnectInterval,
			MaxReconnectInterval: env.cfg.Stream.MaxReconnectInterval,
		}, publisher)
		if err != nil {
			return err
		}

		streamer := newChangeStreamer(os.Stdout, f)
		if err := f.FetchFirstPage(ctx); err != nil {
			return err
		}
		if !watchSkipFirst {
			for _, c := range f.Snapshot().Conversations {
				conv := c
				if err := streamer.write(change{Type: "initial", Conversation: &conv}); err != nil {
					return err
				}
			}
		}

		detach, err := f.Attach(publisher, acct.ID)
		if err != nil {
			return err
		}
		defer detach()

		untrack, err := stream.TrackNotifications(publisher, env.prefs, acct.ID, acct.OAuthToken)
		if err != nil {
			return err
		}
		defer untrack()

		if err := publisher.Subscribe("watch-output", events.Filter{AccountID: acct.ID}, streamer.handle); err != nil {
			return err
		}
		defer func() { _ = publisher.Unsubscribe("watch-output") }()

		logger := logging.Component("watch")
		logger.Info().Str("account", acct.Handle).Msg("streaming")
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("stream stopped: %w", err)
		}
		return streamer.err()
	},
}

// change is one JSONL record emitted by `convo watch`.
type change struct {
	Type         string               `json:"type"`
	EventID      uint64               `json:"event_id,omitempty"`
	Kind         models.EventKind     `json:"kind,omitempty"`
	Conversation *models.Conversation `json:"conversation,omitempty"`
	StatusID     string               `json:"status_id,omitempty"`
	Position     int                  `json:"position"`
	FeedSize     int                  `json:"feed_size"`
}

// changeStreamer serializes writes from the publisher goroutine.
type changeStreamer struct {
	out    io.Writer
	feed   *feed.Feed
	logger zerolog.Logger

	mu       sync.Mutex
	position int
	writeErr error
}

func newChangeStreamer(out io.Writer, f *feed.Feed) *changeStreamer {
	return &changeStreamer{out: out, feed: f, logger: logging.Component("watch")}
}

// handle runs after the feed's own subscription, so the snapshot already
// contains the merged event.
func (s *changeStreamer) handle(ev *models.StreamEvent) {
	c := change{
		Type:     "event",
		EventID:  ev.ID,
		Kind:     ev.Kind,
		StatusID: ev.StatusID,
		Position: -1,
	}
	snap := s.feed.Snapshot()
	c.FeedSize = len(snap.Conversations)
	if ev.Conversation != nil {
		c.Conversation = ev.Conversation
		for i, conv := range snap.Conversations {
			if conv.ID == ev.Conversation.ID {
				c.Position = i
				break
			}
		}
	}
	if err := s.write(c); err != nil {
		s.logger.Warn().Err(err).Uint64("event_id", ev.ID).Msg("write failed")
	}
}

func (s *changeStreamer) write(c change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if c.Type == "initial" {
		c.Position = s.position
		s.position++
		c.FeedSize = len(s.feed.Snapshot().Conversations)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(s.out, string(data)); err != nil {
		s.writeErr = err
		return err
	}
	return nil
}

func (s *changeStreamer) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}

