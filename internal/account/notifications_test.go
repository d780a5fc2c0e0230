package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/convo/internal/events"
	"github.com/tOgg1/convo/internal/models"
	"github.com/tOgg1/convo/internal/prefs"
	"github.com/tOgg1/convo/internal/stream"
)

func TestSelector_BackgroundNotificationLightsBadge(t *testing.T) {
	registry := &staticRegistry{accounts: []*models.Account{
		testAccount("a", "alice@example.social", "tok-a"),
		testAccount("b", "bob@example.social", "tok-b"),
	}}
	current, err := NewCurrentAccount(context.Background(), registry, nil)
	require.NoError(t, err)
	require.NoError(t, current.Set(context.Background(), "a"))

	store := prefs.New("")
	s := newTestSelector(t, registry, current, store, Options{AccountCreationEnabled: true})
	require.NoError(t, s.Refresh(context.Background()))
	require.False(t, s.ShowBadge())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Watch(ctx) }()

	publisher := events.NewInMemoryPublisher()
	counter := s.RefreshingCounter(store)
	untrackA, err := stream.TrackNotifications(publisher, counter, "a", "tok-a")
	require.NoError(t, err)
	defer untrackA()
	untrackB, err := stream.TrackNotifications(publisher, counter, "b", "tok-b")
	require.NoError(t, err)
	defer untrackB()

	// A notification for the active account never lights the badge.
	publisher.Publish(&models.StreamEvent{ID: 1, Kind: models.EventKindNotification, AccountID: "a"})
	require.Eventually(t, func() bool { return store.NotificationCount("tok-a") == 1 }, time.Second, 5*time.Millisecond)
	require.Never(t, s.ShowBadge, 50*time.Millisecond, 5*time.Millisecond)

	publisher.Publish(&models.StreamEvent{ID: 1, Kind: models.EventKindNotification, AccountID: "b"})
	require.Eventually(t, s.ShowBadge, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, s.NotificationCount())

	rows := s.Snapshot()
	require.Equal(t, "bob@example.social", rows[1].Account.Handle)
	require.True(t, rows[1].ShowBadge)
	require.False(t, rows[0].ShowBadge)
}

func TestSelector_CountsChangedCoalesces(t *testing.T) {
	registry, current, store := fixture(t)
	s := newTestSelector(t, registry, current, store, Options{AccountCreationEnabled: true})

	s.CountsChanged()
	s.CountsChanged()
	s.CountsChanged()
	require.Len(t, s.countsChanged, 1)
}
