package stream

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tOgg1/convo/internal/events"
	"github.com/tOgg1/convo/internal/models"
)

// NotificationIncrementer records one more unread notification for a token.
type NotificationIncrementer interface {
	IncrementNotificationCount(token string) int
}

// TrackNotifications bumps the unread count of token for every notification
// event published for accountID. The returned func removes the subscription.
func TrackNotifications(publisher events.Publisher, counter NotificationIncrementer, accountID, token string) (func(), error) {
	if publisher == nil || counter == nil {
		return nil, fmt.Errorf("publisher and counter required")
	}
	if token == "" {
		return nil, fmt.Errorf("token required")
	}

	id := "notifications-" + uuid.NewString()
	filter := events.Filter{
		Kinds:     []models.EventKind{models.EventKindNotification},
		AccountID: accountID,
	}
	err := publisher.Subscribe(id, filter, func(*models.StreamEvent) {
		counter.IncrementNotificationCount(token)
	})
	if err != nil {
		return nil, err
	}

	return func() { _ = publisher.Unsubscribe(id) }, nil
}
