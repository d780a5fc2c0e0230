package feed

import (
	"github.com/google/uuid"

	"github.com/tOgg1/convo/internal/events"
	"github.com/tOgg1/convo/internal/models"
)

// Attach subscribes the feed to conversation events for accountID. An empty
// accountID accepts events from every stream. The returned func detaches it.
func (f *Feed) Attach(publisher events.Publisher, accountID string) (func(), error) {
	id := "feed-" + uuid.NewString()
	filter := events.Filter{
		Kinds:     []models.EventKind{models.EventKindConversation},
		AccountID: accountID,
	}
	if err := publisher.Subscribe(id, filter, func(ev *models.StreamEvent) {
		f.ApplyLiveEvent(ev)
	}); err != nil {
		return nil, err
	}
	return func() { _ = publisher.Unsubscribe(id) }, nil
}
