package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tOgg1/convo/internal/models"
)

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		event  *models.StreamEvent
		want   bool
	}{
		{
			name:   "empty filter matches any event",
			filter: Filter{},
			event:  &models.StreamEvent{Kind: models.EventKindConversation, AccountID: "acc-1"},
			want:   true,
		},
		{
			name:   "nil event returns false",
			filter: Filter{},
			event:  nil,
			want:   false,
		},
		{
			name:   "kind filter matches",
			filter: Filter{Kinds: []models.EventKind{models.EventKindConversation}},
			event:  &models.StreamEvent{Kind: models.EventKindConversation},
			want:   true,
		},
		{
			name:   "kind filter rejects non-matching",
			filter: Filter{Kinds: []models.EventKind{models.EventKindConversation}},
			event:  &models.StreamEvent{Kind: models.EventKindNotification},
			want:   false,
		},
		{
			name: "multiple kinds - matches any",
			filter: Filter{Kinds: []models.EventKind{
				models.EventKindConversation,
				models.EventKindNotification,
			}},
			event: &models.StreamEvent{Kind: models.EventKindNotification},
			want:  true,
		},
		{
			name:   "account filter matches",
			filter: Filter{AccountID: "acc-1"},
			event:  &models.StreamEvent{Kind: models.EventKindConversation, AccountID: "acc-1"},
			want:   true,
		},
		{
			name:   "account filter rejects other account",
			filter: Filter{AccountID: "acc-1"},
			event:  &models.StreamEvent{Kind: models.EventKindConversation, AccountID: "acc-2"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.event); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInMemoryPublisher_Subscribe(t *testing.T) {
	p := NewInMemoryPublisher()
	noop := func(*models.StreamEvent) {}

	if err := p.Subscribe("", Filter{}, noop); err != ErrInvalidSubscriptionID {
		t.Fatalf("expected ErrInvalidSubscriptionID, got %v", err)
	}
	if err := p.Subscribe("a", Filter{}, nil); err != ErrNilHandler {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
	if err := p.Subscribe("a", Filter{}, noop); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := p.Subscribe("a", Filter{}, noop); err != ErrSubscriptionExists {
		t.Fatalf("expected ErrSubscriptionExists, got %v", err)
	}
	if p.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", p.SubscriberCount())
	}
}

func TestInMemoryPublisher_Unsubscribe(t *testing.T) {
	p := NewInMemoryPublisher()
	_ = p.Subscribe("a", Filter{}, func(*models.StreamEvent) {})

	if err := p.Unsubscribe("a"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := p.Unsubscribe("a"); err != ErrSubscriptionNotFound {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
	if p.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", p.SubscriberCount())
	}
}

func TestInMemoryPublisher_PublishInSubscriptionOrder(t *testing.T) {
	p := NewInMemoryPublisher()
	var got []string

	for _, id := range []string{"feed", "selector", "printer"} {
		id := id
		_ = p.Subscribe(id, Filter{}, func(*models.StreamEvent) {
			got = append(got, id)
		})
	}

	p.Publish(&models.StreamEvent{ID: 1, Kind: models.EventKindConversation})

	want := []string{"feed", "selector", "printer"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("delivery order = %v, want %v", got, want)
	}
}

func TestInMemoryPublisher_PublishWithFilter(t *testing.T) {
	p := NewInMemoryPublisher()
	var conversations, notifications int

	_ = p.Subscribe("conv", Filter{Kinds: []models.EventKind{models.EventKindConversation}}, func(*models.StreamEvent) {
		conversations++
	})
	_ = p.Subscribe("notif", Filter{Kinds: []models.EventKind{models.EventKindNotification}}, func(*models.StreamEvent) {
		notifications++
	})

	p.Publish(&models.StreamEvent{Kind: models.EventKindConversation})
	p.Publish(&models.StreamEvent{Kind: models.EventKindConversation})
	p.Publish(&models.StreamEvent{Kind: models.EventKindNotification})
	p.Publish(nil)

	if conversations != 2 || notifications != 1 {
		t.Fatalf("conversations=%d notifications=%d", conversations, notifications)
	}
}

func TestInMemoryPublisher_HandlerMayUnsubscribe(t *testing.T) {
	p := NewInMemoryPublisher()
	calls := 0
	_ = p.Subscribe("once", Filter{}, func(*models.StreamEvent) {
		calls++
		_ = p.Unsubscribe("once")
	})

	p.Publish(&models.StreamEvent{ID: 1})
	p.Publish(&models.StreamEvent{ID: 2})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestInMemoryPublisher_Close(t *testing.T) {
	p := NewInMemoryPublisher()
	_ = p.Subscribe("a", Filter{}, func(*models.StreamEvent) {})
	_ = p.Subscribe("b", Filter{}, func(*models.StreamEvent) {})

	p.Close()
	if p.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after Close, got %d", p.SubscriberCount())
	}
}

func TestInMemoryPublisher_ConcurrentAccess(t *testing.T) {
	p := NewInMemoryPublisher()
	var received int64
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sub-%d", i)
			_ = p.Subscribe(id, Filter{}, func(*models.StreamEvent) {
				atomic.AddInt64(&received, 1)
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Publish(&models.StreamEvent{ID: uint64(i)})
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&received); got != 100 {
		t.Fatalf("expected 100 deliveries, got %d", got)
	}
}
