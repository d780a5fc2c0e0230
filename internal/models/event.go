package models

import "time"

// EventKind categorizes stream events.
type EventKind string

const (
	// EventKindConversation carries a new or updated conversation.
	EventKindConversation EventKind = "conversation"
	// EventKindNotification signals a new notification for the streaming account.
	EventKindNotification EventKind = "notification"
	// EventKindDelete carries the id of a deleted status.
	EventKindDelete EventKind = "delete"
)

// StreamEvent is a single live update delivered by the event watcher.
type StreamEvent struct {
	// ID is assigned by the watcher and strictly increases per watcher.
	ID uint64 `json:"id"`

	// Kind is the event type.
	Kind EventKind `json:"kind"`

	// AccountID is the local account the stream belongs to.
	AccountID string `json:"account_id,omitempty"`

	// Conversation is set for conversation events.
	Conversation *Conversation `json:"conversation,omitempty"`

	// StatusID is set for delete events.
	StatusID string `json:"status_id,omitempty"`

	// ReceivedAt is when the watcher received the frame.
	ReceivedAt time.Time `json:"received_at"`
}
