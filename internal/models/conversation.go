package models

import (
	"fmt"
	"time"
)

// RemoteAccount is the server's view of an account appearing in a conversation.
type RemoteAccount struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}

// Status is a single post. Only the fields the inbox renders are decoded.
type Status struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	CreatedAt  time.Time     `json:"created_at"`
	Account    RemoteAccount `json:"account"`
	Visibility string        `json:"visibility,omitempty"`
}

// Conversation is a direct-message thread.
type Conversation struct {
	ID         string          `json:"id"`
	Unread     bool            `json:"unread"`
	Accounts   []RemoteAccount `json:"accounts"`
	LastStatus *Status         `json:"last_status,omitempty"`
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Accounts != nil {
		out.Accounts = make([]RemoteAccount, len(c.Accounts))
		copy(out.Accounts, c.Accounts)
	}
	if c.LastStatus != nil {
		status := *c.LastStatus
		out.LastStatus = &status
	}
	return out
}

// LastActivity returns the time of the latest status, or zero.
func (c Conversation) LastActivity() time.Time {
	if c.LastStatus == nil {
		return time.Time{}
	}
	return c.LastStatus.CreatedAt
}

// PlaceholderConversations returns stand-in rows shown while the first page loads.
func PlaceholderConversations(n int) []Conversation {
	out := make([]Conversation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Conversation{
			ID: fmt.Sprintf("placeholder-%d", i),
			Accounts: []RemoteAccount{{
				Acct:        "loading",
				DisplayName: "Loading...",
			}},
			LastStatus: &Status{Content: "..."},
		})
	}
	return out
}
