package models

import (
	"errors"
	"strings"
	"time"
)

// Account validation errors.
var (
	ErrInvalidInstance = errors.New("instance is required")
	ErrInvalidHandle   = errors.New("handle must look like user@host")
)

// Account is a locally registered identity on a remote instance.
type Account struct {
	// ID is the unique identifier for the account.
	ID string `json:"id"`

	// Instance is the server host the account lives on (e.g. mastodon.social).
	Instance string `json:"instance"`

	// RemoteID is the account id assigned by the server.
	RemoteID string `json:"remote_id,omitempty"`

	// Handle is the fully qualified handle (user@host).
	Handle string `json:"handle"`

	// DisplayName is the human-friendly name for this account.
	DisplayName string `json:"display_name,omitempty"`

	// AvatarURL points to the account avatar.
	AvatarURL string `json:"avatar_url,omitempty"`

	// OAuthToken is the bearer token. Empty means the account is signed out.
	OAuthToken string `json:"-"`

	// CreatedAt is when the account was added.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the account was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the account is well formed.
func (a *Account) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(a.Instance) == "" {
		validation.Add("instance", ErrInvalidInstance)
	}
	user, host, ok := strings.Cut(a.Handle, "@")
	if !ok || user == "" || host == "" || strings.Contains(host, "@") {
		validation.Add("handle", ErrInvalidHandle)
	}
	return validation.Err()
}

// HasToken reports whether the account holds an auth token.
func (a *Account) HasToken() bool {
	return a != nil && strings.TrimSpace(a.OAuthToken) != ""
}

// Username returns the local part of the handle.
func (a *Account) Username() string {
	user, _, _ := strings.Cut(a.Handle, "@")
	return user
}

// NormalizeHandle lowercases and strips a leading "@" from a handle.
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")
	return strings.ToLower(handle)
}
