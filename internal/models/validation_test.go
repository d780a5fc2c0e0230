package models

import (
	"errors"
	"testing"
	"time"
)

func TestAccountValidate(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		wantErr error
	}{
		{
			name:    "valid",
			account: Account{Instance: "mastodon.social", Handle: "alice@mastodon.social"},
		},
		{
			name:    "missing instance",
			account: Account{Handle: "alice@mastodon.social"},
			wantErr: ErrInvalidInstance,
		},
		{
			name:    "bare username",
			account: Account{Instance: "mastodon.social", Handle: "alice"},
			wantErr: ErrInvalidHandle,
		},
		{
			name:    "double at",
			account: Account{Instance: "mastodon.social", Handle: "alice@a@b"},
			wantErr: ErrInvalidHandle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidationErrorsJoinsMessages(t *testing.T) {
	validation := &ValidationErrors{}
	validation.Add("instance", ErrInvalidInstance)
	validation.Add("handle", ErrInvalidHandle)

	err := validation.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	want := "instance: instance is required; handle: handle must look like user@host"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestValidationErrorsEmptyIsNil(t *testing.T) {
	validation := &ValidationErrors{}
	if err := validation.Err(); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestNormalizeHandle(t *testing.T) {
	if got := NormalizeHandle("  @Alice@Mastodon.Social "); got != "alice@mastodon.social" {
		t.Fatalf("unexpected handle %q", got)
	}
}

func TestConversationCloneIsDeep(t *testing.T) {
	original := Conversation{
		ID:         "1",
		Accounts:   []RemoteAccount{{Acct: "bob"}},
		LastStatus: &Status{ID: "s1", Content: "hi", CreatedAt: time.Now()},
	}
	clone := original.Clone()
	clone.Accounts[0].Acct = "mallory"
	clone.LastStatus.Content = "changed"

	if original.Accounts[0].Acct != "bob" {
		t.Fatalf("clone shares accounts slice")
	}
	if original.LastStatus.Content != "hi" {
		t.Fatalf("clone shares last status")
	}
}

func TestPlaceholderConversationsHaveUniqueIDs(t *testing.T) {
	seen := make(map[string]struct{})
	for _, c := range PlaceholderConversations(40) {
		if _, ok := seen[c.ID]; ok {
			t.Fatalf("duplicate placeholder id %s", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
}
