package db

import (
	"context"
	"errors"
	"testing"

	"github.com/tOgg1/convo/internal/models"
)

func TestAccountRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAccountRepository(db)
	ctx := context.Background()

	zed := &models.Account{
		Instance:   "example.social",
		Handle:     "@Zed@example.social",
		OAuthToken: "token-zed",
	}
	alice := &models.Account{
		Instance:    "other.social",
		Handle:      "alice@other.social",
		DisplayName: "Alice",
	}

	if err := repo.Create(ctx, zed); err != nil {
		t.Fatalf("Create zed failed: %v", err)
	}
	if err := repo.Create(ctx, alice); err != nil {
		t.Fatalf("Create alice failed: %v", err)
	}
	if zed.ID == "" || alice.ID == "" {
		t.Fatal("expected ids to be assigned")
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(all))
	}
	if all[0].Handle != "alice@other.social" || all[1].Handle != "zed@example.social" {
		t.Fatalf("expected accounts ordered by handle, got %s, %s", all[0].Handle, all[1].Handle)
	}
	if all[1].OAuthToken != "token-zed" {
		t.Fatalf("expected token to round-trip, got %q", all[1].OAuthToken)
	}
	if all[0].HasToken() {
		t.Fatal("expected alice to have no token")
	}
}

func TestAccountRepository_CreateDuplicateHandle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAccountRepository(db)
	ctx := context.Background()

	first := &models.Account{Instance: "example.social", Handle: "alice@example.social"}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dup := &models.Account{Instance: "example.social", Handle: "ALICE@example.social"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrAccountAlreadyExists) {
		t.Fatalf("expected ErrAccountAlreadyExists, got %v", err)
	}
}

func TestAccountRepository_CreateInvalid(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAccountRepository(db)
	err := repo.Create(context.Background(), &models.Account{Handle: "nohost"})
	if !errors.Is(err, models.ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}
}

func TestAccountRepository_GetUpdateDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAccountRepository(db)
	ctx := context.Background()

	account := &models.Account{Instance: "example.social", Handle: "bob@example.social"}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.Get(ctx, account.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Handle != "bob@example.social" {
		t.Fatalf("unexpected handle %q", got.Handle)
	}

	byHandle, err := repo.GetByHandle(ctx, "@Bob@example.social")
	if err != nil {
		t.Fatalf("GetByHandle failed: %v", err)
	}
	if byHandle.ID != account.ID {
		t.Fatalf("GetByHandle returned %s, want %s", byHandle.ID, account.ID)
	}

	got.OAuthToken = "fresh"
	got.DisplayName = "Bob"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	updated, err := repo.Get(ctx, account.ID)
	if err != nil {
		t.Fatalf("Get after update failed: %v", err)
	}
	if updated.OAuthToken != "fresh" || updated.DisplayName != "Bob" {
		t.Fatalf("update not persisted: %+v", updated)
	}

	if err := repo.Delete(ctx, account.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, account.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, account.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound on second delete, got %v", err)
	}
}

func TestAccountRepository_UpdateMissing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAccountRepository(db)
	err := repo.Update(context.Background(), &models.Account{
		ID:       "missing",
		Instance: "example.social",
		Handle:   "ghost@example.social",
	})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
