package db

import (
	"context"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:           filepath.Join(t.TempDir(), "convo.db"),
		MaxConnections: 2,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}
