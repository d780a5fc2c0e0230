package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/convo/internal/models"
)

// Account repository errors.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account with this handle already exists")
)

const accountColumns = `id, instance, remote_id, handle, display_name, avatar_url, oauth_token, created_at, updated_at`

// AccountRepository is the local account registry.
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create registers a new account.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	account.Handle = models.NormalizeHandle(account.Handle)
	if err := account.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	err := r.db.TransactionWithRetry(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (`+accountColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			account.ID,
			account.Instance,
			nullString(account.RemoteID),
			account.Handle,
			nullString(account.DisplayName),
			nullString(account.AvatarURL),
			nullString(account.OAuthToken),
			account.CreatedAt.Format(time.RFC3339Nano),
			account.UpdatedAt.Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

// Get retrieves an account by ID.
func (r *AccountRepository) Get(ctx context.Context, id string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return r.scanAccount(row)
}

// GetByHandle retrieves an account by its handle.
func (r *AccountRepository) GetByHandle(ctx context.Context, handle string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE handle = ?`, models.NormalizeHandle(handle))
	return r.scanAccount(row)
}

// List retrieves all accounts ordered by handle.
func (r *AccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY handle`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := r.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// Update persists changes to an existing account.
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	account.Handle = models.NormalizeHandle(account.Handle)
	if err := account.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	account.UpdatedAt = time.Now().UTC()

	var affected int64
	err := r.db.TransactionWithRetry(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE accounts SET
				instance = ?, remote_id = ?, handle = ?, display_name = ?,
				avatar_url = ?, oauth_token = ?, updated_at = ?
			WHERE id = ?
		`,
			account.Instance,
			nullString(account.RemoteID),
			account.Handle,
			nullString(account.DisplayName),
			nullString(account.AvatarURL),
			nullString(account.OAuthToken),
			account.UpdatedAt.Format(time.RFC3339Nano),
			account.ID,
		)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Delete removes an account by ID.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AccountRepository) scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var remoteID, displayName, avatarURL, token sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&account.ID,
		&account.Instance,
		&remoteID,
		&account.Handle,
		&displayName,
		&avatarURL,
		&token,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	account.RemoteID = remoteID.String
	account.DisplayName = displayName.String
	account.AvatarURL = avatarURL.String
	account.OAuthToken = token.String

	if account.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if account.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &account, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
