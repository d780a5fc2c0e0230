package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/tOgg1/convo/internal/account"
	"github.com/tOgg1/convo/internal/api"
	"github.com/tOgg1/convo/internal/config"
	"github.com/tOgg1/convo/internal/db"
	"github.com/tOgg1/convo/internal/feed"
	"github.com/tOgg1/convo/internal/models"
	"github.com/tOgg1/convo/internal/prefs"
)

// environment bundles the local stores every command works against.
type environment struct {
	cfg      *config.Config
	db       *db.DB
	accounts *db.AccountRepository
	prefs    *prefs.Store
	current  *account.CurrentAccount
}

func openEnvironment(ctx context.Context) (*environment, error) {
	cfg := GetConfig()

	database, err := db.Open(ctx, db.Config{
		Path:           cfg.DatabasePath(),
		MaxConnections: cfg.Database.MaxConnections,
		BusyTimeoutMs:  cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, err
	}

	store := prefs.New(cfg.PreferencesPath())
	if err := store.Load(); err != nil {
		_ = database.Close()
		return nil, err
	}

	repo := db.NewAccountRepository(database)
	current, err := account.NewCurrentAccount(ctx, repo, config.NewContextStore(cfg.ContextPath()))
	if err != nil {
		_ = store.Close()
		_ = database.Close()
		return nil, err
	}

	return &environment{
		cfg:      cfg,
		db:       database,
		accounts: repo,
		prefs:    store,
		current:  current,
	}, nil
}

func (e *environment) Close() error {
	return errors.Join(e.prefs.Close(), e.db.Close())
}

func (e *environment) newSelector() (*account.Selector, error) {
	return account.NewSelector(e.accounts, e.current, e.prefs, account.Options{
		AccountCreationEnabled: e.cfg.TUI.AccountCreationEnabled,
		FollowRequests:         e.followRequests,
	})
}

func (e *environment) followRequests(ctx context.Context, acct *models.Account) (int, error) {
	client, err := e.newClient(acct)
	if err != nil {
		return 0, err
	}
	requests, err := client.FollowRequests(ctx)
	if err != nil {
		return 0, err
	}
	return len(requests), nil
}

func (e *environment) newClient(acct *models.Account) (*api.Client, error) {
	return api.New(api.Config{
		Instance:          acct.Instance,
		Token:             acct.OAuthToken,
		Timeout:           e.cfg.Client.Timeout,
		RequestsPerSecond: e.cfg.Client.RequestsPerSecond,
		UserAgent:         e.cfg.Client.UserAgent,
	})
}

func (e *environment) newFeed(acct *models.Account, pageSize int) (*feed.Feed, *api.Client, error) {
	client, err := e.newClient(acct)
	if err != nil {
		return nil, nil, err
	}
	if pageSize <= 0 {
		pageSize = e.cfg.Client.PageSize
	}
	return feed.New(client, feed.Options{PageSize: pageSize}), client, nil
}

// resolveAccount finds an account by handle or id, falling back to the active one.
func (e *environment) resolveAccount(ctx context.Context, ref string) (*models.Account, error) {
	if ref == "" {
		acct, err := e.current.Account(ctx)
		if err != nil {
			return nil, err
		}
		if acct == nil {
			return nil, fmt.Errorf("no active account; run `convo accounts add` or `convo accounts use`")
		}
		return acct, nil
	}

	acct, err := e.accounts.GetByHandle(ctx, ref)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, db.ErrAccountNotFound) {
		return nil, err
	}
	acct, err = e.accounts.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, db.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", account.ErrAccountNotRegistered, ref)
		}
		return nil, err
	}
	return acct, nil
}
