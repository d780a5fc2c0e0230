package account

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tOgg1/convo/internal/config"
	"github.com/tOgg1/convo/internal/models"
)

// ErrAccountNotRegistered is returned when selecting an account the registry does not know.
var ErrAccountNotRegistered = errors.New("account is not registered")

// Registry lists locally registered accounts.
type Registry interface {
	List(ctx context.Context) ([]*models.Account, error)
}

// ContextPersister loads and saves the active-account context.
type ContextPersister interface {
	Load() (*config.Context, error)
	Save(ctx *config.Context) error
}

// CurrentAccount holds the active account. The active account, when set, is
// always a member of the registry.
type CurrentAccount struct {
	registry Registry
	store    ContextPersister

	mu       sync.RWMutex
	id       string
	handle   string
	watchers map[int]chan string
	nextID   int
}

// NewCurrentAccount restores the active account from store. A persisted id the
// registry no longer knows is dropped. store may be nil.
func NewCurrentAccount(ctx context.Context, registry Registry, store ContextPersister) (*CurrentAccount, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	c := &CurrentAccount{
		registry: registry,
		store:    store,
		watchers: make(map[int]chan string),
	}
	if store == nil {
		return c, nil
	}

	saved, err := store.Load()
	if err != nil {
		return nil, err
	}
	if saved.IsEmpty() {
		return c, nil
	}
	account, err := c.lookup(ctx, saved.AccountID)
	if errors.Is(err, ErrAccountNotRegistered) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	c.id = account.ID
	c.handle = account.Handle
	return c, nil
}

// ID returns the active account id, or "" when none is selected.
func (c *CurrentAccount) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Handle returns the active account handle.
func (c *CurrentAccount) Handle() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle
}

// Account returns the active account from the registry, or nil.
func (c *CurrentAccount) Account(ctx context.Context) (*models.Account, error) {
	id := c.ID()
	if id == "" {
		return nil, nil
	}
	return c.lookup(ctx, id)
}

// Set makes id the active account.
func (c *CurrentAccount) Set(ctx context.Context, id string) error {
	account, err := c.lookup(ctx, id)
	if err != nil {
		return err
	}
	return c.apply(account.ID, account.Handle)
}

// Clear deselects the active account.
func (c *CurrentAccount) Clear() error {
	return c.apply("", "")
}

func (c *CurrentAccount) apply(id, handle string) error {
	c.mu.Lock()
	changed := c.id != id
	c.id = id
	c.handle = handle
	watchers := make([]chan string, 0, len(c.watchers))
	for _, ch := range c.watchers {
		watchers = append(watchers, ch)
	}
	c.mu.Unlock()

	if c.store != nil {
		saved := &config.Context{}
		if id == "" {
			saved.Clear()
		} else {
			saved.SetAccount(id, handle)
		}
		if err := c.store.Save(saved); err != nil {
			return err
		}
	}

	if !changed {
		return nil
	}
	for _, ch := range watchers {
		// Coalesce: a watcher that has not caught up only needs the latest id.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- id:
		default:
		}
	}
	return nil
}

// Changes returns a channel receiving the new active id after every change.
// Pending values are coalesced. The returned func stops delivery.
func (c *CurrentAccount) Changes() (<-chan string, func()) {
	ch := make(chan string, 1)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

func (c *CurrentAccount) lookup(ctx context.Context, id string) (*models.Account, error) {
	if id == "" {
		return nil, ErrAccountNotRegistered
	}
	accounts, err := c.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	for _, account := range accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAccountNotRegistered, id)
}
