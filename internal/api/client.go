// Package api is a minimal client for the conversations API of a
// Mastodon-compatible server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	"github.com/tOgg1/convo/internal/logging"
	"github.com/tOgg1/convo/internal/models"
)

const (
	defaultTimeout           = 15 * time.Second
	defaultRequestsPerSecond = 5
	defaultUserAgent         = "convo/dev"
	maxErrorBody             = 4 << 10
)

// Config configures a Client.
type Config struct {
	// Instance is the server host or base URL (https:// is assumed).
	Instance string
	// Token is the OAuth bearer token. Empty yields an unauthenticated client.
	Token string
	// Timeout bounds a single request.
	Timeout time.Duration
	// RequestsPerSecond caps outgoing calls.
	RequestsPerSecond int
	// UserAgent is sent with every request.
	UserAgent string
	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// Client talks to one account on one instance.
type Client struct {
	baseURL   *url.URL
	token     string
	userAgent string
	http      *http.Client
	limiter   ratelimit.Limiter
	logger    zerolog.Logger
}

// Page is one page of conversations and the cursor for the next one.
type Page struct {
	Conversations []models.Conversation
	// NextCursor is empty when no further pages exist.
	NextCursor string
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	base, err := ParseInstance(cfg.Instance)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:   base,
		token:     strings.TrimSpace(cfg.Token),
		userAgent: userAgent,
		http:      httpClient,
		limiter:   ratelimit.New(rps),
		logger:    logging.Component("api").With().Str("instance", base.Host).Logger(),
	}, nil
}

// ParseInstance turns "example.social" or "https://example.social/" into a base URL.
func ParseInstance(instance string) (*url.URL, error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return nil, fmt.Errorf("instance required")
	}
	if !strings.Contains(instance, "://") {
		instance = "https://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return nil, fmt.Errorf("invalid instance %q: %w", instance, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid instance %q: missing host", instance)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

// IsAuth reports whether the client carries a token.
func (c *Client) IsAuth() bool {
	return c.token != ""
}

// BaseURL returns the instance base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Token returns the bearer token.
func (c *Client) Token() string {
	return c.token
}

// Conversations fetches one page of conversations. An empty maxID requests the first page.
func (c *Client) Conversations(ctx context.Context, maxID string, limit int) (Page, error) {
	query := url.Values{}
	if maxID != "" {
		query.Set("max_id", maxID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var conversations []models.Conversation
	resp, err := c.do(ctx, "conversations", http.MethodGet, "/api/v1/conversations", query, &conversations)
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Conversations: conversations,
		NextCursor:    NextMaxID(resp.Header.Get("Link")),
	}
	c.logger.Debug().
		Str("max_id", maxID).
		Int("count", len(conversations)).
		Str("next", page.NextCursor).
		Msg("fetched conversations page")
	return page, nil
}

// MarkConversationRead marks a conversation as read and returns the updated copy.
func (c *Client) MarkConversationRead(ctx context.Context, id string) (models.Conversation, error) {
	var conversation models.Conversation
	path := "/api/v1/conversations/" + url.PathEscape(id) + "/read"
	if _, err := c.do(ctx, "mark_read", http.MethodPost, path, nil, &conversation); err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

// DeleteConversation removes a conversation from the inbox.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	path := "/api/v1/conversations/" + url.PathEscape(id)
	_, err := c.do(ctx, "delete_conversation", http.MethodDelete, path, nil, nil)
	return err
}

// VerifyCredentials returns the account the token belongs to.
func (c *Client) VerifyCredentials(ctx context.Context) (models.RemoteAccount, error) {
	var account models.RemoteAccount
	if _, err := c.do(ctx, "verify_credentials", http.MethodGet, "/api/v1/accounts/verify_credentials", nil, &account); err != nil {
		return models.RemoteAccount{}, err
	}
	return account, nil
}

// FollowRequests returns accounts waiting for follow approval.
func (c *Client) FollowRequests(ctx context.Context) ([]models.RemoteAccount, error) {
	var accounts []models.RemoteAccount
	if _, err := c.do(ctx, "follow_requests", http.MethodGet, "/api/v1/follow_requests", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, out any) (*http.Response, error) {
	if !c.IsAuth() {
		return nil, &NetworkError{Op: op, Err: ErrUnauthenticated}
	}

	u := c.BaseURL()
	u.Path += path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	if err := c.wait(ctx); err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{Op: op, Status: resp.StatusCode, Err: errors.New(readErrorBody(resp.Body))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, &NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return resp, nil
}

// wait blocks for a rate-limiter slot or until ctx is done. An abandoned
// Take still consumes its slot when it returns.
func (c *Client) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	taken := make(chan struct{})
	go func() {
		c.limiter.Take()
		close(taken)
	}()
	select {
	case <-taken:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func readErrorBody(body io.Reader) string {
	payload, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "empty response"
	}
	return text
}
