package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/convo/internal/models"
	"github.com/tOgg1/convo/internal/testutil"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	testutil.SkipIfNoNetwork(t)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		Instance:          server.URL,
		Token:             "test-token",
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	return client
}

func TestConversationsParsesPageAndCursor(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/conversations", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.Equal(t, "105", r.URL.Query().Get("max_id"))
		require.Equal(t, "20", r.URL.Query().Get("limit"))

		w.Header().Set("Link", `<https://example.social/api/v1/conversations?max_id=90>; rel="next", <https://example.social/api/v1/conversations?min_id=110>; rel="prev"`)
		_ = json.NewEncoder(w).Encode([]models.Conversation{
			{ID: "100", Unread: true, LastStatus: &models.Status{ID: "s1", CreatedAt: time.Now().UTC()}},
			{ID: "95"},
		})
	}))

	page, err := client.Conversations(context.Background(), "105", 20)
	require.NoError(t, err)
	require.Len(t, page.Conversations, 2)
	require.Equal(t, "100", page.Conversations[0].ID)
	require.True(t, page.Conversations[0].Unread)
	require.Equal(t, "90", page.NextCursor)
}

func TestConversationsLastPageHasNoCursor(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.URL.Query().Get("max_id"))
		_, _ = w.Write([]byte(`[]`))
	}))

	page, err := client.Conversations(context.Background(), "", 0)
	require.NoError(t, err)
	require.Empty(t, page.Conversations)
	require.Empty(t, page.NextCursor)
}

func TestServerErrorIsNetworkError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"The access token is invalid"}`))
	}))

	_, err := client.Conversations(context.Background(), "", 20)
	require.Error(t, err)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, "conversations", netErr.Op)
	require.Equal(t, http.StatusUnauthorized, netErr.Status)
	require.True(t, netErr.IsAuthFailure())
	require.Contains(t, err.Error(), "The access token is invalid")
}

func TestTransportErrorIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := New(Config{Instance: url, Token: "t", RequestsPerSecond: 1000})
	require.NoError(t, err)

	_, err = client.Conversations(context.Background(), "", 20)
	require.True(t, IsNetworkError(err))
}

func TestUnauthenticatedClientFailsWithoutRequest(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{Instance: server.URL, RequestsPerSecond: 1000})
	require.NoError(t, err)
	require.False(t, client.IsAuth())

	_, err = client.Conversations(context.Background(), "", 20)
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.Zero(t, calls)
}

func TestMarkReadAndDelete(t *testing.T) {
	var seen []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(models.Conversation{ID: "7", Unread: false})
		case http.MethodDelete:
			_, _ = w.Write([]byte(`{}`))
		}
	}))

	conversation, err := client.MarkConversationRead(context.Background(), "7")
	require.NoError(t, err)
	require.Equal(t, "7", conversation.ID)
	require.False(t, conversation.Unread)

	require.NoError(t, client.DeleteConversation(context.Background(), "7"))
	require.Equal(t, []string{
		"POST /api/v1/conversations/7/read",
		"DELETE /api/v1/conversations/7",
	}, seen)
}

func TestVerifyCredentialsAndFollowRequests(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/accounts/verify_credentials":
			_ = json.NewEncoder(w).Encode(models.RemoteAccount{ID: "1", Username: "alice", Acct: "alice"})
		case "/api/v1/follow_requests":
			_ = json.NewEncoder(w).Encode([]models.RemoteAccount{{ID: "2", Acct: "bob@other.social"}})
		default:
			http.NotFound(w, r)
		}
	}))

	me, err := client.VerifyCredentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "alice", me.Username)

	requests, err := client.FollowRequests(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 1)
}

func TestParseInstance(t *testing.T) {
	u, err := ParseInstance("example.social")
	require.NoError(t, err)
	require.Equal(t, "https://example.social", u.String())

	u, err = ParseInstance("http://127.0.0.1:8080/")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8080", u.String())

	_, err = ParseInstance("  ")
	require.Error(t, err)
}

func TestNextMaxID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"prev only", `<https://x/api/v1/conversations?min_id=5>; rel="prev"`, ""},
		{"next first", `<https://x/api/v1/conversations?max_id=42&limit=20>; rel="next", <https://x/api/v1/conversations?min_id=50>; rel="prev"`, "42"},
		{"next second", `<https://x/api/v1/conversations?min_id=50>; rel="prev", <https://x/api/v1/conversations?max_id=41>; rel="next"`, "41"},
		{"unquoted rel", `<https://x/api/v1/conversations?max_id=7>; rel=next`, "7"},
		{"malformed", `https://x?max_id=1; rel="next"`, ""},
		{"comma in next url", `<https://x/api/v1/conversations?max_id=77&tags=a,b>; rel="next", <https://x/api/v1/conversations?min_id=80>; rel="prev"`, "77"},
		{"comma in prev url", `<https://x/api/v1/conversations?min_id=80&x=1,2>; rel="prev", <https://x/api/v1/conversations?max_id=76>; rel="next"`, "76"},
		{"multiple rel values", `<https://x/api/v1/conversations?max_id=9>; rel="next last"`, "9"},
		{"quoted comma param", `<https://x/api/v1/conversations?max_id=3>; title="a, b"; rel="next"`, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NextMaxID(tt.header))
		})
	}
}

func TestRateLimitWaitHonorsContext(t *testing.T) {
	testutil.SkipIfNoNetwork(t)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{Instance: server.URL, Token: "test-token", RequestsPerSecond: 1})
	require.NoError(t, err)

	_, err = client.Conversations(context.Background(), "", 20)
	require.NoError(t, err)

	// The next slot is about a second away. A cancelled fetch must not wait for it.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	started := time.Now()
	_, err = client.Conversations(ctx, "", 20)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, IsNetworkError(err))
	require.Less(t, time.Since(started), 500*time.Millisecond)
	require.EqualValues(t, 1, calls.Load())

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = client.Conversations(cancelled, "", 20)
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 1, calls.Load())
}
