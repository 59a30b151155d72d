package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flashbots/lay/protocol"
	"github.com/flashbots/lay/relay"
	"github.com/flashbots/lay/storage"
	"github.com/flashbots/lay/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	router := chi.NewRouter()
	relay.NewHandler(relay.New(storage.NewInMemoryStore(), relay.Options{}, nil), relay.HandlerConfig{}).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestRelayClientRoundTrip(t *testing.T) {
	srv := newRelayServer(t)
	ctx := context.Background()
	alice := testutil.NewTestIdentity()
	bob := testutil.NewTestIdentity()

	for _, postQueries := range []bool{false, true} {
		c := NewRelayClient(srv.URL+"/", time.Second)
		c.PostQueries = postQueries

		require.NoError(t, c.SubmitPost(ctx, alice.Post("hello")))
		posts, err := c.QueryPosts(ctx, bob.PostRequest())
		require.NoError(t, err)
		require.NotEmpty(t, posts)
		require.True(t, posts[0].Verify())

		require.NoError(t, c.SubmitProfile(ctx, alice.Profile("Alice")))
		profile, err := c.QueryProfile(ctx, bob.ProfileRequest(alice.Key()))
		require.NoError(t, err)
		require.Equal(t, "Alice", profile.Data.Name)
		require.True(t, profile.Verify())
	}
}

func TestRelayClientDecodesRelayErrors(t *testing.T) {
	srv := newRelayServer(t)
	ctx := context.Background()
	c := NewRelayClient(srv.URL, 0)
	alice := testutil.NewTestIdentity()

	err := c.SubmitPost(ctx, testutil.Corrupt(alice.Post("x")))
	var relayErr *protocol.Error
	require.True(t, errors.As(err, &relayErr))
	require.Equal(t, protocol.CodeFailedVerifySignature, relayErr.Status)

	req := alice.PostRequest()
	_, err = c.QueryPosts(ctx, req)
	require.NoError(t, err)
	_, err = c.QueryPosts(ctx, req)
	require.True(t, errors.As(err, &relayErr))
	require.Equal(t, protocol.CodeImpossibleTimestamp, relayErr.Status)

	_, err = c.QueryProfile(ctx, alice.ProfileRequest("nobody"))
	require.True(t, errors.As(err, &relayErr))
	require.Equal(t, protocol.CodeProfileNotFound, relayErr.Status)
}

func TestRelayClientNonRelayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewRelayClient(srv.URL, time.Second).SubmitPost(context.Background(), testutil.NewTestIdentity().Post("x"))
	require.ErrorContains(t, err, "failed (502)")
	var relayErr *protocol.Error
	require.False(t, errors.As(err, &relayErr))
}

func TestRelayClientTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	_, err := NewRelayClient(srv.URL, 50*time.Millisecond).QueryPosts(context.Background(), testutil.NewTestIdentity().PostRequest())
	require.Error(t, err)
}
