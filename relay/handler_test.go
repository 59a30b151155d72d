package relay

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flashbots/lay/protocol"
	"github.com/flashbots/lay/storage"
	"github.com/flashbots/lay/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg HandlerConfig) *httptest.Server {
	t.Helper()
	router := chi.NewRouter()
	NewHandler(New(storage.NewInMemoryStore(), Options{}, nil), cfg).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func send(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) *protocol.Error {
	t.Helper()
	msg, err := protocol.DecodeMessage[protocol.Error](resp.Body)
	require.NoError(t, err)
	return msg
}

func TestHTTPPostAndQuery(t *testing.T) {
	srv := newTestServer(t, HandlerConfig{})
	alice := testutil.NewTestIdentity()
	bob := testutil.NewTestIdentity()

	resp := send(t, http.MethodPost, srv.URL+"/text", alice.Post("hi bob"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&empty))
	require.Empty(t, empty)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/text"},
		{http.MethodPost, "/text/query"},
	} {
		resp = send(t, route.method, srv.URL+route.path, bob.PostRequest())
		require.Equal(t, http.StatusOK, resp.StatusCode, route.path)

		posts, err := protocol.DecodeMessage[[]*protocol.Signed[protocol.Post]](resp.Body)
		require.NoError(t, err)
		require.Len(t, *posts, 1)
		require.True(t, (*posts)[0].Verify())
		require.Equal(t, "hi bob", (*posts)[0].Data.Content)
	}
}

func TestHTTPEmptyQueryReturnsArray(t *testing.T) {
	srv := newTestServer(t, HandlerConfig{})
	resp := send(t, http.MethodGet, srv.URL+"/text", testutil.NewTestIdentity().PostRequest())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	require.Equal(t, "[]", string(raw))
}

func TestHTTPProfileFlow(t *testing.T) {
	srv := newTestServer(t, HandlerConfig{})
	carol := testutil.NewTestIdentity()
	reader := testutil.NewTestIdentity()

	resp := send(t, http.MethodGet, srv.URL+"/profile", reader.ProfileRequest(carol.Key()))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	wireErr := decodeError(t, resp)
	require.Equal(t, protocol.CodeProfileNotFound, wireErr.Status)
	require.Equal(t, carol.Key(), wireErr.Details["targetKey"])

	resp = send(t, http.MethodPost, srv.URL+"/profile", carol.Profile("Carol"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = send(t, http.MethodPost, srv.URL+"/profile/query", reader.ProfileRequest(carol.Key()))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile, err := protocol.DecodeMessage[protocol.Signed[protocol.Profile]](resp.Body)
	require.NoError(t, err)
	require.Equal(t, "Carol", profile.Data.Name)
	require.True(t, profile.Verify())
}

func TestHTTPErrors(t *testing.T) {
	srv := newTestServer(t, HandlerConfig{MaxBodyBytes: 512})
	alice := testutil.NewTestIdentity()

	replayed := alice.PostRequest()
	resp := send(t, http.MethodGet, srv.URL+"/text", replayed)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   protocol.ErrorCode
	}{
		{"bad signature", http.MethodPost, "/text", testutil.Corrupt(alice.Post("x")), protocol.CodeFailedVerifySignature},
		{"replayed query", http.MethodGet, "/text", replayed, protocol.CodeImpossibleTimestamp},
		{"not json", http.MethodPost, "/text", "not json", protocol.CodeMalformedEnvelope},
		{"wrong field type", http.MethodPost, "/profile", `{"key": 1}`, protocol.CodeMalformedEnvelope},
		{"too large", http.MethodPost, "/text", alice.Post(strings.Repeat("x", 1024)), protocol.CodeMalformedEnvelope},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := send(t, tc.method, srv.URL+tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			require.Equal(t, tc.code, decodeError(t, resp).Status)
		})
	}
}

func TestHTTPStoreUnavailable(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(New(failingStore{storage.NewInMemoryStore()}, Options{}, nil), HandlerConfig{}).RegisterRoutes(router)

	body, err := json.Marshal(testutil.NewTestIdentity().Post("x"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/text", bytes.NewReader(body)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	wireErr, err := protocol.DecodeMessage[protocol.Error](rec.Body)
	require.NoError(t, err)
	require.Equal(t, protocol.CodeStoreUnavailable, wireErr.Status)
	require.NotContains(t, wireErr.Message, "disk on fire")
}

func TestHTTPCORS(t *testing.T) {
	srv := newTestServer(t, HandlerConfig{CORSOrigins: []string{"https://lay.example"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/text", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://lay.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "https://lay.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHTTPDrainingRefusesSubmissions(t *testing.T) {
	router := chi.NewRouter()
	handler := NewHandler(New(storage.NewInMemoryStore(), Options{}, nil), HandlerConfig{})
	handler.RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	alice := testutil.NewTestIdentity()
	require.Equal(t, http.StatusOK, send(t, http.MethodPost, srv.URL+"/text", alice.Post("before")).StatusCode)

	handler.SetDraining(true)
	for _, path := range []string{"/text", "/profile"} {
		var body any = alice.Post("during")
		if path == "/profile" {
			body = alice.Profile("Alice")
		}
		resp := send(t, http.MethodPost, srv.URL+path, body)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
		require.Equal(t, protocol.CodeStoreUnavailable, decodeError(t, resp).Status)
	}

	// queries are still answered
	resp := send(t, http.MethodGet, srv.URL+"/text", alice.PostRequest())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	posts, err := protocol.DecodeMessage[[]*protocol.Signed[protocol.Post]](resp.Body)
	require.NoError(t, err)
	require.Len(t, *posts, 1)

	handler.SetDraining(false)
	require.Equal(t, http.StatusOK, send(t, http.MethodPost, srv.URL+"/text", alice.Post("after")).StatusCode)
}
