package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadNamespace(t *testing.T) {
	_, err := New("bad-name", "")
	require.Error(t, err)
}

func TestHandlerExposesCounters(t *testing.T) {
	_, err := New("laytest", "")
	require.NoError(t, err)

	IncRequest("accept_post")
	IncRejected("query_posts", "ReplayedTimestamp")
	ObserveStore("save_post", time.Now())
	SetPostsServed(3)

	rec := httptest.NewRecorder()
	Handler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, `laytest_relay_requests_total{op="accept_post"} 1`)
	require.Contains(t, body, `laytest_relay_rejected_total{op="query_posts",kind="ReplayedTimestamp"} 1`)
	require.Contains(t, body, `laytest_store_duration_seconds_bucket`)
	require.Contains(t, body, `laytest_relay_last_query_posts 3`)
}
