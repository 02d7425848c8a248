package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.VoteCast("post", "created")
		m.ViewRecorded(true)
		m.CommentEvent("created")
		m.Conflict("vote")
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.VoteCast("post", "created")
	m.VoteCast("post", "created")
	m.VoteCast("comment", "removed")
	m.ViewRecorded(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Votes.WithLabelValues("post", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Votes.WithLabelValues("comment", "removed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Views.WithLabelValues("false")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping/:id", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/7", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/ping/:id", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "forum_http_requests_total"))
}
