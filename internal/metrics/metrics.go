// Package metrics exposes the forum's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors. A nil *Metrics is valid and records
// nothing, which keeps call sites free of nil checks.
type Metrics struct {
	registry *prometheus.Registry

	Votes     *prometheus.CounterVec
	Views     *prometheus.CounterVec
	Comments  *prometheus.CounterVec
	Conflicts *prometheus.CounterVec
	Requests  *prometheus.CounterVec
	Latency   *prometheus.HistogramVec
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forum_votes_total",
			Help: "Votes cast, by votable type and resulting action.",
		}, []string{"votable_type", "action"}),
		Views: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forum_views_total",
			Help: "Views recorded, by whether they were counted.",
		}, []string{"counted"}),
		Comments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forum_comments_total",
			Help: "Comment lifecycle events.",
		}, []string{"event"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forum_conflicts_total",
			Help: "Uniqueness races lost, by operation.",
		}, []string{"operation"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forum_http_requests_total",
			Help: "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forum_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(m.Votes, m.Views, m.Comments, m.Conflicts, m.Requests, m.Latency)
	return m
}

func (m *Metrics) VoteCast(votableType, action string) {
	if m == nil {
		return
	}
	m.Votes.WithLabelValues(votableType, action).Inc()
}

func (m *Metrics) ViewRecorded(counted bool) {
	if m == nil {
		return
	}
	m.Views.WithLabelValues(strconv.FormatBool(counted)).Inc()
}

func (m *Metrics) CommentEvent(event string) {
	if m == nil {
		return
	}
	m.Comments.WithLabelValues(event).Inc()
}

func (m *Metrics) Conflict(operation string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(operation).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.Latency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
