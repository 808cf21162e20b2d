// Package prom implements the observability hooks with Prometheus metrics.
package prom

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matzehuels/kinship/pkg/observability"
)

const namespace = "kinship"

// Metrics records hook events as Prometheus collectors.
type Metrics struct {
	feedConnects    *prometheus.CounterVec
	feedDisconnects *prometheus.CounterVec
	feedEvents      *prometheus.CounterVec

	storeMutations *prometheus.CounterVec
	storeRejected  *prometheus.CounterVec

	layoutDuration prometheus.Histogram
	layoutNodes    prometheus.Histogram
	renderDuration *prometheus.HistogramVec

	cacheOps   *prometheus.CounterVec
	cacheBytes *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var (
	_ observability.FeedHooks     = (*Metrics)(nil)
	_ observability.StoreHooks    = (*Metrics)(nil)
	_ observability.PipelineHooks = (*Metrics)(nil)
	_ observability.CacheHooks    = (*Metrics)(nil)
	_ observability.HTTPHooks     = (*Metrics)(nil)
)

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		feedConnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "connects_total",
			Help: "Feed (re)connections by transport.",
		}, []string{"transport"}),
		feedDisconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "disconnects_total",
			Help: "Feed disconnects by transport and whether they were errors.",
		}, []string{"transport", "error"}),
		feedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "events_total",
			Help: "Change events delivered by table and type.",
		}, []string{"table", "type"}),

		storeMutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "mutations_total",
			Help: "Store mutations by operation and whether they changed anything.",
		}, []string{"op", "effective"}),
		storeRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "rejected_total",
			Help: "Local mutations rejected by invariant checks.",
		}, []string{"op"}),

		layoutDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "layout", Name: "duration_seconds",
			Help:    "Diagram layout duration.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		layoutNodes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "layout", Name: "persons",
			Help:    "Persons per laid out tree.",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
		}),
		renderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "render", Name: "duration_seconds",
			Help:    "Render duration by result.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),

		cacheOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "operations_total",
			Help: "Cache lookups and writes by key type and outcome.",
		}, []string{"key_type", "outcome"}),
		cacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "written_bytes_total",
			Help: "Bytes written to the cache by key type.",
		}, []string{"key_type"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backend", Name: "requests_total",
			Help: "Backend calls by host and status.",
		}, []string{"host", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "backend", Name: "request_duration_seconds",
			Help:    "Backend call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"host"}),
	}
}

// Register installs m as the global hook implementation for every category.
func (m *Metrics) Register() {
	observability.SetFeedHooks(m)
	observability.SetStoreHooks(m)
	observability.SetPipelineHooks(m)
	observability.SetCacheHooks(m)
	observability.SetHTTPHooks(m)
}

// =============================================================================
// Feed
// =============================================================================

func (m *Metrics) OnConnect(_ context.Context, transport, _ string) {
	m.feedConnects.WithLabelValues(transport).Inc()
}

func (m *Metrics) OnDisconnect(_ context.Context, transport, _ string, err error) {
	m.feedDisconnects.WithLabelValues(transport, strconv.FormatBool(err != nil)).Inc()
}

func (m *Metrics) OnEvent(_ context.Context, table, eventType string) {
	m.feedEvents.WithLabelValues(table, eventType).Inc()
}

// =============================================================================
// Store
// =============================================================================

func (m *Metrics) OnMutation(op string, effective bool) {
	m.storeMutations.WithLabelValues(op, strconv.FormatBool(effective)).Inc()
}

func (m *Metrics) OnRejected(op string, _ error) {
	m.storeRejected.WithLabelValues(op).Inc()
}

// =============================================================================
// Pipeline
// =============================================================================

func (m *Metrics) OnLayoutStart(_ context.Context, nodeCount int) {
	m.layoutNodes.Observe(float64(nodeCount))
}

func (m *Metrics) OnLayoutComplete(_ context.Context, d time.Duration, _ error) {
	m.layoutDuration.Observe(d.Seconds())
}

func (m *Metrics) OnRenderStart(context.Context, []string) {}

func (m *Metrics) OnRenderComplete(_ context.Context, _ []string, d time.Duration, err error) {
	m.renderDuration.WithLabelValues(result(err)).Observe(d.Seconds())
}

// =============================================================================
// Cache
// =============================================================================

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheOps.WithLabelValues(keyType, "set").Inc()
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

// =============================================================================
// HTTP
// =============================================================================

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(host, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, host, _ string, _ error) {
	m.httpRequests.WithLabelValues(host, "error").Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
