package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus counters for the bot. A nil *Metrics is a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	ticketsCreated  *prometheus.CounterVec
	mediaItems      *prometheus.CounterVec
	sweptTickets    *prometheus.CounterVec
	sweptMedia      *prometheus.CounterVec
	duplicateAlerts prometheus.Counter
	archivals       *prometheus.CounterVec
	errors          *prometheus.CounterVec
	interactions    *prometheus.CounterVec
}

// NewMetrics registers every collector on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ticketsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickets_created_total",
			Help: "Ticket sessions opened, by kind",
		}, []string{"kind"}),
		mediaItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_ingest_items_total",
			Help: "Attachments processed by the ingestion pipeline, by result",
		}, []string{"result"}),
		sweptTickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retention_tickets_total",
			Help: "Expired tickets handled by the retention sweeper, by result",
		}, []string{"result"}),
		sweptMedia: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retention_media_total",
			Help: "Remote media deletions attempted by the retention sweeper, by result",
		}, []string{"result"}),
		duplicateAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duplicate_identifier_alerts_total",
			Help: "Lookups that resolved to more than one ticket",
		}),
		archivals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_archivals_total",
			Help: "Channel archival attempts, by result",
		}, []string{"result"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP requests that ended in a domain error, by code",
		}, []string{"method", "route", "code"}),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discord_interactions_total",
			Help: "Discord interactions and commands handled, by kind and result",
		}, []string{"kind", "result"}),
	}
	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		m.httpRequests, m.httpDuration, m.ticketsCreated, m.mediaItems,
		m.sweptTickets, m.sweptMedia, m.duplicateAlerts, m.archivals,
		m.errors, m.interactions,
	)
	return m
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError counts a request that failed with a domain error code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, route, code).Inc()
}

// InteractionHandled counts one handled Discord interaction or command.
func (m *Metrics) InteractionHandled(kind string, ok bool) {
	if m == nil {
		return
	}
	m.interactions.WithLabelValues(kind, resultLabel(ok)).Inc()
}

// TicketCreated counts a newly opened ticket session.
func (m *Metrics) TicketCreated(kind string) {
	if m == nil {
		return
	}
	m.ticketsCreated.WithLabelValues(kind).Inc()
}

// MediaIngested counts the outcome of one ingestion batch.
func (m *Metrics) MediaIngested(succeeded, failed int) {
	if m == nil {
		return
	}
	m.mediaItems.WithLabelValues("uploaded").Add(float64(succeeded))
	m.mediaItems.WithLabelValues("failed").Add(float64(failed))
}

// TicketSwept counts one processed ticket; ok is false when its record delete failed.
func (m *Metrics) TicketSwept(ok bool) {
	if m == nil {
		return
	}
	m.sweptTickets.WithLabelValues(resultLabel(ok)).Inc()
}

// MediaSwept counts one remote media deletion.
func (m *Metrics) MediaSwept(ok bool) {
	if m == nil {
		return
	}
	m.sweptMedia.WithLabelValues(resultLabel(ok)).Inc()
}

// DuplicateDetected counts a multi-match lookup.
func (m *Metrics) DuplicateDetected() {
	if m == nil {
		return
	}
	m.duplicateAlerts.Inc()
}

// ChannelArchived counts an archival attempt.
func (m *Metrics) ChannelArchived(ok bool) {
	if m == nil {
		return
	}
	m.archivals.WithLabelValues(resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
