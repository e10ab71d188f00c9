// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"strings"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// ChatErrorsTotal counts chat failures by kind.
	ChatErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_errors_total",
			Help: "Chat request failures by error type",
		},
		[]string{"error_type"},
	)

	// ChatToolInvocationsTotal counts tool invocations started by the agent.
	ChatToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_tool_invocations_total",
			Help: "Agent tool invocations by tool name",
		},
		[]string{"tool"},
	)

	// ChatCompletedTotal counts successfully completed chat streams.
	ChatCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_completed_total",
			Help: "Chat streams that finished with a successful result",
		},
	)

	// ChatDuration tracks total chat request duration.
	ChatDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_duration_milliseconds",
			Help:    "Chat request duration in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 20000, 45000, 90000, 180000, 600000},
		},
		[]string{"status"},
	)

	// ChatTextChunks tracks text chunks streamed per request.
	ChatTextChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_text_chunks",
			Help:    "Text chunks streamed per chat request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// ChatToolsUsed tracks tool invocations per request.
	ChatToolsUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_tools_used",
			Help:    "Tool invocations per chat request",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	// ChatMessageLength tracks the character length of incoming messages.
	ChatMessageLength = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_message_length_chars",
			Help:    "Character length of the active chat message",
			Buckets: prometheus.ExponentialBuckets(16, 2, 12),
		},
		[]string{"message_type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

type counter struct {
	vec    *prometheus.CounterVec
	plain  prometheus.Counter
	labels []string
}

type distribution struct {
	vec    *prometheus.HistogramVec
	plain  prometheus.Histogram
	labels []string
}

// counters and distributions map pipeline metric names onto the collectors above.
var (
	counters = map[string]counter{
		"chat.errors":    {vec: ChatErrorsTotal, labels: []string{"error_type"}},
		"chat.tool_used": {vec: ChatToolInvocationsTotal, labels: []string{"tool"}},
		"chat.completed": {plain: ChatCompletedTotal},
	}
	distributions = map[string]distribution{
		"chat.duration_ms":     {vec: ChatDuration, labels: []string{"status"}},
		"chat.text_chunks":     {plain: ChatTextChunks},
		"chat.tools_used":      {plain: ChatToolsUsed},
		"chat.message_length": {vec: ChatMessageLength, labels: []string{"message_type"}},
	}
)

// Recorder forwards named emissions to the Prometheus collectors. Names it
// does not know are dropped.
type Recorder struct{}

// NewRecorder creates a Prometheus-backed recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Count increments the collector registered for name.
func (r *Recorder) Count(name string, tags map[string]string) {
	c, ok := counters[name]
	if !ok {
		return
	}
	if c.vec == nil {
		c.plain.Inc()
		return
	}
	c.vec.With(labelsFor(c.labels, tags)).Inc()
}

// Distribution observes value on the histogram registered for name.
func (r *Recorder) Distribution(name string, value float64, tags map[string]string) {
	d, ok := distributions[name]
	if !ok {
		return
	}
	if d.vec == nil {
		d.plain.Observe(value)
		return
	}
	d.vec.With(labelsFor(d.labels, tags)).Observe(value)
}

func labelsFor(names []string, tags map[string]string) prometheus.Labels {
	labels := make(prometheus.Labels, len(names))
	for _, n := range names {
		labels[n] = sanitize(tags[n])
	}
	return labels
}

const maxLabelLength = 64

// sanitize keeps label values bounded and valid UTF-8; tool names come from the agent runtime.
func sanitize(v string) string {
	v = strings.TrimSpace(strings.ToValidUTF8(v, ""))
	if len(v) > maxLabelLength {
		cut := maxLabelLength
		for cut > 0 && !utf8.RuneStart(v[cut]) {
			cut--
		}
		v = v[:cut]
	}
	if v == "" {
		return "unknown"
	}
	return v
}
