// Package telemetry defines the metric emission capability handed to the
// request pipeline. Emissions are fire-and-forget: implementations never
// report failure back to the caller.
package telemetry

// Metric names emitted by the chat pipeline.
const (
	MetricErrors        = "chat.errors"
	MetricMessageLength = "chat.message_length"
	MetricToolUsed      = "chat.tool_used"
	MetricCompleted     = "chat.completed"
	MetricDuration      = "chat.duration_ms"
	MetricTextChunks    = "chat.text_chunks"
	MetricToolsUsed     = "chat.tools_used"
)

// Tag keys.
const (
	TagErrorType   = "error_type"
	TagMessageType = "message_type"
	TagTool        = "tool"
	TagStatus      = "status"
)

// Metrics receives counter and distribution emissions.
type Metrics interface {
	// Count increments the named counter by one.
	Count(name string, tags map[string]string)

	// Distribution records one sample of the named distribution.
	Distribution(name string, value float64, tags map[string]string)
}

// Nop discards every emission.
type Nop struct{}

func (Nop) Count(string, map[string]string)                 {}
func (Nop) Distribution(string, float64, map[string]string) {}

type multi []Metrics

// Multi fans each emission out to all sinks in order. Nil sinks are skipped.
func Multi(sinks ...Metrics) Metrics {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multi) Count(name string, tags map[string]string) {
	for _, s := range m {
		s.Count(name, tags)
	}
}

func (m multi) Distribution(name string, value float64, tags map[string]string) {
	for _, s := range m {
		s.Distribution(name, value, tags)
	}
}
