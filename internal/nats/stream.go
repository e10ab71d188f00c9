package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-relay/pkg/logger"
)

const (
	// DefaultStreamName is the name of the telemetry stream.
	DefaultStreamName = "CHAT_TELEMETRY"

	// SubjectPrefix is the prefix for all telemetry subjects.
	SubjectPrefix = "telemetry"
)

// Record kinds.
const (
	KindCount        = "count"
	KindDistribution = "distribution"
)

// Record is one metric emission as published on the bus.
type Record struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"ts"`
}

// asyncPublisher is the subset of jetstream.JetStream the publisher needs.
type asyncPublisher interface {
	PublishAsync(subject string, data []byte, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
}

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client     *Client
	streamName string
}

// NewStreamManager creates a new stream manager for the named stream.
func NewStreamManager(client *Client, streamName string) *StreamManager {
	if streamName == "" {
		streamName = DefaultStreamName
	}
	return &StreamManager{client: client, streamName: streamName}
}

// EnsureStream ensures the telemetry stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, m.streamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        m.streamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024, // 1GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Chat relay metric emissions",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// Subject returns the subject a metric is published on.
func Subject(name string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, name)
}

// Publisher mirrors metric emissions onto JetStream. It implements
// telemetry.Metrics; publish failures are logged and dropped.
type Publisher struct {
	js     asyncPublisher
	logger *logger.Logger
	now    func() time.Time
}

// NewPublisher creates a telemetry publisher on the client's JetStream context.
func NewPublisher(client *Client, log *logger.Logger) *Publisher {
	return newPublisher(client.JetStream(), log)
}

func newPublisher(js asyncPublisher, log *logger.Logger) *Publisher {
	return &Publisher{js: js, logger: log, now: time.Now}
}

// Count publishes a counter increment.
func (p *Publisher) Count(name string, tags map[string]string) {
	p.publish(KindCount, name, 1, tags)
}

// Distribution publishes one distribution sample.
func (p *Publisher) Distribution(name string, value float64, tags map[string]string) {
	p.publish(KindDistribution, name, value, tags)
}

func (p *Publisher) publish(kind, name string, value float64, tags map[string]string) {
	rec := Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Name:      name,
		Value:     value,
		Tags:      tags,
		Timestamp: p.now().UTC(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		p.logger.Warn("failed to encode telemetry record", zap.String("metric", name), zap.Error(err))
		return
	}

	if _, err := p.js.PublishAsync(Subject(name), data, jetstream.WithMsgID(rec.ID)); err != nil {
		p.logger.Warn("failed to publish telemetry record", zap.String("metric", name), zap.Error(err))
	}
}
