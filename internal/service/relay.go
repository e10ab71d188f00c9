// Package service implements the chat relay pipeline: prompt composition,
// agent invocation and translation of agent messages into stream events.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-relay/internal/agent"
	"github.com/capitalize-ai/agent-relay/internal/middleware"
	"github.com/capitalize-ai/agent-relay/internal/model"
	"github.com/capitalize-ai/agent-relay/internal/telemetry"
	"github.com/capitalize-ai/agent-relay/pkg/logger"
	"github.com/capitalize-ai/agent-relay/pkg/tracing"
)

// EventSink delivers outbound events to the caller, in order.
type EventSink interface {
	Send(event model.Event) error
}

// RequestMetrics accumulates per-request counters. It is owned by a single
// request and mutated only by Relay.
type RequestMetrics struct {
	ToolsUsed    int
	TextChunks   int
	RequestStart time.Time
	StreamStart  time.Time
}

// ChatConfig holds the fixed agent invocation settings.
type ChatConfig struct {
	// Cwd is the working directory handed to the agent runtime.
	Cwd string
	// Model overrides the runtime's default model when set.
	Model string
	// Timeout bounds a whole agent invocation. Zero disables the bound.
	Timeout time.Duration
}

// ChatService relays conversations to an agent runtime.
type ChatService struct {
	runtime agent.Runtime
	metrics telemetry.Metrics
	logger  *logger.Logger
	tracer  trace.Tracer
	config  ChatConfig
	now     func() time.Time
}

// NewChatService creates a new chat service.
func NewChatService(rt agent.Runtime, metrics telemetry.Metrics, log *logger.Logger, cfg ChatConfig) *ChatService {
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &ChatService{
		runtime: rt,
		metrics: metrics,
		logger:  log,
		tracer:  tracing.Tracer(),
		config:  cfg,
		now:     time.Now,
	}
}

// NewRequestMetrics starts the accumulator for a request entering now.
func (s *ChatService) NewRequestMetrics() *RequestMetrics {
	return &RequestMetrics{RequestStart: s.now()}
}

// RecordValidationFailure logs and counts a rejected request.
func (s *ChatService) RecordValidationFailure(ctx context.Context, verr *middleware.ValidationError) {
	logger.FromContext(ctx, s.logger).Warn("invalid chat request",
		zap.String("error_type", verr.Reason),
		zap.String("error", verr.Message),
	)
	s.metrics.Count(telemetry.MetricErrors, map[string]string{telemetry.TagErrorType: verr.Reason})
}

// RecordAPIError logs and counts a failure that happened before streaming started.
func (s *ChatService) RecordAPIError(ctx context.Context, err error, acc *RequestMetrics) {
	logger.FromContext(ctx, s.logger).Error("chat request failed",
		zap.Error(err),
		zap.Stack("stack"),
	)
	s.metrics.Count(telemetry.MetricErrors, map[string]string{telemetry.TagErrorType: "api_error"})
	s.metrics.Distribution(telemetry.MetricDuration, milliseconds(s.now().Sub(acc.RequestStart)),
		map[string]string{telemetry.TagStatus: "error"})
}

// Query composes the prompt for turns and opens the agent stream. The
// returned cancel func must be called once the stream is no longer needed.
func (s *ChatService) Query(ctx context.Context, turns []model.Turn) (agent.Stream, context.CancelFunc, error) {
	prompt := ComposePrompt(turns)
	active, _ := model.LastUserTurn(turns)
	s.metrics.Distribution(telemetry.MetricMessageLength, float64(utf8.RuneCountInString(active.Content)),
		map[string]string{telemetry.TagMessageType: string(model.RoleUser)})

	var cancel context.CancelFunc
	if s.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	stream, err := s.runtime.Query(ctx, prompt, agent.DefaultOptions(s.config.Cwd, s.config.Model))
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("opening %s query: %w", s.runtime.Name(), err)
	}
	return stream, cancel, nil
}

// Relay consumes stream until it is exhausted, translating each agent
// message into zero or more events on sink. Failures after streaming began
// end the stream with an error event; events already sent stay sent.
func (s *ChatService) Relay(ctx context.Context, stream agent.Stream, sink EventSink, acc *RequestMetrics) {
	log := logger.FromContext(ctx, s.logger)
	_, span := s.tracer.Start(ctx, "chat.relay",
		trace.WithAttributes(attribute.String("agent.backend", s.runtime.Name())))
	defer span.End()
	defer stream.Close()

	acc.StreamStart = s.now()
	err := s.translate(stream, sink, acc, log)

	span.SetAttributes(
		attribute.Int("chat.tools_used", acc.ToolsUsed),
		attribute.Int("chat.text_chunks", acc.TextChunks),
	)
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "stream processing failed")
	log.Error("stream processing failed",
		zap.Error(err),
		zap.Int("tools_used", acc.ToolsUsed),
		zap.Int("text_chunks", acc.TextChunks),
		zap.Bool("deadline_exceeded", errors.Is(err, context.DeadlineExceeded)),
	)
	s.metrics.Count(telemetry.MetricErrors, map[string]string{telemetry.TagErrorType: "stream_processing"})
	if sendErr := sink.Send(model.ErrorEvent{Message: model.ErrMessageStreamProcessing}); sendErr != nil {
		log.Debug("could not deliver error event", zap.Error(sendErr))
	}
}

func (s *ChatService) translate(stream agent.Stream, sink EventSink, acc *RequestMetrics, log *logger.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while relaying stream: %v", r)
		}
	}()

	for stream.Next() {
		if err := s.handle(stream.Current(), sink, acc, log); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("agent stream: %w", err)
	}
	return nil
}

func (s *ChatService) handle(msg agent.Message, sink EventSink, acc *RequestMetrics, log *logger.Logger) error {
	switch m := msg.(type) {
	case agent.TextDelta:
		acc.TextChunks++
		return sink.Send(model.TextDeltaEvent{Text: m.Text})

	case agent.AssistantMessage:
		for _, use := range m.ToolUses() {
			acc.ToolsUsed++
			log.Info("tool invoked", zap.String("tool", use.Name))
			s.metrics.Count(telemetry.MetricToolUsed, map[string]string{telemetry.TagTool: use.Name})
			if err := sink.Send(model.ToolStartEvent{Tool: use.Name}); err != nil {
				return err
			}
		}
		return nil

	case agent.ToolProgress:
		return sink.Send(model.ToolProgressEvent{Tool: m.ToolName, Elapsed: m.ElapsedSeconds})

	case agent.Result:
		if m.Success() {
			return s.complete(m, sink, acc, log)
		}
		log.Error("query did not complete successfully",
			zap.String("subtype", m.Subtype),
			zap.Strings("errors", m.Errors),
			zap.Int("num_turns", m.NumTurns),
		)
		s.metrics.Count(telemetry.MetricErrors, map[string]string{telemetry.TagErrorType: m.Subtype})
		return sink.Send(model.ErrorEvent{Message: model.ErrMessageQueryIncomplete})

	default:
		return nil
	}
}

func (s *ChatService) complete(result agent.Result, sink EventSink, acc *RequestMetrics, log *logger.Logger) error {
	now := s.now()
	total := now.Sub(acc.RequestStart)
	streamed := now.Sub(acc.StreamStart)

	log.Info("chat completed",
		zap.Duration("total_duration", total),
		zap.Duration("stream_duration", streamed),
		zap.Int("tools_used", acc.ToolsUsed),
		zap.Int("text_chunks", acc.TextChunks),
		zap.Int("num_turns", result.NumTurns),
		zap.Float64("cost_usd", result.TotalCostUSD),
	)
	s.metrics.Count(telemetry.MetricCompleted, nil)
	s.metrics.Distribution(telemetry.MetricDuration, milliseconds(total), map[string]string{telemetry.TagStatus: "success"})
	s.metrics.Distribution(telemetry.MetricTextChunks, float64(acc.TextChunks), nil)
	s.metrics.Distribution(telemetry.MetricToolsUsed, float64(acc.ToolsUsed), nil)

	return sink.Send(model.DoneEvent{})
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
