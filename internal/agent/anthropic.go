package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5"
	anthropicMaxTokens    = 8192
	webSearchMaxUses      = 5
)

// AnthropicRuntime answers queries with the Messages API and the server-side
// web search tool. Each API call counts as one turn; pause_turn responses are
// continued until the turn budget runs out.
type AnthropicRuntime struct {
	client anthropic.Client
}

// NewAnthropicRuntime creates an Anthropic runtime.
func NewAnthropicRuntime(apiKey, baseURL string) (*AnthropicRuntime, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &AnthropicRuntime{client: anthropic.NewClient(opts...)}, nil
}

// Name returns the backend name.
func (r *AnthropicRuntime) Name() string {
	return string(BackendAnthropic)
}

// Query starts the turn loop in the background; the first request is sent
// when the consumer starts iterating.
func (r *AnthropicRuntime) Query(ctx context.Context, prompt string, opts Options) (Stream, error) {
	return newChanStream(ctx, func(ctx context.Context, emit emitFunc) error {
		return r.run(ctx, prompt, opts, emit)
	}), nil
}

func (r *AnthropicRuntime) run(ctx context.Context, prompt string, opts Options, emit emitFunc) error {
	model := opts.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	start := time.Now()
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}

	for turn := 1; turn <= maxTurns; turn++ {
		message, err := r.turn(ctx, model, messages, emit)
		if err != nil {
			return err
		}
		if !emit(toAssistantMessage(message)) {
			return ctx.Err()
		}

		result := Result{NumTurns: turn}
		switch string(message.StopReason) {
		case "pause_turn":
			messages = append(messages, message.ToParam())
			continue
		case "end_turn", "stop_sequence":
			result.Subtype = SubtypeSuccess
			result.Text = messageText(message)
		case "max_tokens":
			result.Subtype = SubtypeErrorMaxTokens
			result.IsError = true
		case "refusal":
			result.Subtype = SubtypeErrorRefusal
			result.IsError = true
		default:
			result.Subtype = SubtypeErrorDuringExecution
			result.IsError = true
			result.Errors = []string{"unexpected stop reason: " + string(message.StopReason)}
		}
		result.DurationMS = time.Since(start).Milliseconds()
		emit(result)
		return nil
	}

	emit(Result{
		Subtype:    SubtypeErrorMaxTurns,
		IsError:    true,
		NumTurns:   maxTurns,
		DurationMS: time.Since(start).Milliseconds(),
	})
	return nil
}

// turn streams one Messages API call, forwarding text deltas as they arrive.
func (r *AnthropicRuntime) turn(ctx context.Context, model string, messages []anthropic.MessageParam, emit emitFunc) (anthropic.Message, error) {
	stream := r.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages:  messages,
		Tools: []anthropic.ToolUnionParam{
			{OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
				MaxUses: anthropic.Int(webSearchMaxUses),
			}},
		},
	})
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return message, fmt.Errorf("anthropic: accumulating stream: %w", err)
		}

		if event.Type == "content_block_delta" {
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				if !emit(TextDelta{Text: delta.Text}) {
					return message, ctx.Err()
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return message, fmt.Errorf("anthropic: stream failed: %w", err)
	}
	return message, nil
}

func toAssistantMessage(message anthropic.Message) AssistantMessage {
	out := AssistantMessage{Model: string(message.Model)}
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			out.Content = append(out.Content, TextBlock{Text: block.Text})
		case "tool_use", "server_tool_use":
			out.Content = append(out.Content, ToolUseBlock{ID: block.ID, Name: block.Name, Input: block.Input})
		default:
			out.Content = append(out.Content, OtherBlock{Type: block.Type})
		}
	}
	return out
}

func messageText(message anthropic.Message) string {
	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
