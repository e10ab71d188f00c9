package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIRuntime answers queries with a single streamed chat completion. It
// has no tools, so every query is exactly one turn.
type OpenAIRuntime struct {
	client *openai.Client
}

// NewOpenAIRuntime creates an OpenAI runtime.
func NewOpenAIRuntime(apiKey, baseURL string) (*OpenAIRuntime, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}

	config := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIRuntime{client: openai.NewClientWithConfig(config)}, nil
}

// Name returns the backend name.
func (r *OpenAIRuntime) Name() string {
	return string(BackendOpenAI)
}

// Query opens the completion stream before returning, so request errors are
// reported here rather than mid-stream.
func (r *OpenAIRuntime) Query(ctx context.Context, prompt string, opts Options) (Stream, error) {
	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	stream, err := r.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: creating stream: %w", err)
	}

	start := time.Now()
	return newChanStream(ctx, func(ctx context.Context, emit emitFunc) error {
		defer stream.Close()

		var text strings.Builder
		var finishReason openai.FinishReason
		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("openai: stream failed: %w", err)
			}
			if len(response.Choices) == 0 {
				continue
			}

			choice := response.Choices[0]
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				if !emit(TextDelta{Text: choice.Delta.Content}) {
					return ctx.Err()
				}
			}
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}

		if !emit(AssistantMessage{Model: model, Content: []ContentBlock{TextBlock{Text: text.String()}}}) {
			return ctx.Err()
		}

		result := Result{
			Subtype:    SubtypeSuccess,
			NumTurns:   1,
			DurationMS: time.Since(start).Milliseconds(),
			Text:       text.String(),
		}
		switch finishReason {
		case openai.FinishReasonLength:
			result.Subtype = SubtypeErrorMaxTokens
			result.IsError = true
		case openai.FinishReasonContentFilter:
			result.Subtype = SubtypeErrorRefusal
			result.IsError = true
		}
		emit(result)
		return nil
	}), nil
}
