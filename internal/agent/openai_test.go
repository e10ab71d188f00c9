package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIServer(t *testing.T, finishReason string, deltas ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":%q}]}\n\n", finishReason)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewOpenAIRuntimeRequiresKey(t *testing.T) {
	_, err := NewOpenAIRuntime("", "")
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}

func TestOpenAIRuntimeSuccess(t *testing.T) {
	server := openAIServer(t, "stop", "Hel", "lo")

	rt, err := NewOpenAIRuntime("test-key", server.URL+"/v1")
	require.NoError(t, err)

	stream, err := rt.Query(context.Background(), "hi", DefaultOptions("", ""))
	require.NoError(t, err)
	msgs := collect(t, stream)
	require.NoError(t, stream.Err())

	require.Len(t, msgs, 4)
	assert.Equal(t, TextDelta{Text: "Hel"}, msgs[0])
	assert.Equal(t, TextDelta{Text: "lo"}, msgs[1])
	assert.IsType(t, AssistantMessage{}, msgs[2])

	result := msgs[3].(Result)
	assert.True(t, result.Success())
	assert.Equal(t, "Hello", result.Text)
}

func TestOpenAIRuntimeLength(t *testing.T) {
	server := openAIServer(t, "length", "cut")

	rt, err := NewOpenAIRuntime("test-key", server.URL+"/v1")
	require.NoError(t, err)

	stream, err := rt.Query(context.Background(), "hi", DefaultOptions("", ""))
	require.NoError(t, err)
	msgs := collect(t, stream)

	result := msgs[len(msgs)-1].(Result)
	assert.Equal(t, SubtypeErrorMaxTokens, result.Subtype)
	assert.False(t, result.Success())
}

func TestOpenAIRuntimeSetupErrorReturnedFromQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	rt, err := NewOpenAIRuntime("test-key", server.URL+"/v1")
	require.NoError(t, err)

	_, err = rt.Query(context.Background(), "hi", DefaultOptions("", ""))
	require.Error(t, err)
}

func TestNewRuntime(t *testing.T) {
	rt, err := NewRuntime(Config{})
	require.NoError(t, err)
	assert.Equal(t, "claude-cli", rt.Name())

	rt, err = NewRuntime(Config{Backend: BackendAnthropic, AnthropicAPIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", rt.Name())

	rt, err = NewRuntime(Config{Backend: BackendOpenAI, OpenAIAPIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", rt.Name())

	_, err = NewRuntime(Config{Backend: "llama"})
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}

func TestChanStreamCloseStopsProducer(t *testing.T) {
	done := make(chan struct{})
	s := newChanStream(context.Background(), func(ctx context.Context, emit emitFunc) error {
		defer close(done)
		for emit(TextDelta{Text: "x"}) {
		}
		return ctx.Err()
	})

	require.True(t, s.Next())
	require.NoError(t, s.Close())
	<-done
	assert.False(t, s.Next())
}

func TestChanStreamReportsParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newChanStream(ctx, func(ctx context.Context, emit emitFunc) error {
		<-ctx.Done()
		return nil
	})
	defer s.Close()

	cancel()
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), context.Canceled)
}
