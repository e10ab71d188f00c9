package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-relay/internal/agent"
	"github.com/capitalize-ai/agent-relay/internal/agent/agenttest"
	"github.com/capitalize-ai/agent-relay/internal/service"
	"github.com/capitalize-ai/agent-relay/internal/telemetry"
	"github.com/capitalize-ai/agent-relay/internal/telemetry/telemetrytest"
	"github.com/capitalize-ai/agent-relay/pkg/logger"
)

type testServer struct {
	handler http.Handler
	runtime *agenttest.Runtime
	metrics *telemetrytest.Recorder
}

func newTestServer(t *testing.T, stream *agenttest.Stream) *testServer {
	t.Helper()
	rt := &agenttest.Runtime{Stream: stream}
	rec := &telemetrytest.Recorder{}
	log := logger.Nop()
	svc := service.NewChatService(rt, rec, log, service.ChatConfig{Timeout: time.Minute})

	return &testServer{
		handler: NewRouter(RouterConfig{
			Chat:           NewChatHandler(svc, log),
			Health:         NewHealthHandler(nil),
			Logger:         log,
			AllowedOrigins: []string{"*"},
		}),
		runtime: rt,
		metrics: rec,
	}
}

func (s *testServer) post(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// dataLines returns the payloads of the data lines in an event stream body.
func dataLines(t *testing.T, body string) []string {
	t.Helper()
	require.True(t, strings.HasSuffix(body, "\n\n"), "body must end with a blank line")
	var out []string
	for _, frame := range strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n") {
		require.True(t, strings.HasPrefix(frame, "data: "), "frame %q", frame)
		out = append(out, strings.TrimPrefix(frame, "data: "))
	}
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

const singleTurn = `{"messages":[{"role":"user","content":"hello"}]}`

func TestChatStreamsTextAndDone(t *testing.T) {
	s := newTestServer(t, agenttest.NewStream(
		agent.SystemMessage{Subtype: "init"},
		agent.TextDelta{Text: "Hi "},
		agent.TextDelta{Text: "there"},
		agent.Result{Subtype: agent.SubtypeSuccess},
	))

	rec := s.post(singleTurn)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

	assert.Equal(t, []string{
		`{"type":"text_delta","text":"Hi "}`,
		`{"type":"text_delta","text":"there"}`,
		`{"type":"done"}`,
		`[DONE]`,
	}, dataLines(t, rec.Body.String()))

	require.Len(t, s.runtime.Prompts(), 1)
	assert.True(t, strings.HasSuffix(s.runtime.Prompts()[0], "User: hello"))
	assert.Len(t, s.metrics.Named(telemetry.MetricCompleted), 1)
}

func TestChatStreamsToolEvents(t *testing.T) {
	s := newTestServer(t, agenttest.NewStream(
		agent.AssistantMessage{Content: []agent.ContentBlock{
			agent.ToolUseBlock{ID: "1", Name: "WebSearch"},
		}},
		agent.ToolProgress{ToolUseID: "1", ToolName: "WebSearch", ElapsedSeconds: 2},
		agent.TextDelta{Text: "Result"},
		agent.Result{Subtype: agent.SubtypeSuccess},
	))

	rec := s.post(`{"messages":[
		{"role":"user","content":"search for go"},
		{"role":"assistant","content":"sure"},
		{"role":"user","content":"now"}
	]}`)

	assert.Equal(t, []string{
		`{"type":"tool_start","tool":"WebSearch"}`,
		`{"type":"tool_progress","tool":"WebSearch","elapsed":2}`,
		`{"type":"text_delta","text":"Result"}`,
		`{"type":"done"}`,
		`[DONE]`,
	}, dataLines(t, rec.Body.String()))
	assert.Contains(t, s.runtime.Prompts()[0], "Previous conversation:")
}

func TestChatValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing messages", `{}`, "Messages array is required"},
		{"messages not an array", `{"messages":"hi"}`, "Messages array is required"},
		{"empty messages", `{"messages":[]}`, "Messages array is required"},
		{"null messages", `{"messages":null}`, "Messages array is required"},
		{"body is an array", `[]`, "Messages array is required"},
		{"body is a string", `"hi"`, "Messages array is required"},
		{"body is a number", `42`, "Messages array is required"},
		{"body is null", `null`, "Messages array is required"},
		{"no user turn", `{"messages":[{"role":"assistant","content":"hello"}]}`, "No user message found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)

			rec := s.post(tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.message, decodeError(t, rec))
			assert.Empty(t, s.runtime.Prompts())
			require.Len(t, s.metrics.Named(telemetry.MetricErrors), 1)
		})
	}
}

func TestChatUndecodableBody(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.post(`{"messages":`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeError(t, rec))
	errs := s.metrics.Named(telemetry.MetricErrors)
	require.Len(t, errs, 1)
	assert.Equal(t, "api_error", errs[0].Tags[telemetry.TagErrorType])
}

func TestChatRuntimeSetupFailure(t *testing.T) {
	s := newTestServer(t, nil)
	s.runtime.QueryErr = errors.New("claude: executable file not found")

	rec := s.post(singleTurn)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeError(t, rec))
	assert.NotContains(t, rec.Body.String(), "executable")

	dur := s.metrics.Named(telemetry.MetricDuration)
	require.Len(t, dur, 1)
	assert.Equal(t, "error", dur[0].Tags[telemetry.TagStatus])
}

func TestChatMidStreamFailure(t *testing.T) {
	stream := agenttest.NewStream(agent.TextDelta{Text: "partial"})
	stream.Failure = errors.New("process exited with status 1")
	s := newTestServer(t, stream)

	rec := s.post(singleTurn)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{
		`{"type":"text_delta","text":"partial"}`,
		`{"type":"error","message":"An error occurred while processing your request"}`,
		`[DONE]`,
	}, dataLines(t, rec.Body.String()))
	assert.True(t, stream.Closed())
}

func TestChatFailureAfterToolStart(t *testing.T) {
	stream := agenttest.NewStream(agent.AssistantMessage{Content: []agent.ContentBlock{
		agent.ToolUseBlock{ID: "1", Name: "Bash"},
	}})
	stream.Failure = errors.New("connection reset")
	s := newTestServer(t, stream)

	rec := s.post(`{"messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{
		`{"type":"tool_start","tool":"Bash"}`,
		`{"type":"error","message":"An error occurred while processing your request"}`,
		`[DONE]`,
	}, dataLines(t, rec.Body.String()))
}

func TestChatUnsuccessfulResult(t *testing.T) {
	s := newTestServer(t, agenttest.NewStream(
		agent.Result{Subtype: agent.SubtypeErrorDuringExecution, IsError: true},
	))

	rec := s.post(singleTurn)

	assert.Equal(t, []string{
		`{"type":"error","message":"Query did not complete successfully"}`,
		`[DONE]`,
	}, dataLines(t, rec.Body.String()))
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/health", "/ready"} {
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
