package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/capitalize-ai/agent-relay/internal/model"
)

var errStreamingUnsupported = errors.New("streaming not supported")

// sseWriter frames events as server-sent event data lines and flushes each one.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

// startSSE writes the event stream response headers.
func startSSE(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
}

// Send writes one event.
func (s *sseWriter) Send(event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.writeData(data)
}

// Terminate writes the end-of-stream sentinel.
func (s *sseWriter) Terminate() error {
	return s.writeData([]byte("[DONE]"))
}

func (s *sseWriter) writeData(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
