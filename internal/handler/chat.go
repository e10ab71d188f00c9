package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-relay/internal/middleware"
	"github.com/capitalize-ai/agent-relay/internal/model"
	"github.com/capitalize-ai/agent-relay/internal/service"
	"github.com/capitalize-ai/agent-relay/pkg/logger"
	"github.com/capitalize-ai/agent-relay/pkg/metrics"
)

const internalErrorMessage = "Internal server error"

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatSvc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatSvc,
		logger:      log,
	}
}

// Chat handles POST /api/chat
// The conversation is relayed to the agent runtime and the reply is streamed
// back as server-sent events terminated by a [DONE] line.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acc := h.chatService.NewRequestMetrics()

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.chatService.RecordAPIError(ctx, fmt.Errorf("decoding request body: %w", err), acc)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	// A body that is valid JSON but not an object carries no messages field.
	var req model.ChatRequest
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &req); err != nil {
			h.chatService.RecordAPIError(ctx, fmt.Errorf("decoding request body: %w", err), acc)
			writeError(w, http.StatusInternalServerError, internalErrorMessage)
			return
		}
	}

	turns, err := middleware.ValidateTurns(req.Messages)
	if err != nil {
		var verr *middleware.ValidationError
		if errors.As(err, &verr) {
			h.chatService.RecordValidationFailure(ctx, verr)
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		h.chatService.RecordAPIError(ctx, err, acc)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		h.chatService.RecordAPIError(ctx, err, acc)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	stream, cancel, err := h.chatService.Query(ctx, turns)
	if err != nil {
		h.chatService.RecordAPIError(ctx, err, acc)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}
	defer cancel()

	startSSE(w)

	// Track active connection
	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	h.chatService.Relay(ctx, stream, sse, acc)

	if err := sse.Terminate(); err != nil {
		logger.FromContext(ctx, h.logger).Debug("client disconnected before end of stream", zap.Error(err))
	}
}
