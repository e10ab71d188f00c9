// Package middleware provides HTTP middleware and request validation for the API server.
package middleware

import (
	"bytes"
	"encoding/json"

	"github.com/capitalize-ai/agent-relay/internal/model"
)

// Validation failure reasons, used as the error_type metric tag.
const (
	ReasonMalformedMessages = "missing_or_malformed_messages"
	ReasonNoUserMessage     = "no_user_message"
)

// ValidationError reports a request the caller must fix.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	errMalformedMessages = &ValidationError{Reason: ReasonMalformedMessages, Message: "Messages array is required"}
	errNoUserMessage     = &ValidationError{Reason: ReasonNoUserMessage, Message: "No user message found"}
)

// ValidateTurns decodes the raw messages field into an ordered list of turns.
// It fails when the field is missing, not an array, empty, or holds an
// element that is not a turn object, and when no turn is authored by the user.
func ValidateTurns(raw json.RawMessage) ([]model.Turn, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, errMalformedMessages
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil || len(elements) == 0 {
		return nil, errMalformedMessages
	}

	turns := make([]model.Turn, 0, len(elements))
	for _, element := range elements {
		element = bytes.TrimSpace(element)
		if len(element) == 0 || element[0] != '{' {
			return nil, errMalformedMessages
		}
		var turn model.Turn
		if err := json.Unmarshal(element, &turn); err != nil {
			return nil, errMalformedMessages
		}
		turns = append(turns, turn)
	}

	if _, ok := model.LastUserTurn(turns); !ok {
		return nil, errNoUserMessage
	}

	return turns, nil
}
