// Package model defines data structures for the chat relay.
package model

import "encoding/json"

// ChatRequest is the body of POST /api/chat. Messages is kept raw so the
// validator can tell a missing field from a malformed one.
type ChatRequest struct {
	Messages json.RawMessage `json:"messages"`
}

// ErrorResponse is the body of every pre-stream error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LastUserTurn returns the most recent turn authored by the user.
func LastUserTurn(turns []Turn) (Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return turns[i], true
		}
	}
	return Turn{}, false
}
