package model

// Role represents the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label returns the speaker name used in prompt transcripts. Every turn not
// authored by the user is rendered as the assistant.
func (r Role) Label() string {
	if r == RoleUser {
		return "User"
	}
	return "Assistant"
}

// Turn is one message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
