package service

import (
	"strings"

	"github.com/capitalize-ai/agent-relay/internal/model"
)

// SystemDirective is prepended to every composite prompt.
const SystemDirective = `You are a helpful AI assistant with access to web search and a standard set of tools.
Use web search whenever the question depends on current or external information, and cite the sources you used.
Answer directly and concisely. Use Markdown formatting when it improves readability.`

const previousConversationHeading = "Previous conversation:"

// ComposePrompt flattens a conversation into the single instruction string
// sent to the agent runtime. Every turn except the last is rendered as prior
// context; the prompt always ends with the most recent user turn.
func ComposePrompt(turns []model.Turn) string {
	var b strings.Builder
	b.WriteString(SystemDirective)
	b.WriteString("\n\n")

	if history := renderHistory(turns); history != "" {
		b.WriteString(previousConversationHeading)
		b.WriteString("\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}

	active, _ := model.LastUserTurn(turns)
	b.WriteString(model.RoleUser.Label())
	b.WriteString(": ")
	b.WriteString(active.Content)
	return b.String()
}

func renderHistory(turns []model.Turn) string {
	if len(turns) < 2 {
		return ""
	}
	lines := make([]string, 0, len(turns)-1)
	for _, turn := range turns[:len(turns)-1] {
		lines = append(lines, turn.Role.Label()+": "+turn.Content)
	}
	return strings.Join(lines, "\n\n")
}
