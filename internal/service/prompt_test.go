package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/agent-relay/internal/model"
)

func TestComposePromptSingleTurn(t *testing.T) {
	got := ComposePrompt([]model.Turn{{Role: model.RoleUser, Content: "hi"}})

	assert.Equal(t, SystemDirective+"\n\nUser: hi", got)
	assert.NotContains(t, got, "Previous conversation:")
}

func TestComposePromptWithHistory(t *testing.T) {
	turns := []model.Turn{
		{Role: model.RoleUser, Content: "What is Go?"},
		{Role: model.RoleAssistant, Content: "A programming language."},
		{Role: model.RoleUser, Content: "Who made it?"},
	}

	want := SystemDirective + "\n\n" +
		"Previous conversation:\n" +
		"User: What is Go?\n\nAssistant: A programming language." +
		"\n\nUser: Who made it?"
	assert.Equal(t, want, ComposePrompt(turns))
}

func TestComposePromptEndsWithLastUserTurn(t *testing.T) {
	cases := [][]model.Turn{
		{{Role: model.RoleUser, Content: "one"}},
		{
			{Role: model.RoleUser, Content: "one"},
			{Role: model.RoleAssistant, Content: "two"},
			{Role: model.RoleUser, Content: "three"},
		},
		{
			{Role: model.RoleAssistant, Content: "greeting"},
			{Role: model.RoleUser, Content: "multi\nline"},
		},
		// A trailing assistant turn still ends the prompt with the last user turn.
		{
			{Role: model.RoleUser, Content: "question"},
			{Role: model.RoleAssistant, Content: "partial answer"},
		},
	}

	for _, turns := range cases {
		last, ok := model.LastUserTurn(turns)
		assert.True(t, ok)
		assert.True(t, strings.HasSuffix(ComposePrompt(turns), "User: "+last.Content))
	}
}

func TestComposePromptIsDeterministic(t *testing.T) {
	turns := []model.Turn{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleAssistant, Content: "b"},
		{Role: model.RoleUser, Content: "c"},
	}
	assert.Equal(t, ComposePrompt(turns), ComposePrompt(turns))
}

func TestComposePromptRendersOtherRolesAsAssistant(t *testing.T) {
	turns := []model.Turn{
		{Role: "system", Content: "be brief"},
		{Role: model.RoleUser, Content: "hi"},
	}

	got := ComposePrompt(turns)

	assert.Contains(t, got, "Previous conversation:\nAssistant: be brief")
	assert.NotContains(t, got, "System:")
}
