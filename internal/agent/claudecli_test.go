package agent

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamJSONLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Message
	}{
		{
			name: "text delta",
			line: `{"type":"stream_event","event":{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}}`,
			want: TextDelta{Text: "Hello"},
		},
		{
			name: "input json delta is a partial event",
			line: `{"type":"stream_event","event":{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"q"}}}`,
			want: PartialEvent{EventType: "content_block_delta"},
		},
		{
			name: "message start is a partial event",
			line: `{"type":"stream_event","event":{"type":"message_start","message":{}}}`,
			want: PartialEvent{EventType: "message_start"},
		},
		{
			name: "tool progress",
			line: `{"type":"tool_progress","tool_use_id":"toolu_1","tool_name":"WebSearch","elapsed_time_seconds":2.5}`,
			want: ToolProgress{ToolUseID: "toolu_1", ToolName: "WebSearch", ElapsedSeconds: 2.5},
		},
		{
			name: "success result",
			line: `{"type":"result","subtype":"success","is_error":false,"num_turns":3,"duration_ms":1200,"total_cost_usd":0.02,"result":"done"}`,
			want: Result{Subtype: "success", NumTurns: 3, DurationMS: 1200, TotalCostUSD: 0.02, Text: "done"},
		},
		{
			name: "max turns result",
			line: `{"type":"result","subtype":"error_max_turns","is_error":true,"num_turns":10}`,
			want: Result{Subtype: "error_max_turns", IsError: true, NumTurns: 10},
		},
		{
			name: "system init",
			line: `{"type":"system","subtype":"init","tools":["WebSearch"]}`,
			want: SystemMessage{Subtype: "init"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStreamJSONLine([]byte(tt.line)))
		})
	}
}

func TestParseStreamJSONLineAssistant(t *testing.T) {
	line := `{"type":"assistant","message":{"model":"claude-sonnet-4-5","content":[` +
		`{"type":"text","text":"Let me search."},` +
		`{"type":"tool_use","id":"toolu_1","name":"WebSearch","input":{"query":"go"}},` +
		`{"type":"thinking","thinking":"..."},` +
		`{"type":"tool_use","id":"toolu_2","name":"WebFetch","input":{}}]}}`

	msg, ok := ParseStreamJSONLine([]byte(line)).(AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4-5", msg.Model)
	require.Len(t, msg.Content, 4)
	assert.Equal(t, TextBlock{Text: "Let me search."}, msg.Content[0])
	assert.Equal(t, OtherBlock{Type: "thinking"}, msg.Content[2])

	uses := msg.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "WebSearch", uses[0].Name)
	assert.JSONEq(t, `{"query":"go"}`, string(uses[0].Input))
	assert.Equal(t, "WebFetch", uses[1].Name)
}

func TestParseStreamJSONLineUnknown(t *testing.T) {
	got := ParseStreamJSONLine([]byte(`not json`))
	unknown, ok := got.(Unknown)
	require.True(t, ok)
	assert.Equal(t, "not json", string(unknown.Raw))

	got = ParseStreamJSONLine([]byte(`{"type":"auth_status"}`))
	unknown, ok = got.(Unknown)
	require.True(t, ok)
	assert.Equal(t, "auth_status", unknown.Type)

	// User messages may carry string content; they must not fail parsing.
	_, ok = ParseStreamJSONLine([]byte(`{"type":"user","message":{"role":"user","content":"hi"}}`)).(UserMessage)
	assert.True(t, ok)
}

func TestClaudeCLIArgs(t *testing.T) {
	c := NewClaudeCLI("")
	assert.Equal(t, "claude", c.binary)

	args := c.Args(DefaultOptions("/srv/app", "claude-opus-4-1"))
	assert.Equal(t, []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
		"--max-turns", "10",
		"--permission-mode", "bypassPermissions",
		"--model", "claude-opus-4-1",
	}, args)

	args = c.Args(Options{Tools: "Read,WebSearch"})
	assert.Equal(t, []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--tools", "Read,WebSearch",
	}, args)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestClaudeCLIQueryStreamsMessages(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo '{"type":"system","subtype":"init"}'
echo '{"type":"stream_event","event":{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}}'
echo ''
echo '{"type":"result","subtype":"success","is_error":false,"num_turns":1}'
`)

	c := NewClaudeCLI(script)
	stream, err := c.Query(context.Background(), "hi", DefaultOptions(t.TempDir(), ""))
	require.NoError(t, err)
	defer stream.Close()

	var got []Message
	for stream.Next() {
		got = append(got, stream.Current())
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []Message{
		SystemMessage{Subtype: "init"},
		TextDelta{Text: "Hello"},
		Result{Subtype: "success", NumTurns: 1},
	}, got)
}

func TestClaudeCLIQueryFailureWithoutResult(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo '{"type":"system","subtype":"init"}'
echo 'authentication failed' >&2
exit 3
`)

	c := NewClaudeCLI(script)
	stream, err := c.Query(context.Background(), "hi", Options{})
	require.NoError(t, err)
	defer stream.Close()

	for stream.Next() {
	}
	require.Error(t, stream.Err())
	assert.Contains(t, stream.Err().Error(), "authentication failed")
}

func TestClaudeCLIQueryMissingBinary(t *testing.T) {
	c := NewClaudeCLI(filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := c.Query(context.Background(), "hi", Options{})
	require.Error(t, err)
}

func TestClaudeCLIQueryLargeToolResult(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
printf '{"type":"user","message":{"content":"'
head -c 2097152 /dev/zero | tr '\0' 'x'
printf '"}}\n'
echo '{"type":"result","subtype":"success","num_turns":2}'
`)

	c := NewClaudeCLI(script)
	stream, err := c.Query(context.Background(), "read the big file", Options{})
	require.NoError(t, err)
	defer stream.Close()

	var got []Message
	for stream.Next() {
		got = append(got, stream.Current())
	}
	require.NoError(t, stream.Err())
	require.Len(t, got, 2)
	assert.IsType(t, UserMessage{}, got[0])
	assert.Equal(t, Result{Subtype: "success", NumTurns: 2}, got[1])
}

func TestReadLineSkipsOversizedLines(t *testing.T) {
	input := "short\n" + strings.Repeat("x", 100) + "\nafter\nlast"
	r := bufio.NewReaderSize(strings.NewReader(input), 16)

	line, oversized, err := readLine(r, 40)
	require.NoError(t, err)
	assert.False(t, oversized)
	assert.Equal(t, "short\n", string(line))

	line, oversized, err = readLine(r, 40)
	require.NoError(t, err)
	assert.True(t, oversized)
	assert.Nil(t, line)

	line, oversized, err = readLine(r, 40)
	require.NoError(t, err)
	assert.False(t, oversized)
	assert.Equal(t, "after\n", string(line))

	line, _, err = readLine(r, 40)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "last", string(line))
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 5}
	b.Write([]byte("abc"))
	b.Write([]byte("defgh"))
	assert.Equal(t, "defgh", b.String())
}
