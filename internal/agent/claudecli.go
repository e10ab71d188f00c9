package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// maxLineSize caps a single stream-json line. Longer lines, typically huge
// tool results echoed back as user messages, are skipped rather than failing
// the stream.
const maxLineSize = 64 * 1024 * 1024

// ClaudeCLI runs queries through the Claude Code CLI in stream-json mode.
type ClaudeCLI struct {
	binary string
}

// NewClaudeCLI creates a CLI runtime. An empty binary means "claude" on PATH.
func NewClaudeCLI(binary string) *ClaudeCLI {
	if binary == "" {
		binary = "claude"
	}
	return &ClaudeCLI{binary: binary}
}

// Name returns the backend name.
func (c *ClaudeCLI) Name() string {
	return string(BackendClaudeCLI)
}

// Args builds the CLI arguments for opts. The prompt is written to stdin.
func (c *ClaudeCLI) Args(opts Options) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}
	if opts.IncludePartialMessages {
		args = append(args, "--include-partial-messages")
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	// The claude_code preset is the CLI's default tool set.
	if opts.Tools != "" && opts.Tools != PresetClaudeCode {
		args = append(args, "--tools", opts.Tools)
	}
	return args
}

// Query spawns the CLI and returns a stream over its stdout.
func (c *ClaudeCLI) Query(ctx context.Context, prompt string, opts Options) (Stream, error) {
	command := exec.CommandContext(ctx, c.binary, c.Args(opts)...)
	command.Dir = opts.Cwd

	stderr := &tailBuffer{limit: 4096}
	command.Stderr = stderr

	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}

	stdout, err := command.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := command.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("starting %s: %w", c.binary, err)
	}

	go func() {
		io.WriteString(stdin, prompt)
		stdin.Close()
	}()

	return &cliStream{
		ctx:     ctx,
		command: command,
		reader:  bufio.NewReaderSize(stdout, 64*1024),
		stderr:  stderr,
	}, nil
}

type cliStream struct {
	ctx     context.Context
	command *exec.Cmd
	reader  *bufio.Reader
	stderr  *tailBuffer

	current   Message
	err       error
	readErr   error
	skipped   int
	sawResult bool
	done      bool

	waitOnce sync.Once
	waitErr  error
}

func (s *cliStream) Next() bool {
	if s.done {
		return false
	}
	for s.readErr == nil {
		line, oversized, err := readLine(s.reader, maxLineSize)
		s.readErr = err
		if oversized {
			s.skipped++
			continue
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		msg := ParseStreamJSONLine(line)
		if _, ok := msg.(Result); ok {
			s.sawResult = true
		}
		s.current = msg
		return true
	}
	s.done = true
	if errors.Is(s.readErr, io.EOF) {
		s.finish(nil)
	} else {
		s.finish(s.readErr)
	}
	return false
}

// readLine reads one newline-terminated line. A line longer than limit is
// consumed and discarded, and reported as oversized.
func readLine(r *bufio.Reader, limit int) (line []byte, oversized bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > limit {
				oversized = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, oversized, err
	}
}

func (s *cliStream) finish(readErr error) {
	waitErr := s.wait()
	switch {
	case readErr != nil:
		s.err = fmt.Errorf("reading claude output: %w", readErr)
	case s.ctx.Err() != nil && !s.sawResult:
		s.err = fmt.Errorf("claude query aborted: %w", s.ctx.Err())
	case waitErr != nil && !s.sawResult:
		s.err = fmt.Errorf("claude exited before a result (%d oversized lines skipped): %w: %s",
			s.skipped, waitErr, s.stderr.String())
	}
}

func (s *cliStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.command.Wait()
	})
	return s.waitErr
}

func (s *cliStream) Current() Message { return s.current }

func (s *cliStream) Err() error { return s.err }

func (s *cliStream) Close() error {
	if !s.done {
		s.done = true
		if s.command.Process != nil {
			s.command.Process.Kill()
		}
	}
	s.wait()
	return nil
}

// streamJSONEnvelope is the common header of every stream-json line.
type streamJSONEnvelope struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

// ParseStreamJSONLine converts one line of CLI stream-json output into a
// Message. Lines that cannot be decoded become Unknown.
func ParseStreamJSONLine(line []byte) Message {
	var envelope streamJSONEnvelope
	if err := json.Unmarshal(line, &envelope); err != nil {
		return Unknown{Raw: copyRaw(line)}
	}

	switch envelope.Type {
	case "stream_event":
		return parseStreamEvent(line)
	case "assistant":
		return parseAssistant(line)
	case "tool_progress":
		var progress struct {
			ToolUseID          string  `json:"tool_use_id"`
			ToolName           string  `json:"tool_name"`
			ElapsedTimeSeconds float64 `json:"elapsed_time_seconds"`
		}
		if err := json.Unmarshal(line, &progress); err != nil {
			return Unknown{Type: envelope.Type, Raw: copyRaw(line)}
		}
		return ToolProgress{
			ToolUseID:      progress.ToolUseID,
			ToolName:       progress.ToolName,
			ElapsedSeconds: progress.ElapsedTimeSeconds,
		}
	case "result":
		return parseResult(envelope.Subtype, line)
	case "system":
		return SystemMessage{Subtype: envelope.Subtype}
	case "user":
		return UserMessage{Raw: copyRaw(line)}
	default:
		return Unknown{Type: envelope.Type, Raw: copyRaw(line)}
	}
}

func parseStreamEvent(line []byte) Message {
	var partial struct {
		Event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		} `json:"event"`
	}
	if err := json.Unmarshal(line, &partial); err != nil {
		return Unknown{Type: "stream_event", Raw: copyRaw(line)}
	}
	if partial.Event.Type == "content_block_delta" && partial.Event.Delta.Type == "text_delta" {
		return TextDelta{Text: partial.Event.Delta.Text}
	}
	return PartialEvent{EventType: partial.Event.Type}
}

func parseAssistant(line []byte) Message {
	var assistant struct {
		Message struct {
			Model   string            `json:"model"`
			Content []json.RawMessage `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(line, &assistant); err != nil {
		return Unknown{Type: "assistant", Raw: copyRaw(line)}
	}

	msg := AssistantMessage{Model: assistant.Message.Model}
	for _, raw := range assistant.Message.Content {
		var block struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(raw, &block); err != nil {
			continue
		}
		switch block.Type {
		case "text":
			msg.Content = append(msg.Content, TextBlock{Text: block.Text})
		case "tool_use", "server_tool_use":
			msg.Content = append(msg.Content, ToolUseBlock{ID: block.ID, Name: block.Name, Input: block.Input})
		default:
			msg.Content = append(msg.Content, OtherBlock{Type: block.Type})
		}
	}
	return msg
}

func parseResult(subtype string, line []byte) Message {
	var result struct {
		IsError      bool     `json:"is_error"`
		NumTurns     int      `json:"num_turns"`
		DurationMS   int64    `json:"duration_ms"`
		TotalCostUSD float64  `json:"total_cost_usd"`
		Result       string   `json:"result"`
		Errors       []string `json:"errors"`
	}
	if err := json.Unmarshal(line, &result); err != nil {
		return Result{Subtype: subtype, IsError: true}
	}
	return Result{
		Subtype:      subtype,
		IsError:      result.IsError,
		NumTurns:     result.NumTurns,
		DurationMS:   result.DurationMS,
		TotalCostUSD: result.TotalCostUSD,
		Text:         result.Result,
		Errors:       result.Errors,
	}
}

func copyRaw(line []byte) json.RawMessage {
	return append(json.RawMessage(nil), line...)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
