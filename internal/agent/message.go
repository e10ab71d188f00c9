package agent

import "encoding/json"

// Result subtypes reported by agent runtimes.
const (
	SubtypeSuccess              = "success"
	SubtypeErrorMaxTurns        = "error_max_turns"
	SubtypeErrorDuringExecution = "error_during_execution"
	SubtypeErrorMaxTokens       = "error_max_tokens"
	SubtypeErrorRefusal         = "error_refusal"
)

// Message is one event produced by an agent runtime. The set of
// implementations is closed; consumers switch on the concrete type.
type Message interface {
	agentMessage()
}

// TextDelta is a streamed fragment of assistant text.
type TextDelta struct {
	Text string
}

// AssistantMessage is a complete assistant turn.
type AssistantMessage struct {
	Model   string
	Content []ContentBlock
}

// ToolUses returns the tool invocation blocks of the message in order.
func (m AssistantMessage) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, block := range m.Content {
		if tu, ok := block.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// ToolProgress is an out-of-band notice that a tool is still running.
type ToolProgress struct {
	ToolUseID      string
	ToolName       string
	ElapsedSeconds float64
}

// Result is the terminal event of a query.
type Result struct {
	Subtype      string
	IsError      bool
	NumTurns     int
	DurationMS   int64
	TotalCostUSD float64
	Text         string
	Errors       []string
}

// Success reports whether the query finished with the success subtype.
func (r Result) Success() bool {
	return r.Subtype == SubtypeSuccess
}

// SystemMessage is runtime bookkeeping (init, compaction and similar).
type SystemMessage struct {
	Subtype string
}

// UserMessage carries tool results fed back into the conversation.
type UserMessage struct {
	Raw json.RawMessage
}

// PartialEvent is a raw streaming event other than a text delta.
type PartialEvent struct {
	EventType string
}

// Unknown preserves a line the parser did not recognize.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (TextDelta) agentMessage()        {}
func (AssistantMessage) agentMessage() {}
func (ToolProgress) agentMessage()     {}
func (Result) agentMessage()           {}
func (SystemMessage) agentMessage()    {}
func (UserMessage) agentMessage()      {}
func (PartialEvent) agentMessage()     {}
func (Unknown) agentMessage()          {}

// ContentBlock is one block of an assistant message.
type ContentBlock interface {
	contentBlock()
}

// TextBlock is plain assistant text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a tool invocation chosen by the agent.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// OtherBlock is any content block kind not modeled above.
type OtherBlock struct {
	Type string
}

func (TextBlock) contentBlock()    {}
func (ToolUseBlock) contentBlock() {}
func (OtherBlock) contentBlock()   {}
