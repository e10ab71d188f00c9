// Package agent provides access to external agent runtimes. A runtime takes a
// composite prompt and yields a lazy stream of typed messages; the reasoning,
// tool execution and permission handling all happen on the runtime side.
package agent

import (
	"context"
	"errors"
	"fmt"
)

// Tool presets and permission modes.
const (
	PresetClaudeCode = "claude_code"

	PermissionBypass = "bypassPermissions"
)

// DefaultMaxTurns bounds every query.
const DefaultMaxTurns = 10

var (
	// ErrUnknownBackend is returned by NewRuntime for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown agent backend")

	// ErrMissingAPIKey is returned when a hosted backend has no credentials.
	ErrMissingAPIKey = errors.New("API key is required")
)

// Options parameterize a single query.
type Options struct {
	MaxTurns               int
	Tools                  string
	PermissionMode         string
	IncludePartialMessages bool
	Cwd                    string
	Model                  string
}

// DefaultOptions returns the fixed query configuration used by the relay.
func DefaultOptions(cwd, model string) Options {
	return Options{
		MaxTurns:               DefaultMaxTurns,
		Tools:                  PresetClaudeCode,
		PermissionMode:         PermissionBypass,
		IncludePartialMessages: true,
		Cwd:                    cwd,
		Model:                  model,
	}
}

// Stream is a lazy sequence of runtime messages.
//
//	for stream.Next() {
//	    msg := stream.Current()
//	}
//	if err := stream.Err(); err != nil { ... }
type Stream interface {
	// Next advances to the next message, blocking until one is available.
	// It returns false when the sequence is exhausted or failed.
	Next() bool

	// Current returns the message Next advanced to.
	Current() Message

	// Err returns the error that stopped iteration, if any.
	Err() error

	// Close releases the underlying resources. It is safe to call more than once.
	Close() error
}

// Runtime opens queries against an agent backend.
type Runtime interface {
	// Query starts a query. Errors returned here happen before any message
	// was produced; later failures are reported by Stream.Err.
	Query(ctx context.Context, prompt string, opts Options) (Stream, error)

	// Name returns the backend name.
	Name() string
}

// Backend is the name of a runtime implementation.
type Backend string

const (
	BackendClaudeCLI Backend = "claude-cli"
	BackendAnthropic Backend = "anthropic"
	BackendOpenAI    Backend = "openai"
)

// Config selects and configures a backend.
type Config struct {
	Backend         Backend
	ClaudeBinary    string
	AnthropicAPIKey string
	AnthropicURL    string
	OpenAIAPIKey    string
	OpenAIURL       string
}

// NewRuntime creates a runtime for the configured backend.
func NewRuntime(cfg Config) (Runtime, error) {
	switch cfg.Backend {
	case BackendClaudeCLI, "":
		return NewClaudeCLI(cfg.ClaudeBinary), nil
	case BackendAnthropic:
		return NewAnthropicRuntime(cfg.AnthropicAPIKey, cfg.AnthropicURL)
	case BackendOpenAI:
		return NewOpenAIRuntime(cfg.OpenAIAPIKey, cfg.OpenAIURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
