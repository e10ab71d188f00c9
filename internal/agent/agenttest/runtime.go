// Package agenttest provides scripted agent runtimes for tests.
package agenttest

import (
	"context"
	"sync"

	"github.com/capitalize-ai/agent-relay/internal/agent"
)

// Stream yields a fixed list of messages and then fails with Failure, if set.
// With WaitForCancel it instead blocks after the last message until the query
// context ends and fails with the context error.
type Stream struct {
	Messages      []agent.Message
	Failure       error
	WaitForCancel bool

	ctx     context.Context
	pos     int
	current agent.Message
	err     error
	closed  bool
}

// NewStream creates a stream over msgs.
func NewStream(msgs ...agent.Message) *Stream {
	return &Stream{Messages: msgs}
}

func (s *Stream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	if s.pos >= len(s.Messages) {
		s.err = s.Failure
		if s.WaitForCancel && s.ctx != nil {
			<-s.ctx.Done()
			s.err = s.ctx.Err()
		}
		return false
	}
	s.current = s.Messages[s.pos]
	s.pos++
	return true
}

func (s *Stream) Current() agent.Message { return s.current }
func (s *Stream) Err() error             { return s.err }

func (s *Stream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool { return s.closed }

// Runtime returns Stream for every query, or QueryErr when set.
type Runtime struct {
	Stream   *Stream
	QueryErr error

	mu      sync.Mutex
	prompts []string
	options []agent.Options
}

func (r *Runtime) Query(ctx context.Context, prompt string, opts agent.Options) (agent.Stream, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	r.options = append(r.options, opts)
	r.mu.Unlock()

	if r.QueryErr != nil {
		return nil, r.QueryErr
	}
	if r.Stream == nil {
		return NewStream(), nil
	}
	r.Stream.ctx = ctx
	return r.Stream, nil
}

func (r *Runtime) Name() string { return "scripted" }

// Prompts returns the prompts received so far.
func (r *Runtime) Prompts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prompts...)
}

// Options returns the options received so far.
func (r *Runtime) Options() []agent.Options {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]agent.Options(nil), r.options...)
}
