package agent

import (
	"context"
	"sync"
)

type streamItem struct {
	msg Message
	err error
}

// chanStream adapts a producer goroutine to the Stream interface. The
// producer runs until it returns or the stream is closed.
type chanStream struct {
	ctx    context.Context
	items  chan streamItem
	cancel context.CancelFunc

	current Message
	err     error

	closeOnce sync.Once
}

// emitFunc hands one message to the consumer. It returns false once the
// consumer is gone and the producer should stop.
type emitFunc func(Message) bool

func newChanStream(ctx context.Context, produce func(ctx context.Context, emit emitFunc) error) *chanStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &chanStream{
		ctx:    ctx,
		items:  make(chan streamItem),
		cancel: cancel,
	}

	emit := func(msg Message) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case s.items <- streamItem{msg: msg}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(s.items)
		if err := produce(ctx, emit); err != nil {
			select {
			case s.items <- streamItem{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return s
}

func (s *chanStream) Next() bool {
	if s.err != nil {
		return false
	}
	item, ok := <-s.items
	if !ok {
		// The producer may exit on cancellation without reporting it.
		s.err = s.ctx.Err()
		return false
	}
	if item.err != nil {
		s.err = item.err
		return false
	}
	s.current = item.msg
	return true
}

func (s *chanStream) Current() Message { return s.current }

func (s *chanStream) Err() error { return s.err }

func (s *chanStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		for range s.items {
		}
	})
	return nil
}
