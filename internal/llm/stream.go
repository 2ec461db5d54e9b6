package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a producer goroutine into the Stream interface. The
// producer sends events on the channel and returns; a non-nil return error is
// delivered as the final Recv result. Close cancels the producer's context.
type eventStream struct {
	events    chan Event
	err       error
	errMu     sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// newEventStream starts produce in a goroutine and returns a Stream over its
// events. Recv returns io.EOF after the producer finishes cleanly.
func newEventStream(ctx context.Context, produce func(ctx context.Context, out chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.events)
		if err := produce(ctx, s.events); err != nil {
			s.errMu.Lock()
			s.err = err
			s.errMu.Unlock()
		}
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	ev, ok := <-s.events
	if !ok {
		s.errMu.Lock()
		err := s.err
		s.errMu.Unlock()
		if err != nil {
			return Event{}, err
		}
		return Event{}, io.EOF
	}
	return ev, nil
}

func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		go func() {
			for range s.events {
			}
		}()
	})
	return nil
}
