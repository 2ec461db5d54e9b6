package engine

import "time"

// TurnObserver is the callback surface the turn engine invokes while a turn
// runs. OnTextDelta and OnStreamEventTick make it usable directly as the
// stream decoder's observer; returning llm.ErrStreamInterrupted from
// OnStreamEventTick aborts the stream cooperatively.
type TurnObserver interface {
	OnTextDelta(text string)
	OnStreamEventTick() error
	OnRateLimited(delay time.Duration, attempt, maxRetries int)
	OnContextTooLong(current, limit int)
	OnContextTrimmed(removed int)
}

// NoopObserver is a TurnObserver for headless callers.
type NoopObserver struct{}

func (NoopObserver) OnTextDelta(string)                    {}
func (NoopObserver) OnStreamEventTick() error              { return nil }
func (NoopObserver) OnRateLimited(time.Duration, int, int) {}
func (NoopObserver) OnContextTooLong(int, int)             {}
func (NoopObserver) OnContextTrimmed(int)                  {}
