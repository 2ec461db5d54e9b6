package chat

import (
	"sync/atomic"
	"time"

	"github.com/tedsh/ted/internal/engine"
	"github.com/tedsh/ted/internal/llm"
)

// turnEvent is one UI-relevant happening inside a running turn. The engine
// goroutine produces them through the bridge; the bubbletea loop consumes
// them one per Update.
type turnEvent struct {
	kind turnEventKind

	text string // textDelta

	use     llm.ToolUse // toolStarted
	preview string

	toolID  string // toolFinished
	output  string
	isError bool

	status string // statusNotice

	result engine.TurnResult // turnDone
	err    error
}

type turnEventKind int

const (
	eventTextDelta turnEventKind = iota
	eventToolStarted
	eventToolFinished
	eventTick
	eventStatusNotice
	eventTurnDone
)

// bridge adapts engine callbacks into turnEvents. It is both the turn's
// observer and its surface. Sends never block: the engine must keep
// streaming even when the UI loop is briefly behind, so excess ticks are
// dropped. The interrupted flag is shared with the model so an Esc press
// aborts the stream at the next event tick.
type bridge struct {
	events      chan turnEvent
	interrupted *atomic.Bool
}

func newBridge(interrupted *atomic.Bool) *bridge {
	return &bridge{
		events:      make(chan turnEvent, 256),
		interrupted: interrupted,
	}
}

func (b *bridge) send(ev turnEvent) {
	select {
	case b.events <- ev:
	default:
	}
}

func (b *bridge) OnTextDelta(text string) {
	b.send(turnEvent{kind: eventTextDelta, text: text})
}

func (b *bridge) OnStreamEventTick() error {
	if b.interrupted.Load() {
		return llm.ErrStreamInterrupted
	}
	return nil
}

func (b *bridge) OnRateLimited(delay time.Duration, attempt, maxRetries int) {
	b.send(turnEvent{
		kind:   eventStatusNotice,
		status: rateLimitNotice(delay, attempt, maxRetries),
	})
}

func (b *bridge) OnContextTooLong(current, limit int) {
	b.send(turnEvent{kind: eventStatusNotice, status: "Context too long, trimming oldest messages..."})
}

func (b *bridge) OnContextTrimmed(removed int) {
	b.send(turnEvent{kind: eventStatusNotice, status: trimNotice(removed)})
}

func (b *bridge) ToolStarted(use llm.ToolUse, preview string) {
	b.send(turnEvent{kind: eventToolStarted, use: use, preview: preview})
}

func (b *bridge) ToolFinished(id string, output string, isError bool) {
	b.send(turnEvent{kind: eventToolFinished, toolID: id, output: output, isError: isError})
}

func (b *bridge) Tick() {
	b.send(turnEvent{kind: eventTick})
}

// done delivers the final event reliably; unlike send it blocks until the
// UI loop picks it up.
func (b *bridge) done(result engine.TurnResult, err error) {
	b.events <- turnEvent{kind: eventTurnDone, result: result, err: err}
}
