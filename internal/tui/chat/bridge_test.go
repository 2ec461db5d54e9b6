package chat

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tedsh/ted/internal/engine"
	"github.com/tedsh/ted/internal/llm"
)

func TestBridge_SendNeverBlocks(t *testing.T) {
	b := newBridge(new(atomic.Bool))
	// overflow the buffer; extra events are dropped, not deadlocked
	for i := 0; i < 1000; i++ {
		b.OnTextDelta("x")
	}
	if len(b.events) != cap(b.events) {
		t.Errorf("buffered = %d, cap = %d", len(b.events), cap(b.events))
	}
}

func TestBridge_TickAbortsStreamAfterInterrupt(t *testing.T) {
	interrupted := new(atomic.Bool)
	b := newBridge(interrupted)

	if err := b.OnStreamEventTick(); err != nil {
		t.Fatalf("OnStreamEventTick() before interrupt = %v, want nil", err)
	}

	interrupted.Store(true)
	if err := b.OnStreamEventTick(); !errors.Is(err, llm.ErrStreamInterrupted) {
		t.Errorf("OnStreamEventTick() after interrupt = %v, want ErrStreamInterrupted", err)
	}
}

func TestBridge_DoneDelivers(t *testing.T) {
	b := newBridge(new(atomic.Bool))
	go b.done(engine.TurnResult{Completed: true, Rounds: 2}, nil)

	select {
	case ev := <-b.events:
		if ev.kind != eventTurnDone || !ev.result.Completed || ev.result.Rounds != 2 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("done event never arrived")
	}
}

func TestBridge_EventMapping(t *testing.T) {
	b := newBridge(new(atomic.Bool))
	b.ToolStarted(llm.ToolUse{ID: "t1", Name: "shell"}, "ls")
	b.ToolFinished("t1", "ok", false)
	b.OnRateLimited(2*time.Second, 1, 5)
	b.OnContextTrimmed(4)
	b.Tick()

	wantKinds := []turnEventKind{eventToolStarted, eventToolFinished, eventStatusNotice, eventStatusNotice, eventTick}
	for i, want := range wantKinds {
		ev := <-b.events
		if ev.kind != want {
			t.Errorf("event %d kind = %d, want %d", i, ev.kind, want)
		}
	}
}

func TestTruncateAndFirstLine(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("a very long task description", 10); got != "a very ..." {
		t.Errorf("truncate = %q", got)
	}
	if got := firstLine("line one\nline two"); got != "line one" {
		t.Errorf("firstLine = %q", got)
	}
}
