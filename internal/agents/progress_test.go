package agents

import (
	"sync"
	"testing"
)

func TestProgressTracker_Lifecycle(t *testing.T) {
	p := NewProgressTracker()
	p.Begin("b", "plan", "outline", 10)

	a, ok := p.Get("b")
	if !ok || a.Status != StatusPending || a.AgentType != "plan" {
		t.Fatalf("after Begin: %+v ok=%v", a, ok)
	}

	p.Update("b", 1, "file_read")
	a, _ = p.Get("b")
	if a.Status != StatusRunning || a.Iteration != 1 || a.CurrentTool != "file_read" {
		t.Errorf("after Update: %+v", a)
	}

	p.SetRateLimited("b", true, 30)
	a, _ = p.Get("b")
	if a.Status != StatusRateLimited || !a.RateLimited || a.RateLimitWait != 30 {
		t.Errorf("after SetRateLimited: %+v", a)
	}

	p.SetRateLimited("b", false, 0)
	a, _ = p.Get("b")
	if a.Status != StatusRunning || a.RateLimited {
		t.Errorf("rate limit should be transient: %+v", a)
	}

	p.Finish("b", StatusCompleted)
	a, _ = p.Get("b")
	if !a.Completed || a.Status != StatusCompleted {
		t.Errorf("after Finish: %+v", a)
	}

	// completed is sticky
	p.Update("b", 5, "shell")
	p.Finish("b", StatusFailed)
	a, _ = p.Get("b")
	if a.Status != StatusCompleted || a.Iteration != 1 {
		t.Errorf("writes after completion must be ignored: %+v", a)
	}
}

func TestProgressTracker_ConversationAppendsOnly(t *testing.T) {
	p := NewProgressTracker()
	p.Begin("b", "plan", "outline", 10)

	p.AppendEntry("b", Entry{Text: "thinking about it"})
	p.AppendEntry("b", Entry{CallID: "c1", Name: "file_read", Status: EntryRunning})
	p.FinishEntry("b", "c1", EntrySuccess, "42 lines", "full file content")
	p.AppendEntry("b", Entry{Text: "done reading"})

	a, _ := p.Get("b")
	if len(a.Conversation) != 3 {
		t.Fatalf("conversation has %d entries, want 3", len(a.Conversation))
	}
	call := a.Conversation[1]
	if !call.IsToolCall() || call.Status != EntrySuccess || call.Preview != "42 lines" || call.OutputFull != "full file content" {
		t.Errorf("tool entry = %+v", call)
	}
}

func TestProgressTracker_FinishEntryFailure(t *testing.T) {
	p := NewProgressTracker()
	p.Begin("b", "plan", "outline", 10)
	p.AppendEntry("b", Entry{CallID: "c1", Name: "shell", Status: EntryRunning})
	p.FinishEntry("b", "c1", EntryFailed, "exit status 1", "")

	a, _ := p.Get("b")
	if e := a.Conversation[0]; e.Status != EntryFailed || e.Error != "exit status 1" {
		t.Errorf("entry = %+v", e)
	}
}

func TestProgressTracker_TrySnapshotSkipsWhenContended(t *testing.T) {
	p := NewProgressTracker()
	p.Begin("b", "plan", "outline", 10)

	p.mu.Lock()
	if _, ok := p.TrySnapshot(); ok {
		t.Error("TrySnapshot must not block on a held lock")
	}
	p.mu.Unlock()

	snap, ok := p.TrySnapshot()
	if !ok || len(snap) != 1 {
		t.Fatalf("snapshot = %+v ok=%v", snap, ok)
	}
}

func TestProgressTracker_SnapshotIsACopy(t *testing.T) {
	p := NewProgressTracker()
	p.Begin("b", "plan", "outline", 10)
	p.AppendEntry("b", Entry{Text: "one"})

	snap, _ := p.TrySnapshot()
	snap[0].Conversation[0].Text = "mutated"
	snap[0].Status = StatusFailed

	a, _ := p.Get("b")
	if a.Conversation[0].Text != "one" || a.Status != StatusPending {
		t.Errorf("snapshot mutation leaked into tracker: %+v", a)
	}
}

func TestProgressTracker_ConcurrentWritersAndReader(t *testing.T) {
	p := NewProgressTracker()
	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		p.Begin(id, "plan", "task "+id, 5)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 1; i <= 20; i++ {
				p.Update(id, i, "shell")
				p.AppendEntry(id, Entry{Text: "step"})
			}
			p.Finish(id, StatusCompleted)
		}(id)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	for {
		select {
		case <-done:
			snap, ok := p.TrySnapshot()
			if !ok {
				continue
			}
			if len(snap) != 3 {
				t.Fatalf("snapshot has %d agents", len(snap))
			}
			for _, a := range snap {
				if !a.Completed || len(a.Conversation) != 20 {
					t.Errorf("agent %s = completed=%v entries=%d", a.ToolCallID, a.Completed, len(a.Conversation))
				}
			}
			return
		default:
			p.TrySnapshot()
		}
	}
}
