package agents

import (
	"encoding/json"
	"sync"
)

// AgentStatus is the lifecycle state of a tracked spawned agent.
type AgentStatus string

const (
	StatusPending     AgentStatus = "pending"
	StatusRunning     AgentStatus = "running"
	StatusRateLimited AgentStatus = "rate_limited"
	StatusCompleted   AgentStatus = "completed"
	StatusFailed      AgentStatus = "failed"
	StatusCancelled   AgentStatus = "cancelled"
)

// EntryStatus is the state of one tool call inside an agent's log.
type EntryStatus string

const (
	EntryRunning EntryStatus = "running"
	EntrySuccess EntryStatus = "success"
	EntryFailed  EntryStatus = "failed"
)

// Entry is one item of a spawned agent's rolling conversation log: either
// an assistant message (Text set) or a tool call (CallID/Name set).
type Entry struct {
	Text string

	CallID     string
	Name       string
	Input      json.RawMessage
	Status     EntryStatus
	Preview    string
	Error      string
	OutputFull string
}

// IsToolCall reports whether the entry describes a tool call.
func (e Entry) IsToolCall() bool { return e.CallID != "" }

// TrackedAgent is the UI-visible state of one spawned agent, keyed by the
// spawn_agent tool-call id. Written by the background agent task, read by
// the UI tick.
type TrackedAgent struct {
	ToolCallID    string
	AgentType     string
	Task          string
	Iteration     int
	MaxIterations int
	CurrentTool   string
	Conversation  []Entry
	RateLimited   bool
	RateLimitWait int // seconds
	Completed     bool
	Status        AgentStatus
}

// ProgressTracker is the shared map between background agent tasks and the
// UI. Writers take the lock unconditionally; the UI read path uses TryLock
// and skips the frame when contended so it never stalls on a writer.
//
// At most one writer per key: the task that Begin'd the id.
type ProgressTracker struct {
	mu     sync.Mutex
	agents map[string]*TrackedAgent
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{agents: make(map[string]*TrackedAgent)}
}

// Begin registers a spawned agent in Pending state.
func (p *ProgressTracker) Begin(toolCallID, agentType, task string, maxIterations int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agents[toolCallID] = &TrackedAgent{
		ToolCallID:    toolCallID,
		AgentType:     agentType,
		Task:          task,
		MaxIterations: maxIterations,
		Status:        StatusPending,
	}
}

// Update advances the iteration counter and current sub-tool. Also flips a
// Pending agent to Running.
func (p *ProgressTracker) Update(toolCallID string, iteration int, currentTool string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.agents[toolCallID]
	if a == nil || a.Completed {
		return
	}
	a.Iteration = iteration
	a.CurrentTool = currentTool
	if a.Status == StatusPending || a.Status == StatusRateLimited {
		a.Status = StatusRunning
		a.RateLimited = false
		a.RateLimitWait = 0
	}
}

// AppendEntry appends to the agent's conversation log. Entries are never
// truncated or rewritten, except through FinishEntry on a tool call.
func (p *ProgressTracker) AppendEntry(toolCallID string, entry Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.agents[toolCallID]
	if a == nil {
		return
	}
	a.Conversation = append(a.Conversation, entry)
}

// FinishEntry stamps the outcome onto the log entry with the given call id.
func (p *ProgressTracker) FinishEntry(toolCallID, entryCallID string, status EntryStatus, detail, outputFull string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.agents[toolCallID]
	if a == nil {
		return
	}
	for i := len(a.Conversation) - 1; i >= 0; i-- {
		e := &a.Conversation[i]
		if e.CallID != entryCallID {
			continue
		}
		e.Status = status
		if status == EntryFailed {
			e.Error = detail
		} else {
			e.Preview = detail
		}
		e.OutputFull = outputFull
		return
	}
}

// SetRateLimited marks the transient rate-limit state.
func (p *ProgressTracker) SetRateLimited(toolCallID string, limited bool, waitSecs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.agents[toolCallID]
	if a == nil || a.Completed {
		return
	}
	a.RateLimited = limited
	a.RateLimitWait = waitSecs
	if limited {
		a.Status = StatusRateLimited
	} else if a.Status == StatusRateLimited {
		a.Status = StatusRunning
	}
}

// Finish moves the agent to a terminal status. Completed is sticky: later
// writes to the entry are ignored.
func (p *ProgressTracker) Finish(toolCallID string, status AgentStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.agents[toolCallID]
	if a == nil || a.Completed {
		return
	}
	a.Status = status
	a.Completed = true
	a.RateLimited = false
	a.CurrentTool = ""
}

// TrySnapshot copies the tracked agents for rendering. Returns false
// without blocking when a writer holds the lock; the caller skips this
// frame and retries next tick.
func (p *ProgressTracker) TrySnapshot() ([]TrackedAgent, bool) {
	if !p.mu.TryLock() {
		return nil, false
	}
	defer p.mu.Unlock()
	out := make([]TrackedAgent, 0, len(p.agents))
	for _, a := range p.agents {
		copied := *a
		copied.Conversation = make([]Entry, len(a.Conversation))
		copy(copied.Conversation, a.Conversation)
		out = append(out, copied)
	}
	return out, true
}

// Get returns a copy of one tracked agent.
func (p *ProgressTracker) Get(toolCallID string) (TrackedAgent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.agents[toolCallID]
	if a == nil {
		return TrackedAgent{}, false
	}
	copied := *a
	copied.Conversation = make([]Entry, len(a.Conversation))
	copy(copied.Conversation, a.Conversation)
	return copied, true
}

// Clear drops all tracked agents. Called at turn end once the UI clears its
// focused-agent pointer.
func (p *ProgressTracker) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agents = make(map[string]*TrackedAgent)
}
