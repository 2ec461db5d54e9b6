package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tedsh/ted/internal/engine"
	"github.com/tedsh/ted/internal/llm"
)

// Runner executes spawned agents: each Run is one background turn of a
// sub-model with its own system prompt and restricted tool set, reporting
// progress into the tracker under the spawn_agent tool-call id.
type Runner struct {
	Registry *Registry
	Tracker  *ProgressTracker
	Provider llm.Provider
	Model    string
}

// Run drives the sub-agent turn to completion and returns the agent's final
// text reply. The tool-call id keying the tracker rides in via
// llm.ContextWithCallID.
func (r *Runner) Run(ctx context.Context, agentType, task string, exec engine.Executor) (string, error) {
	callID := llm.CallIDFromContext(ctx)
	if callID == "" {
		return "", fmt.Errorf("spawn agent: no tool call id in context")
	}

	agent, err := r.Registry.Get(agentType)
	if err != nil {
		return "", err
	}

	r.Tracker.Begin(callID, agentType, task, agent.MaxIterations)

	reporter := &progressReporter{tracker: r.Tracker, callID: callID}
	model := agent.Model
	if model == "" {
		model = r.Model
	}

	eng := engine.New(r.Provider, model, &restrictedExecutor{inner: exec, allowed: agent.Tools}, nopContext{})
	eng.System = agent.SystemPrompt
	eng.MaxRounds = agent.MaxIterations
	eng.Surface = reporter

	conv := llm.NewConversation(llm.UserText(task))
	var interrupted atomic.Bool
	go func() {
		<-ctx.Done()
		interrupted.Store(true)
	}()

	result, err := eng.ProcessTurn(ctx, conv, reporter, &interrupted)
	reporter.flushText()
	if err != nil {
		r.Tracker.Finish(callID, StatusFailed)
		return "", err
	}
	if !result.Completed {
		r.Tracker.Finish(callID, StatusCancelled)
		return "", fmt.Errorf("agent %s cancelled", agentType)
	}
	r.Tracker.Finish(callID, StatusCompleted)

	msgs := conv.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleAssistant {
			if text := msgs[i].TextContent(); text != "" {
				return text, nil
			}
		}
	}
	return "", nil
}

// progressReporter bridges engine callbacks into tracker writes. It is both
// the sub-turn's observer and its surface; streamed text is buffered and
// flushed as one log entry when the next tool call starts or the turn ends.
type progressReporter struct {
	tracker *ProgressTracker
	callID  string
	text    strings.Builder
	calls   int
}

func (p *progressReporter) OnTextDelta(text string) {
	p.text.WriteString(text)
}

func (p *progressReporter) OnStreamEventTick() error { return nil }

func (p *progressReporter) OnRateLimited(delay time.Duration, attempt, maxRetries int) {
	p.tracker.SetRateLimited(p.callID, true, int(delay.Seconds()))
}

func (p *progressReporter) OnContextTooLong(current, limit int) {}

func (p *progressReporter) OnContextTrimmed(removed int) {}

func (p *progressReporter) ToolStarted(use llm.ToolUse, preview string) {
	p.flushText()
	p.calls++
	p.tracker.Update(p.callID, p.calls, use.Name)
	p.tracker.AppendEntry(p.callID, Entry{
		CallID: use.ID,
		Name:   use.Name,
		Input:  use.Input,
		Status: EntryRunning,
	})
}

func (p *progressReporter) ToolFinished(id string, output string, isError bool) {
	status := EntrySuccess
	if isError {
		status = EntryFailed
	}
	preview := output
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	p.tracker.FinishEntry(p.callID, id, status, preview, output)
}

func (p *progressReporter) Tick() {
	// the sub-turn clears rate-limit state once streaming resumes
	p.tracker.SetRateLimited(p.callID, false, 0)
}

func (p *progressReporter) flushText() {
	if p.text.Len() == 0 {
		return
	}
	p.tracker.AppendEntry(p.callID, Entry{Text: p.text.String()})
	p.text.Reset()
}

// restrictedExecutor narrows the parent executor to the agent's tool list
// and refuses nested spawn_agent calls.
type restrictedExecutor struct {
	inner   engine.Executor
	allowed []string
}

func (r *restrictedExecutor) ExecuteToolUse(ctx context.Context, use llm.ToolUse) (string, error) {
	if !r.allows(use.Name) {
		return "", fmt.Errorf("tool %s is not available to this agent", use.Name)
	}
	return r.inner.ExecuteToolUse(ctx, use)
}

func (r *restrictedExecutor) ApproveAndGetTool(name string, input json.RawMessage) error {
	return fmt.Errorf("agents cannot spawn further agents")
}

func (r *restrictedExecutor) Preview(name string, input json.RawMessage) string {
	return r.inner.Preview(name, input)
}

func (r *restrictedExecutor) allows(name string) bool {
	if name == "spawn_agent" {
		return false
	}
	if len(r.allowed) == 0 {
		return true
	}
	for _, a := range r.allowed {
		if a == name {
			return true
		}
	}
	return false
}

// nopContext keeps sub-agent turns out of the session store; only the
// parent turn's messages and tool calls are history.
type nopContext struct{}

func (nopContext) StoreMessage(llm.Role, string) error { return nil }

func (nopContext) StoreToolCall(string, json.RawMessage, string, bool) error { return nil }

func (nopContext) AutoTrim(conv *llm.Conversation, current, limit int) (int, error) { return 0, nil }
