package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tedsh/ted/internal/llm"
)

// pollInterval paces the UI pump while tools run. Tests shorten it.
var pollInterval = 100 * time.Millisecond

const spawnAgentToolName = "spawn_agent"

// Executor dispatches tool calls on behalf of the engine.
type Executor interface {
	ExecuteToolUse(ctx context.Context, use llm.ToolUse) (string, error)
	// ApproveAndGetTool runs the policy check before a spawn_agent call is
	// dispatched in the background. A non-nil error denies the call.
	ApproveAndGetTool(name string, input json.RawMessage) error
	Preview(name string, input json.RawMessage) string
}

// Surface is the slice of the UI the strategy touches while tools run.
// Tick is called on every poll: drain input, sync spawned-agent progress
// into display state, repaint.
type Surface interface {
	ToolStarted(use llm.ToolUse, preview string)
	ToolFinished(id string, output string, isError bool)
	Tick()
}

// NoopSurface is a Surface for headless callers.
type NoopSurface struct{}

func (NoopSurface) ToolStarted(llm.ToolUse, string)   {}
func (NoopSurface) ToolFinished(string, string, bool) {}
func (NoopSurface) Tick()                             {}

// ExecResult is the outcome of executing one batch of tool uses.
type ExecResult struct {
	Results      []llm.ToolResult
	CancelledIDs map[string]bool
}

type agentOutcome struct {
	id     string
	result llm.ToolResult
}

// ExecuteToolUses runs a batch of tool uses: spawn_agent calls go to
// background goroutines, everything else runs sequentially, and the surface
// is ticked on a poll interval throughout so the UI stays live. Regular
// results keep input order; agent results follow in completion order. Every
// input id gets exactly one result: ids skipped after an interruption come
// back as "Cancelled by user" errors and land in CancelledIDs.
func ExecuteToolUses(ctx context.Context, uses []llm.ToolUse, exec Executor, surface Surface, interrupted *atomic.Bool) ExecResult {
	if surface == nil {
		surface = NoopSurface{}
	}

	var agentCalls, regularCalls []llm.ToolUse
	for _, use := range uses {
		if use.Name == spawnAgentToolName {
			agentCalls = append(agentCalls, use)
		} else {
			regularCalls = append(regularCalls, use)
		}
		surface.ToolStarted(use, exec.Preview(use.Name, use.Input))
	}

	// Launch authorized agent calls in the background; denials resolve
	// immediately.
	var agentResults []llm.ToolResult
	outcomes := make(chan agentOutcome, len(agentCalls))
	pending := 0
	for _, use := range agentCalls {
		if err := exec.ApproveAndGetTool(use.Name, use.Input); err != nil {
			denied := llm.ToolResult{ToolUseID: use.ID, Content: err.Error(), IsError: true}
			agentResults = append(agentResults, denied)
			surface.ToolFinished(use.ID, denied.Content, true)
			continue
		}
		pending++
		go runAgentCall(ctx, use, exec, outcomes)
	}

	results := make([]llm.ToolResult, 0, len(uses))
	results = append(results, executeRegulars(ctx, regularCalls, exec, surface, interrupted)...)

	// Await background agents, pumping the surface between polls.
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for pending > 0 && !interrupted.Load() {
		select {
		case out := <-outcomes:
			pending--
			agentResults = append(agentResults, out.result)
			surface.ToolFinished(out.id, out.result.Content, out.result.IsError)
		case <-ticker.C:
			surface.Tick()
		}
	}
	// Interruption may leave outcomes queued; collect whatever already
	// finished without blocking.
	for pending > 0 {
		select {
		case out := <-outcomes:
			pending--
			agentResults = append(agentResults, out.result)
			surface.ToolFinished(out.id, out.result.Content, out.result.IsError)
		default:
			pending = 0
		}
	}
	results = append(results, agentResults...)

	// Reconcile: every input id must be answered.
	answered := make(map[string]bool, len(results))
	for _, r := range results {
		answered[r.ToolUseID] = true
	}
	cancelled := make(map[string]bool)
	for _, use := range uses {
		if answered[use.ID] {
			continue
		}
		results = append(results, llm.ToolResult{
			ToolUseID: use.ID,
			Content:   "Cancelled by user",
			IsError:   true,
		})
		cancelled[use.ID] = true
		surface.ToolFinished(use.ID, "Cancelled by user", true)
	}

	return ExecResult{Results: results, CancelledIDs: cancelled}
}

func runAgentCall(ctx context.Context, use llm.ToolUse, exec Executor, outcomes chan<- agentOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcomes <- agentOutcome{id: use.ID, result: llm.ToolResult{
				ToolUseID: use.ID,
				Content:   fmt.Sprintf("agent task panicked: %v", r),
				IsError:   true,
			}}
		}
	}()
	output, err := exec.ExecuteToolUse(llm.ContextWithCallID(ctx, use.ID), use)
	result := llm.ToolResult{ToolUseID: use.ID, Content: output}
	if err != nil {
		result.Content = err.Error()
		result.IsError = true
	}
	outcomes <- agentOutcome{id: use.ID, result: result}
}

// executeRegulars runs non-agent tools one at a time, racing each against
// the poll ticker so input and repaints keep flowing. An interruption stops
// new launches and abandons the in-flight tool; missing ids are reconciled
// by the caller.
func executeRegulars(ctx context.Context, calls []llm.ToolUse, exec Executor, surface Surface, interrupted *atomic.Bool) []llm.ToolResult {
	var results []llm.ToolResult
	for _, use := range calls {
		if interrupted.Load() {
			break
		}

		done := make(chan llm.ToolResult, 1)
		go func(use llm.ToolUse) {
			defer func() {
				if r := recover(); r != nil {
					done <- llm.ToolResult{
						ToolUseID: use.ID,
						Content:   fmt.Sprintf("tool panicked: %v", r),
						IsError:   true,
					}
				}
			}()
			output, err := exec.ExecuteToolUse(ctx, use)
			result := llm.ToolResult{ToolUseID: use.ID, Content: output}
			if err != nil {
				result.Content = err.Error()
				result.IsError = true
			}
			done <- result
		}(use)

		ticker := time.NewTicker(pollInterval)
		finished := false
		for !finished {
			select {
			case result := <-done:
				results = append(results, result)
				surface.ToolFinished(use.ID, previewOutput(result.Content), result.IsError)
				finished = true
			case <-ticker.C:
				surface.Tick()
				if interrupted.Load() {
					finished = true
				}
			}
		}
		ticker.Stop()
		if interrupted.Load() {
			break
		}
	}
	return results
}

// previewOutput truncates tool output for the result row; the full output
// stays in the ToolResult for the detail view.
func previewOutput(output string) string {
	if len(output) > 100 {
		return output[:100] + "..."
	}
	return output
}
