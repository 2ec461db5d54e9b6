package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/tedsh/ted/internal/llm"
)

const (
	// DefaultMaxTurnRounds bounds the model/tool exchanges in one turn.
	DefaultMaxTurnRounds = 30
	// DefaultMaxRetries bounds rate-limit retries per model call.
	DefaultMaxRetries = 5
	// DefaultBaseBackoff seeds the exponential retry backoff.
	DefaultBaseBackoff = 1 * time.Second

	maxBackoff = 30 * time.Second

	loopGuidance = "You have made the same tool call several times with identical input. " +
		"The result will not change; try a different approach."

	turnLimitMessage = "Reached the maximum number of tool rounds for this request. Stopping here."
)

// ContextManager is the persistence surface the engine writes through.
// Writes are history, not conversation state: they are never rolled back.
type ContextManager interface {
	StoreMessage(role llm.Role, content string) error
	StoreToolCall(name string, input json.RawMessage, output string, isError bool) error
	// AutoTrim drops the oldest messages so the conversation fits the
	// context window again, returning how many were removed. current and
	// limit are the provider's token counts from the overflow error (zero
	// when unreported). It must keep tool-use/tool-result pairs together.
	AutoTrim(conv *llm.Conversation, current, limit int) (int, error)
}

// Engine drives one user turn: model call, tool execution, repeat until the
// model stops asking for tools.
type Engine struct {
	Provider llm.Provider
	Model    string
	System   string
	Tools    []llm.ToolSpec

	Executor Executor
	Context  ContextManager
	Surface  Surface

	MaxRounds   int
	MaxRetries  int
	BaseBackoff time.Duration

	// sleep is swapped out by tests
	sleep func(ctx context.Context, d time.Duration) error
}

// TurnResult reports what one completed turn did.
type TurnResult struct {
	Completed bool
	Rounds    int
	Usage     llm.Usage
}

func New(provider llm.Provider, model string, executor Executor, contextMgr ContextManager) *Engine {
	return &Engine{
		Provider:    provider,
		Model:       model,
		Executor:    executor,
		Context:     contextMgr,
		Surface:     NoopSurface{},
		MaxRounds:   DefaultMaxTurnRounds,
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
		sleep:       sleepCtx,
	}
}

// ProcessTurn runs the agent loop for one user turn. The caller has already
// appended the user message. On normal completion the conversation gains the
// assistant and tool-result messages of the turn; on interruption or fatal
// error it is truncated back to its entry length and (false, err) is
// returned, err being nil for a clean interruption.
func (e *Engine) ProcessTurn(ctx context.Context, conv *llm.Conversation, observer TurnObserver, interrupted *atomic.Bool) (TurnResult, error) {
	if observer == nil {
		observer = NoopObserver{}
	}
	if e.sleep == nil {
		e.sleep = sleepCtx
	}
	// entryLen moves down when an auto-trim drops old messages, so a later
	// rollback still cuts exactly the messages this turn appended.
	entryLen := conv.Len()
	rollback := func() { conv.TruncateTo(entryLen) }

	tracker := NewCallTracker()
	var totalUsage llm.Usage

	maxRounds := e.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxTurnRounds
	}

	for round := 0; round < maxRounds; round++ {
		if interrupted.Load() {
			rollback()
			return TurnResult{Rounds: round}, nil
		}

		blocks, stopReason, usage, err := e.completeWithRetries(ctx, conv, observer, &entryLen)
		if errors.Is(err, llm.ErrStreamInterrupted) {
			rollback()
			return TurnResult{Rounds: round}, nil
		}
		if err != nil {
			rollback()
			// a cancelled context after an interrupt is the interrupt
			// itself tearing the stream down, not a provider failure
			if interrupted.Load() && errors.Is(err, context.Canceled) {
				return TurnResult{Rounds: round}, nil
			}
			return TurnResult{Rounds: round}, err
		}
		totalUsage.Add(usage)

		assistant := buildAssistantMessage(blocks)
		conv.Append(assistant)

		// Store writes are best-effort history; a failure must not kill
		// the turn.
		if text := assistant.TextContent(); text != "" {
			_ = e.Context.StoreMessage(llm.RoleAssistant, text)
		}

		uses := assistant.ToolUses()
		if stopReason != llm.StopToolUse || len(uses) == 0 {
			return TurnResult{Completed: true, Rounds: round + 1, Usage: totalUsage}, nil
		}

		exec := ExecuteToolUses(ctx, uses, e.Executor, e.Surface, interrupted)

		byID := make(map[string]llm.ToolUse, len(uses))
		for _, use := range uses {
			byID[use.ID] = use
		}
		for _, result := range exec.Results {
			if exec.CancelledIDs[result.ToolUseID] {
				continue
			}
			use := byID[result.ToolUseID]
			_ = e.Context.StoreToolCall(use.Name, use.Input, result.Content, result.IsError)
		}

		if interrupted.Load() {
			rollback()
			return TurnResult{Rounds: round + 1}, nil
		}

		loopDetected := false
		for _, use := range uses {
			fp := llm.Fingerprint(use.Name, use.Input)
			tracker.Record(fp)
			if tracker.IsLoop(fp) {
				loopDetected = true
			}
		}

		userMsg := llm.Message{Role: llm.RoleUser}
		if loopDetected {
			userMsg.Content = append(userMsg.Content, llm.TextBlock(loopGuidance))
		}
		for _, result := range exec.Results {
			userMsg.Content = append(userMsg.Content, llm.NewToolResultBlock(result.ToolUseID, result.Content, result.IsError))
		}
		conv.Append(userMsg)
	}

	// Round budget exhausted: close the turn with a synthetic assistant
	// message so the conversation still ends in an EndTurn shape.
	conv.Append(llm.AssistantText(turnLimitMessage))
	_ = e.Context.StoreMessage(llm.RoleAssistant, turnLimitMessage)
	return TurnResult{Completed: true, Rounds: maxRounds, Usage: totalUsage}, nil
}

// completeWithRetries issues one model call, retrying rate limits with
// exponential backoff and context overflows with an auto-trim.
func (e *Engine) completeWithRetries(ctx context.Context, conv *llm.Conversation, observer TurnObserver, entryLen *int) ([]llm.ContentBlock, llm.StopReason, llm.Usage, error) {
	maxRetries := e.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	attempt := 0
	for {
		blocks, stopReason, usage, err := e.completeOnce(ctx, conv, observer)
		if err == nil {
			return blocks, stopReason, usage, nil
		}
		if errors.Is(err, llm.ErrStreamInterrupted) {
			return nil, "", usage, err
		}

		var ctl *llm.ContextTooLongError
		if errors.As(err, &ctl) {
			observer.OnContextTooLong(ctl.Current, ctl.Limit)
			removed, terr := e.Context.AutoTrim(conv, ctl.Current, ctl.Limit)
			if terr != nil {
				return nil, "", usage, terr
			}
			if removed == 0 {
				return nil, "", usage, err
			}
			observer.OnContextTrimmed(removed)
			*entryLen -= removed
			if *entryLen < 0 {
				*entryLen = 0
			}
			continue
		}

		if llm.IsRetryable(err) && attempt < maxRetries {
			attempt++
			delay := e.backoff(attempt, err)
			observer.OnRateLimited(delay, attempt, maxRetries)
			if serr := e.sleep(ctx, delay); serr != nil {
				return nil, "", usage, serr
			}
			continue
		}

		return nil, "", usage, err
	}
}

func (e *Engine) completeOnce(ctx context.Context, conv *llm.Conversation, observer TurnObserver) ([]llm.ContentBlock, llm.StopReason, llm.Usage, error) {
	req := llm.Request{
		Model:    e.Model,
		System:   e.System,
		Messages: conv.Messages(),
		Tools:    e.Tools,
	}
	stream, err := e.Provider.CompleteStream(ctx, req)
	if err != nil {
		return nil, "", llm.Usage{}, err
	}
	return llm.Decode(stream, observer)
}

// backoff honors a provider retry-after hint when present, otherwise doubles
// from the base per attempt with +/-25% jitter, capped at maxBackoff.
func (e *Engine) backoff(attempt int, err error) time.Duration {
	if hint := llm.RetryAfterHint(err); hint > 0 {
		return hint
	}
	base := e.BaseBackoff
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	delay := base << (attempt - 1)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4
	return delay + jitter
}

// buildAssistantMessage converts decoded blocks into the assistant message,
// normalizing tool-use inputs on the way.
func buildAssistantMessage(blocks []llm.ContentBlock) llm.Message {
	msg := llm.Message{Role: llm.RoleAssistant}
	for _, b := range blocks {
		if b.Type == llm.BlockToolUse && b.ToolUse != nil {
			use := *b.ToolUse
			use.Input = llm.NormalizeToolInput(use.Input)
			b.ToolUse = &use
		}
		msg.Content = append(msg.Content, b)
	}
	return msg
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
