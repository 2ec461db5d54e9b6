package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockResponse is one scripted model reply.
type MockResponse struct {
	Text       string
	ToolUses   []ToolUse
	StopReason StopReason
	Usage      Usage
	Err        error // returned instead of a stream when set
	StreamErr  error // delivered as an in-stream error event
}

// MockProvider replays scripted responses in order. Used by engine and TUI
// tests; safe for concurrent calls.
type MockProvider struct {
	name      string
	caps      Capabilities
	mu        sync.Mutex
	responses []MockResponse
	calls     []Request
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name: name,
		caps: Capabilities{ToolCalls: true, Streaming: true},
	}
}

func (p *MockProvider) WithCapabilities(caps Capabilities) *MockProvider {
	p.caps = caps
	return p
}

// AddTextResponse queues a plain text reply ending the turn.
func (p *MockProvider) AddTextResponse(text string) *MockProvider {
	return p.AddResponse(MockResponse{Text: text, StopReason: StopEndTurn})
}

// AddToolUseResponse queues a reply requesting the given tool calls.
func (p *MockProvider) AddToolUseResponse(uses ...ToolUse) *MockProvider {
	return p.AddResponse(MockResponse{ToolUses: uses, StopReason: StopToolUse})
}

// AddErrorResponse queues a call-level error (returned before any stream).
func (p *MockProvider) AddErrorResponse(err error) *MockProvider {
	return p.AddResponse(MockResponse{Err: err})
}

func (p *MockProvider) AddResponse(r MockResponse) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, r)
	return p
}

// Calls returns the requests received so far.
func (p *MockProvider) Calls() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *MockProvider) next(req Request) (MockResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if len(p.responses) == 0 {
		return MockResponse{}, fmt.Errorf("mock provider %s: no scripted response for call %d", p.name, len(p.calls))
	}
	r := p.responses[0]
	p.responses = p.responses[1:]
	return r, nil
}

func (p *MockProvider) Name() string               { return p.name }
func (p *MockProvider) Capabilities() Capabilities { return p.caps }

func (p *MockProvider) Complete(ctx context.Context, req Request) (*CompletionResponse, error) {
	stream, err := p.CompleteStream(ctx, req)
	if err != nil {
		return nil, err
	}
	blocks, stopReason, usage, err := Decode(stream, nil)
	if err != nil {
		return nil, err
	}
	return &CompletionResponse{Blocks: blocks, StopReason: stopReason, Usage: usage}, nil
}

func (p *MockProvider) CompleteStream(ctx context.Context, req Request) (Stream, error) {
	r, err := p.next(req)
	if err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return newEventStream(ctx, func(ctx context.Context, out chan<- Event) error {
		send := func(ev Event) error {
			select {
			case out <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := send(Event{Type: EventMessageStart, MessageID: "mock_msg", Model: req.Model}); err != nil {
			return err
		}
		index := 0
		if r.Text != "" {
			if err := send(Event{Type: EventContentBlockStart, Index: index, Block: &ContentBlock{Type: BlockText}}); err != nil {
				return err
			}
			// split the text in two so consumers see real deltas
			mid := len(r.Text) / 2
			for _, chunk := range []string{r.Text[:mid], r.Text[mid:]} {
				if chunk == "" {
					continue
				}
				if err := send(Event{Type: EventContentBlockDelta, Index: index, TextDelta: chunk}); err != nil {
					return err
				}
			}
			if err := send(Event{Type: EventContentBlockStop, Index: index}); err != nil {
				return err
			}
			index++
		}
		for _, use := range r.ToolUses {
			start := &ContentBlock{Type: BlockToolUse, ToolUse: &ToolUse{ID: use.ID, Name: use.Name}}
			if err := send(Event{Type: EventContentBlockStart, Index: index, Block: start}); err != nil {
				return err
			}
			if len(use.Input) > 0 && string(use.Input) != "{}" {
				if err := send(Event{Type: EventContentBlockDelta, Index: index, PartialJSON: string(use.Input)}); err != nil {
					return err
				}
			}
			if err := send(Event{Type: EventContentBlockStop, Index: index}); err != nil {
				return err
			}
			index++
		}
		if r.StreamErr != nil {
			return send(Event{Type: EventError, Err: r.StreamErr})
		}
		stop := r.StopReason
		if stop == "" {
			stop = StopEndTurn
		}
		u := r.Usage
		if err := send(Event{Type: EventMessageDelta, StopReason: stop, Usage: &u}); err != nil {
			return err
		}
		return send(Event{Type: EventMessageStop})
	}), nil
}

func (p *MockProvider) CountTokens(ctx context.Context, req Request) (int, error) {
	total := 0
	for _, m := range req.Messages {
		for _, b := range m.Content {
			total += len(b.Text) / 4
			if b.ToolUse != nil {
				total += len(b.ToolUse.Input) / 4
			}
			if b.ToolResult != nil {
				total += len(b.ToolResult.Content) / 4
			}
		}
	}
	return total, nil
}

func (p *MockProvider) Models(ctx context.Context) ([]ModelInfo, error) {
	return []ModelInfo{{ID: "mock-model", DisplayName: "Mock Model", InputLimit: 100000}}, nil
}

func (p *MockProvider) SupportsModel(model string) bool { return true }

// MustJSON marshals v or panics. Test helper for building tool inputs.
func MustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
