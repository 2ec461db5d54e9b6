package debuglog

import (
	"context"
	"encoding/json"
	"io"

	"github.com/tedsh/ted/internal/engine"
	"github.com/tedsh/ted/internal/llm"
)

// WrapProvider decorates a provider so every request and stream event is
// traced to the logger. A nil logger returns the provider unchanged.
func WrapProvider(p llm.Provider, l *Logger) llm.Provider {
	if l == nil {
		return p
	}
	return &loggingProvider{Provider: p, log: l}
}

type loggingProvider struct {
	llm.Provider
	log *Logger
}

func (p *loggingProvider) logRequest(req llm.Request) {
	p.log.LogRequest(RequestData{
		Provider:        p.Provider.Name(),
		Model:           req.Model,
		Messages:        len(req.Messages),
		Tools:           len(req.Tools),
		MaxOutputTokens: req.MaxOutputTokens,
	})
}

func (p *loggingProvider) Complete(ctx context.Context, req llm.Request) (*llm.CompletionResponse, error) {
	p.logRequest(req)
	resp, err := p.Provider.Complete(ctx, req)
	if err != nil {
		p.log.LogError(err.Error())
	}
	return resp, err
}

func (p *loggingProvider) CompleteStream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	p.logRequest(req)
	stream, err := p.Provider.CompleteStream(ctx, req)
	if err != nil {
		p.log.LogError(err.Error())
		return nil, err
	}
	return &loggingStream{Stream: stream, log: p.log}, nil
}

type loggingStream struct {
	llm.Stream
	log *Logger
}

func (s *loggingStream) Recv() (llm.Event, error) {
	ev, err := s.Stream.Recv()
	switch {
	case err == nil:
		s.log.LogEvent(EventData{
			EventType:  string(ev.Type),
			Index:      ev.Index,
			StopReason: string(ev.StopReason),
		})
	case err != io.EOF:
		s.log.LogError(err.Error())
	}
	return ev, err
}

// WrapExecutor decorates a tool executor so every executed call is traced.
// A nil logger returns the executor unchanged.
func WrapExecutor(e engine.Executor, l *Logger) engine.Executor {
	if l == nil {
		return e
	}
	return &loggingExecutor{Executor: e, log: l}
}

type loggingExecutor struct {
	engine.Executor
	log *Logger
}

func (e *loggingExecutor) ExecuteToolUse(ctx context.Context, use llm.ToolUse) (string, error) {
	output, err := e.Executor.ExecuteToolUse(ctx, use)
	var input any
	_ = json.Unmarshal(use.Input, &input)
	e.log.LogToolCall(ToolCallData{
		ID:      use.ID,
		Name:    use.Name,
		Input:   input,
		Output:  output,
		IsError: err != nil,
	})
	return output, err
}
