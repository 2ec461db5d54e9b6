package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

// AnthropicProvider streams completions from the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: no API key (set ANTHROPIC_API_KEY or api_key in config)")
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return fmt.Sprintf("Anthropic (%s)", p.model)
}

func (p *AnthropicProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true, Streaming: true}
}

func (p *AnthropicProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude")
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*CompletionResponse, error) {
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

func (p *AnthropicProvider) CompleteStream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		system, messages := buildAnthropicMessages(req.Messages)
		if req.System != "" {
			if system != "" {
				system = req.System + "\n\n" + system
			} else {
				system = req.System
			}
		}

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(chooseModel(req.Model, p.model)),
			MaxTokens: maxTokens(req.MaxOutputTokens, 4096),
			Messages:  messages,
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}
		if len(req.Tools) > 0 {
			params.Tools = buildAnthropicTools(req.Tools)
		}

		stream := p.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				events <- Event{
					Type:      EventMessageStart,
					MessageID: variant.Message.ID,
					Model:     string(variant.Message.Model),
				}
				if variant.Message.Usage.InputTokens > 0 {
					events <- Event{Type: EventMessageDelta, Usage: &Usage{
						InputTokens: int(variant.Message.Usage.InputTokens),
					}}
				}
			case anthropic.ContentBlockStartEvent:
				switch block := variant.ContentBlock.AsAny().(type) {
				case anthropic.TextBlock:
					events <- Event{
						Type:  EventContentBlockStart,
						Index: int(variant.Index),
						Block: &ContentBlock{Type: BlockText},
					}
					if block.Text != "" {
						events <- Event{Type: EventContentBlockDelta, Index: int(variant.Index), TextDelta: block.Text}
					}
				case anthropic.ToolUseBlock:
					events <- Event{
						Type:  EventContentBlockStart,
						Index: int(variant.Index),
						Block: &ContentBlock{
							Type:    BlockToolUse,
							ToolUse: &ToolUse{ID: block.ID, Name: block.Name},
						},
					}
					if initial := toolInputToRaw(block.Input); len(initial) > 0 && string(initial) != "{}" && string(initial) != "null" {
						events <- Event{Type: EventContentBlockDelta, Index: int(variant.Index), PartialJSON: string(initial)}
					}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text != "" {
						events <- Event{Type: EventContentBlockDelta, Index: int(variant.Index), TextDelta: delta.Text}
					}
				case anthropic.InputJSONDelta:
					if delta.PartialJSON != "" {
						events <- Event{Type: EventContentBlockDelta, Index: int(variant.Index), PartialJSON: delta.PartialJSON}
					}
				}
			case anthropic.ContentBlockStopEvent:
				events <- Event{Type: EventContentBlockStop, Index: int(variant.Index)}
			case anthropic.MessageDeltaEvent:
				ev := Event{Type: EventMessageDelta}
				if variant.Delta.StopReason != "" {
					ev.StopReason = mapAnthropicStopReason(string(variant.Delta.StopReason))
				}
				if variant.Usage.OutputTokens > 0 {
					ev.Usage = &Usage{OutputTokens: int(variant.Usage.OutputTokens)}
				}
				events <- ev
			case anthropic.MessageStopEvent:
				events <- Event{Type: EventMessageStop}
			}
		}
		if err := stream.Err(); err != nil {
			return classifyProviderError(err)
		}
		return nil
	}), nil
}

func (p *AnthropicProvider) CountTokens(ctx context.Context, req Request) (int, error) {
	system, messages := buildAnthropicMessages(req.Messages)
	params := anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(chooseModel(req.Model, p.model)),
		Messages: messages,
	}
	if system != "" {
		params.System = anthropic.MessageCountTokensParamsSystemUnion{
			OfTextBlockArray: []anthropic.TextBlockParam{{Text: system}},
		}
	}
	count, err := p.client.Messages.CountTokens(ctx, params)
	if err != nil {
		return 0, classifyProviderError(err)
	}
	return int(count.InputTokens), nil
}

func (p *AnthropicProvider) Models(ctx context.Context) ([]ModelInfo, error) {
	page, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, classifyProviderError(err)
	}
	out := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, ModelInfo{ID: string(m.ID), DisplayName: m.DisplayName})
	}
	return out, nil
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopEndTurn
	case "tool_use":
		return StopToolUse
	case "max_tokens":
		return StopMaxTokens
	case "stop_sequence":
		return StopStopSequence
	default:
		return StopEndTurn
	}
}

func buildAnthropicMessages(messages []Message) (string, []anthropic.MessageParam) {
	var systemParts []string
	var out []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if text := msg.TextContent(); text != "" {
				systemParts = append(systemParts, text)
			}
		case RoleUser:
			blocks := buildAnthropicBlocks(msg.Content, false)
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		case RoleAssistant:
			blocks := buildAnthropicBlocks(msg.Content, true)
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}

	return strings.Join(systemParts, "\n\n"), out
}

func buildAnthropicBlocks(content []ContentBlock, allowToolUse bool) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(content))
	for _, b := range content {
		switch b.Type {
		case BlockText:
			if b.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			}
		case BlockToolUse:
			if allowToolUse && b.ToolUse != nil {
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUse.ID, b.ToolUse.Input, b.ToolUse.Name))
			}
		case BlockToolResult:
			if b.ToolResult != nil {
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolResult.ToolUseID, b.ToolResult.Content, b.ToolResult.IsError))
			}
		}
	}
	return blocks
}

func buildAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: spec.Schema["properties"],
			Required:   schemaRequired(spec.Schema),
		}
		tool := anthropic.ToolUnionParamOfTool(inputSchema, spec.Name)
		if spec.Description != "" {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

func schemaRequired(schema map[string]interface{}) []string {
	raw, ok := schema["required"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toolInputToRaw(input any) json.RawMessage {
	switch v := input.(type) {
	case json.RawMessage:
		return v
	case []byte:
		return json.RawMessage(v)
	case string:
		return json.RawMessage(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return json.RawMessage(data)
	}
}

func chooseModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

func maxTokens(requested, fallback int) int64 {
	if requested > 0 {
		return int64(requested)
	}
	return int64(fallback)
}
