package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const httpClientTimeout = 10 * time.Minute

var defaultHTTPClient = &http.Client{
	Timeout: httpClientTimeout,
}

// OpenAIProvider streams chat completions from OpenAI or any compatible
// server (Ollama, LM Studio). The chat stream goes over raw SSE since the
// compat servers diverge from the SDK in small ways; model listing uses the
// SDK client.
type OpenAIProvider struct {
	client  *openai.Client
	baseURL string
	apiKey  string
	model   string
	label   string
}

func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: no API key (set OPENAI_API_KEY or api_key in config)")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client:  &client,
		baseURL: "https://api.openai.com/v1",
		apiKey:  apiKey,
		model:   model,
		label:   "OpenAI",
	}, nil
}

// NewOpenAICompatProvider targets a self-hosted OpenAI-compatible endpoint.
func NewOpenAICompatProvider(baseURL, apiKey, model, label string) *OpenAIProvider {
	baseURL = strings.TrimSuffix(baseURL, "/")
	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
	return &OpenAIProvider{
		client:  &client,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		label:   label,
	}
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("%s (%s)", p.label, p.model)
}

func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true, Streaming: true}
}

func (p *OpenAIProvider) SupportsModel(model string) bool {
	return !strings.HasPrefix(model, "claude")
}

// chat wire structures; tool_choice is a string or an object.
type oaiChatRequest struct {
	Model         string            `json:"model"`
	Messages      []oaiMessage      `json:"messages"`
	Tools         []oaiTool         `json:"tools,omitempty"`
	MaxTokens     *int              `json:"max_tokens,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	Stream        bool              `json:"stream,omitempty"`
	StreamOptions *oaiStreamOptions `json:"stream_options,omitempty"`
}

type oaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type oaiToolCall struct {
	Index    int    `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function,omitempty"`
}

type oaiChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []oaiChoice  `json:"choices"`
	Usage   *oaiUsage    `json:"usage,omitempty"`
	Error   *oaiAPIError `json:"error,omitempty"`
}

type oaiChoice struct {
	Index        int         `json:"index"`
	Delta        *oaiMessage `json:"delta,omitempty"`
	FinishReason string      `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type oaiAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*CompletionResponse, error) {
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

func (p *OpenAIProvider) CompleteStream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		messages := buildOpenAIMessages(req)
		if len(messages) == 0 {
			return fmt.Errorf("no messages provided")
		}
		tools, err := buildOpenAITools(req.Tools)
		if err != nil {
			return err
		}

		chatReq := oaiChatRequest{
			Model:         chooseModel(req.Model, p.model),
			Messages:      messages,
			Tools:         tools,
			Stream:        true,
			StreamOptions: &oaiStreamOptions{IncludeUsage: true},
		}
		if req.Temperature > 0 {
			v := float64(req.Temperature)
			chatReq.Temperature = &v
		}
		if req.MaxOutputTokens > 0 {
			v := req.MaxOutputTokens
			chatReq.MaxTokens = &v
		}

		body, err := json.Marshal(chatReq)
		if err != nil {
			return err
		}
		httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := defaultHTTPClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%s API request failed: %w", p.label, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != 200 {
			respBody, _ := io.ReadAll(resp.Body)
			return classifyProviderError(fmt.Errorf("%s API error (status %d): %s", p.label, resp.StatusCode, string(respBody)))
		}

		events <- Event{Type: EventMessageStart, Model: chatReq.Model}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		// The chat-completions stream has no block structure; synthesize it.
		// Index 0 is the text block (opened lazily); tool calls get the
		// following indices once the stream ends and arguments are complete.
		textOpen := false
		toolState := newOpenAIToolState()
		finishReason := ""
		var usage *Usage

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}
			var chatResp oaiChatResponse
			if err := json.Unmarshal([]byte(data), &chatResp); err != nil {
				continue
			}
			if chatResp.Error != nil {
				return classifyProviderError(fmt.Errorf("%s API error: %s", p.label, chatResp.Error.Message))
			}
			if chatResp.Usage != nil {
				usage = &Usage{
					InputTokens:  chatResp.Usage.PromptTokens,
					OutputTokens: chatResp.Usage.CompletionTokens,
				}
			}
			for _, choice := range chatResp.Choices {
				if choice.FinishReason != "" {
					finishReason = choice.FinishReason
				}
				if choice.Delta == nil {
					continue
				}
				if choice.Delta.Content != "" {
					if !textOpen {
						events <- Event{Type: EventContentBlockStart, Index: 0, Block: &ContentBlock{Type: BlockText}}
						textOpen = true
					}
					events <- Event{Type: EventContentBlockDelta, Index: 0, TextDelta: choice.Delta.Content}
				}
				if len(choice.Delta.ToolCalls) > 0 {
					toolState.Add(choice.Delta.ToolCalls)
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return &StreamError{Reason: p.label + " streaming error", Cause: err}
		}

		if textOpen {
			events <- Event{Type: EventContentBlockStop, Index: 0}
		}
		index := 1
		for _, use := range toolState.Uses() {
			events <- Event{Type: EventContentBlockStart, Index: index, Block: &ContentBlock{
				Type:    BlockToolUse,
				ToolUse: &ToolUse{ID: use.ID, Name: use.Name},
			}}
			if len(use.Input) > 0 {
				events <- Event{Type: EventContentBlockDelta, Index: index, PartialJSON: string(use.Input)}
			}
			events <- Event{Type: EventContentBlockStop, Index: index}
			index++
		}

		delta := Event{Type: EventMessageDelta, StopReason: mapOpenAIFinishReason(finishReason), Usage: usage}
		events <- delta
		events <- Event{Type: EventMessageStop}
		return nil
	}), nil
}

func (p *OpenAIProvider) CountTokens(ctx context.Context, req Request) (int, error) {
	// No counting endpoint on the chat API; estimate at 4 bytes per token.
	total := 0
	total += len(req.System) / 4
	for _, m := range req.Messages {
		for _, b := range m.Content {
			total += len(b.Text) / 4
			if b.ToolUse != nil {
				total += (len(b.ToolUse.Input) + len(b.ToolUse.Name)) / 4
			}
			if b.ToolResult != nil {
				total += len(b.ToolResult.Content) / 4
			}
		}
	}
	return total, nil
}

func (p *OpenAIProvider) Models(ctx context.Context) ([]ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	out := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, ModelInfo{ID: m.ID, DisplayName: m.ID})
	}
	return out, nil
}

func mapOpenAIFinishReason(reason string) StopReason {
	switch reason {
	case "tool_calls", "function_call":
		return StopToolUse
	case "length":
		return StopMaxTokens
	case "content_filter", "stop":
		return StopEndTurn
	default:
		return StopEndTurn
	}
}

func buildOpenAIMessages(req Request) []oaiMessage {
	var result []oaiMessage
	if req.System != "" {
		result = append(result, oaiMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			if text := msg.TextContent(); text != "" {
				result = append(result, oaiMessage{Role: "system", Content: text})
			}
		case RoleAssistant:
			text, toolCalls := splitAssistantBlocks(msg.Content)
			if text == "" && len(toolCalls) == 0 {
				continue
			}
			result = append(result, oaiMessage{Role: "assistant", Content: text, ToolCalls: toolCalls})
		case RoleUser:
			// tool results ride as separate role=tool messages
			var textParts []string
			for _, b := range msg.Content {
				switch b.Type {
				case BlockText:
					if b.Text != "" {
						textParts = append(textParts, b.Text)
					}
				case BlockToolResult:
					if b.ToolResult != nil {
						result = append(result, oaiMessage{
							Role:       "tool",
							Content:    b.ToolResult.Content,
							ToolCallID: b.ToolResult.ToolUseID,
						})
					}
				}
			}
			if len(textParts) > 0 {
				result = append(result, oaiMessage{Role: "user", Content: strings.Join(textParts, "")})
			}
		}
	}
	return result
}

func splitAssistantBlocks(content []ContentBlock) (string, []oaiToolCall) {
	var textParts []string
	var toolCalls []oaiToolCall
	for _, b := range content {
		switch b.Type {
		case BlockText:
			if b.Text != "" {
				textParts = append(textParts, b.Text)
			}
		case BlockToolUse:
			if b.ToolUse == nil {
				continue
			}
			call := oaiToolCall{ID: b.ToolUse.ID, Type: "function"}
			call.Function.Name = b.ToolUse.Name
			call.Function.Arguments = string(b.ToolUse.Input)
			toolCalls = append(toolCalls, call)
		}
	}
	return strings.Join(textParts, ""), toolCalls
}

func buildOpenAITools(specs []ToolSpec) ([]oaiTool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	tools := make([]oaiTool, 0, len(specs))
	for _, spec := range specs {
		schema, err := json.Marshal(spec.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool schema %s: %w", spec.Name, err)
		}
		tools = append(tools, oaiTool{
			Type: "function",
			Function: oaiFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return tools, nil
}

type openAIToolState struct {
	byIndex map[int]*toolCallBuf
	order   []int
}

type toolCallBuf struct {
	id   string
	name string
	args strings.Builder
}

func newOpenAIToolState() *openAIToolState {
	return &openAIToolState{byIndex: make(map[int]*toolCallBuf)}
}

func (s *openAIToolState) Add(calls []oaiToolCall) {
	for _, call := range calls {
		state, ok := s.byIndex[call.Index]
		if !ok {
			state = &toolCallBuf{}
			s.byIndex[call.Index] = state
			s.order = append(s.order, call.Index)
		}
		if call.ID != "" {
			state.id = call.ID
		}
		if call.Function.Name != "" {
			state.name = call.Function.Name
		}
		if call.Function.Arguments != "" {
			state.args.WriteString(call.Function.Arguments)
		}
	}
}

func (s *openAIToolState) Uses() []ToolUse {
	if len(s.order) == 0 {
		return nil
	}
	sort.Ints(s.order)
	uses := make([]ToolUse, 0, len(s.order))
	for _, idx := range s.order {
		state := s.byIndex[idx]
		if state == nil {
			continue
		}
		uses = append(uses, ToolUse{
			ID:    state.id,
			Name:  state.name,
			Input: json.RawMessage(state.args.String()),
		})
	}
	return uses
}
