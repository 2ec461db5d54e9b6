package llm

import (
	"context"
	"encoding/json"
)

// contextKey is a private type for context keys to prevent collisions.
type contextKey string

// toolCallIDKey is the context key for the current tool call ID.
const toolCallIDKey contextKey = "tool_call_id"

// ContextWithCallID returns a new context with the tool call ID set.
// Used by the execution strategy to pass the call ID to spawn_agent so
// progress entries land under the right key.
func ContextWithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, toolCallIDKey, callID)
}

// CallIDFromContext extracts the tool call ID from context, or returns empty string.
func CallIDFromContext(ctx context.Context) string {
	if v := ctx.Value(toolCallIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason describes why the model stopped generating.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// BlockType identifies a content block variant.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ToolUse is a model-requested tool invocation.
type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResult is the caller's response to a ToolUse.
// ToolUseID references the most recent matching ToolUse in the conversation.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ContentBlock is one semantic piece of a message.
type ContentBlock struct {
	Type       BlockType   `json:"type"`
	Text       string      `json:"text,omitempty"`
	ToolUse    *ToolUse    `json:"tool_use,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// Message holds a role with content blocks.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool-use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUse: &ToolUse{ID: id, Name: name, Input: input}}
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

func SystemText(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentBlock{TextBlock(text)}}
}

// TextContent concatenates all text spans in the message.
func (m Message) TextContent() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText && b.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += b.Text
		}
	}
	return out
}

// ToolUses returns the tool-use blocks of the message, in order.
func (m Message) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, b := range m.Content {
		if b.Type == BlockToolUse && b.ToolUse != nil {
			uses = append(uses, *b.ToolUse)
		}
	}
	return uses
}

// Conversation is an ordered sequence of messages, exclusively owned by the
// turn engine for the duration of a turn. Append is the only mutation during
// normal operation; TruncateTo supports turn rollback and auto-trim.
type Conversation struct {
	messages []Message
}

func NewConversation(messages ...Message) *Conversation {
	return &Conversation{messages: messages}
}

func (c *Conversation) Append(msg Message) {
	c.messages = append(c.messages, msg)
}

func (c *Conversation) Len() int {
	return len(c.messages)
}

// Messages returns the backing slice. Callers must not mutate it.
func (c *Conversation) Messages() []Message {
	return c.messages
}

// TruncateTo drops messages beyond n. Used for turn rollback.
func (c *Conversation) TruncateTo(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(c.messages) {
		c.messages = c.messages[:n]
	}
}

// Replace swaps the full message list. Used by auto-trim.
func (c *Conversation) Replace(messages []Message) {
	c.messages = messages
}

// Usage captures token usage if available.
type Usage struct {
	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	CachedInputTokens int `json:"cached_input_tokens,omitempty"`
}

// Add accumulates another usage tally field-wise.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CachedInputTokens += other.CachedInputTokens
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// Request represents a single model call.
type Request struct {
	Model           string
	System          string
	Messages        []Message
	Tools           []ToolSpec
	MaxOutputTokens int
	Temperature     float32
}

// CompletionResponse is a fully decoded model response.
type CompletionResponse struct {
	Blocks     []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// EventType describes streaming events. The grammar per message is:
//
//	MessageStart (ContentBlockStart ContentBlockDelta* ContentBlockStop)* MessageDelta* MessageStop
type EventType string

const (
	EventMessageStart      EventType = "message_start"
	EventContentBlockStart EventType = "content_block_start"
	EventContentBlockDelta EventType = "content_block_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventMessageDelta      EventType = "message_delta"
	EventMessageStop       EventType = "message_stop"
	EventError             EventType = "error"
)

// Event represents a streamed output update. Block indices are monotonically
// issued per message and never reused.
type Event struct {
	Type      EventType
	MessageID string // EventMessageStart
	Model     string // EventMessageStart
	Index     int    // block events

	// EventContentBlockStart: the opening block. A text block opens with
	// empty text; a tool-use block opens with id+name and empty input.
	Block *ContentBlock

	// EventContentBlockDelta carries exactly one of these.
	TextDelta   string
	PartialJSON string

	StopReason StopReason // EventMessageDelta, latest wins
	Usage      *Usage     // EventMessageDelta, accumulated field-wise

	Err error // EventError
}

// Stream yields events until io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// ModelInfo describes a model available from a provider.
type ModelInfo struct {
	ID          string
	DisplayName string
	InputLimit  int
}

// Capabilities describe optional provider features.
type Capabilities struct {
	ToolCalls bool
	Streaming bool
}

// Provider is the capability set a model backend exposes.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	Complete(ctx context.Context, req Request) (*CompletionResponse, error)
	CompleteStream(ctx context.Context, req Request) (Stream, error)
	CountTokens(ctx context.Context, req Request) (int, error)
	Models(ctx context.Context) ([]ModelInfo, error)
	SupportsModel(model string) bool
}
