package store

import (
	"encoding/json"

	"github.com/tedsh/ted/internal/llm"
)

// Manager adapts a Store to the turn engine: every message and tool call
// of the parent turn is appended as a chunk, and AutoTrim shrinks the
// in-memory conversation when the provider reports a context overflow.
type Manager struct {
	store Store
}

func NewManager(s Store) *Manager {
	return &Manager{store: s}
}

func (m *Manager) StoreMessage(role llm.Role, text string) error {
	_, err := m.store.Append(ChunkMessage, MessageContent{Role: string(role), Text: text})
	return err
}

func (m *Manager) StoreToolCall(name string, input json.RawMessage, output string, isError bool) error {
	_, err := m.store.Append(ChunkToolCall, ToolCallContent{
		Name:    name,
		Input:   input,
		Output:  output,
		IsError: isError,
	})
	return err
}

// AutoTrim drops the oldest user turns from the conversation until the
// estimated savings cover the reported overflow, and reports how many
// messages were removed. A turn starts at a user message that carries no
// tool results, so trimming never splits a tool_use from its result and
// never leaves the conversation starting mid-turn. When the provider gave
// no token counts a single turn is dropped.
func (m *Manager) AutoTrim(conv *llm.Conversation, current, limit int) (int, error) {
	msgs := conv.Messages()
	if len(msgs) < 2 {
		return 0, nil
	}

	overflow := current - limit
	removed := 0
	for {
		// find the start of the next turn; the newest turn always stays
		cut := 0
		for i := 1; i < len(msgs); i++ {
			if isTurnStart(msgs[i]) {
				cut = i
				break
			}
		}
		if cut == 0 {
			break
		}
		for _, msg := range msgs[:cut] {
			overflow -= estimateTokens(msg)
		}
		msgs = msgs[cut:]
		removed += cut
		if overflow <= 0 {
			break
		}
	}
	if removed == 0 {
		// a single turn cannot be trimmed without emptying the window
		return 0, nil
	}

	conv.Replace(msgs)
	return removed, nil
}

// estimateTokens sizes a message at roughly four characters per token, the
// usual coarse ratio for English text.
func estimateTokens(msg llm.Message) int {
	chars := 0
	for _, b := range msg.Content {
		chars += len(b.Text)
		if b.ToolUse != nil {
			chars += len(b.ToolUse.Input)
		}
		if b.ToolResult != nil {
			chars += len(b.ToolResult.Content)
		}
	}
	return chars/4 + 1
}

func isTurnStart(msg llm.Message) bool {
	if msg.Role != llm.RoleUser {
		return false
	}
	for _, b := range msg.Content {
		if b.Type == llm.BlockToolResult {
			return false
		}
	}
	return true
}

// ChunksByType is a convenience for the store CLI.
func (m *Manager) ChunksByType(chunkType ChunkType) ([]Chunk, error) {
	return m.store.GetByType(chunkType)
}
