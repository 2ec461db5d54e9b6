package store

import (
	"encoding/json"
	"time"
)

// ChunkType tags what a chunk's content holds.
type ChunkType string

const (
	ChunkMessage  ChunkType = "message"
	ChunkToolCall ChunkType = "tool_call"
	ChunkSummary  ChunkType = "summary"
)

// Tier is a chunk's lifecycle stage. New chunks are hot; compaction moves
// them to warm and then cold. The tier never changes the content.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Chunk is one immutable record of the append-only context log.
type Chunk struct {
	ID        string          `json:"id"`
	Sequence  int64           `json:"sequence"`
	CreatedAt time.Time       `json:"created_at"`
	Type      ChunkType       `json:"type"`
	Tier      Tier            `json:"tier"`
	Content   json.RawMessage `json:"content"`
}

// MessageContent is the content of a ChunkMessage.
type MessageContent struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ToolCallContent is the content of a ChunkToolCall.
type ToolCallContent struct {
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input,omitempty"`
	Output  string          `json:"output"`
	IsError bool            `json:"is_error,omitempty"`
}

// SummaryContent is the content of a ChunkSummary: a condensation of all
// chunks up to CoversSequence.
type SummaryContent struct {
	Text           string `json:"text"`
	CoversSequence int64  `json:"covers_sequence"`
}

// Message decodes the chunk as a MessageContent.
func (c Chunk) Message() (MessageContent, error) {
	var m MessageContent
	err := json.Unmarshal(c.Content, &m)
	return m, err
}

// ToolCall decodes the chunk as a ToolCallContent.
func (c Chunk) ToolCall() (ToolCallContent, error) {
	var t ToolCallContent
	err := json.Unmarshal(c.Content, &t)
	return t, err
}

// Stats summarizes the store.
type Stats struct {
	Total        int
	Hot          int
	Warm         int
	Cold         int
	NextSequence int64
}

// Store is the append-only tiered context log. Appends are durable on
// success and serialized internally; reads may run concurrently.
type Store interface {
	Append(chunkType ChunkType, content interface{}) (Chunk, error)
	GetAll() ([]Chunk, error)
	GetByType(chunkType ChunkType) ([]Chunk, error)
	Compact() error
	Stats() (Stats, error)
	Close() error
}
