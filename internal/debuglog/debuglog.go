// Package debuglog writes a JSONL trace of provider requests, stream
// events and tool calls, one file per session. It is disabled unless
// configured on; every write is best-effort and never fails a turn.
package debuglog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends JSONL entries to a per-session file. A nil Logger is
// valid and drops everything, so call sites do not guard.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

// entry is one JSONL line.
type entry struct {
	Timestamp time.Time   `json:"ts"`
	Type      string      `json:"type"` // request, event, tool_call, error
	Data      interface{} `json:"data"`
}

// RequestData captures an outgoing provider request.
type RequestData struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	Messages        int    `json:"messages"`
	Tools           int    `json:"tools,omitempty"`
	MaxOutputTokens int    `json:"max_output_tokens,omitempty"`
}

// EventData captures one stream event.
type EventData struct {
	EventType  string `json:"event_type"`
	Index      int    `json:"index,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// ToolCallData captures one executed tool call.
type ToolCallData struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Input   any    `json:"input,omitempty"`
	Output  string `json:"output,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// New opens a session log file under dir. The file is named by start time
// so sessions sort chronologically.
func New(dir, sessionID string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.jsonl", time.Now().Format("20060102-150405"), sessionID)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}
	return &Logger{file: f}, nil
}

func (l *Logger) LogRequest(data RequestData) {
	l.write("request", data)
}

func (l *Logger) LogEvent(data EventData) {
	l.write("event", data)
}

func (l *Logger) LogToolCall(data ToolCallData) {
	l.write("tool_call", data)
}

func (l *Logger) LogError(message string) {
	l.write("error", map[string]string{"message": message})
}

func (l *Logger) write(entryType string, data interface{}) {
	if l == nil {
		return
	}
	line, err := json.Marshal(entry{Timestamp: time.Now().UTC(), Type: entryType, Data: data})
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.file.Write(append(line, '\n'))
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
