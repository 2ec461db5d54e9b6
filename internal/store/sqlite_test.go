package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, threshold time.Duration) *SQLiteStore {
	t.Helper()
	s, err := Open(Config{
		Path:          filepath.Join(t.TempDir(), "context.db"),
		ColdThreshold: threshold,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppend_SequencesAreMonotonic(t *testing.T) {
	s := openTestStore(t, time.Hour)

	for i := 0; i < 10; i++ {
		c, err := s.Append(ChunkMessage, MessageContent{Role: "user", Text: "hello"})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if c.Sequence != int64(i) {
			t.Fatalf("sequence = %d, want %d", c.Sequence, i)
		}
		if c.ID == "" || c.Tier != TierHot {
			t.Errorf("chunk = %+v", c)
		}
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.Total != 10 || st.Hot != 10 || st.NextSequence != 10 {
		t.Errorf("stats = %+v", st)
	}
}

func TestAppend_ContentRoundTrips(t *testing.T) {
	s := openTestStore(t, time.Hour)

	if _, err := s.Append(ChunkToolCall, ToolCallContent{
		Name:    "file_read",
		Input:   json.RawMessage(`{"path":"main.go"}`),
		Output:  "package main",
		IsError: false,
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	chunks, err := s.GetByType(ChunkToolCall)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d tool call chunks", len(chunks))
	}
	tc, err := chunks[0].ToolCall()
	if err != nil {
		t.Fatalf("ToolCall() error = %v", err)
	}
	if tc.Name != "file_read" || tc.Output != "package main" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestGetByType_FiltersAndOrders(t *testing.T) {
	s := openTestStore(t, time.Hour)

	s.Append(ChunkMessage, MessageContent{Role: "user", Text: "one"})
	s.Append(ChunkToolCall, ToolCallContent{Name: "shell", Output: "ok"})
	s.Append(ChunkMessage, MessageContent{Role: "assistant", Text: "two"})

	msgs, err := s.GetByType(ChunkMessage)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Sequence != 0 || msgs[1].Sequence != 2 {
		t.Errorf("message chunks = %+v", msgs)
	}
}

func TestCompact_DemotesOneTierPerPass(t *testing.T) {
	s := openTestStore(t, 0)

	s.Append(ChunkMessage, MessageContent{Role: "user", Text: "hi"})
	s.Append(ChunkMessage, MessageContent{Role: "assistant", Text: "hello"})

	if err := s.Compact(); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	st, _ := s.Stats()
	if st.Warm != 2 || st.Hot != 0 || st.Cold != 0 {
		t.Fatalf("after first compact stats = %+v", st)
	}

	if err := s.Compact(); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	st, _ = s.Stats()
	if st.Cold != 2 || st.Warm != 0 {
		t.Fatalf("after second compact stats = %+v", st)
	}

	// cold chunks still read back with their original content
	chunks, err := s.GetAll()
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	m, err := chunks[0].Message()
	if err != nil {
		t.Fatalf("Message() error = %v", err)
	}
	if m.Text != "hi" {
		t.Errorf("cold chunk text = %q", m.Text)
	}
}

func TestCompact_RespectsThreshold(t *testing.T) {
	s := openTestStore(t, time.Hour)

	s.Append(ChunkMessage, MessageContent{Role: "user", Text: "fresh"})
	if err := s.Compact(); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	st, _ := s.Stats()
	if st.Hot != 1 {
		t.Errorf("fresh chunk was demoted: %+v", st)
	}
}

func TestStore_SurvivesReopenAfterCompaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.db")
	cfg := Config{Path: path, ColdThreshold: 0}

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ids := make(map[string]string, 80)
	for i := 0; i < 80; i++ {
		c, err := s.Append(ChunkMessage, MessageContent{Role: "user", Text: "msg"})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		ids[c.ID] = string(c.Content)
	}
	if err := s.Compact(); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if err := s.Compact(); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	chunks, err := s2.GetAll()
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(chunks) != 80 {
		t.Fatalf("got %d chunks after reopen, want 80", len(chunks))
	}
	for _, c := range chunks {
		want, ok := ids[c.ID]
		if !ok {
			t.Fatalf("unexpected chunk id %s", c.ID)
		}
		if string(c.Content) != want {
			t.Errorf("chunk %s content = %s, want %s", c.ID, c.Content, want)
		}
	}

	st, err := s2.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.Hot+st.Warm+st.Cold != st.Total || st.Total != 80 {
		t.Errorf("stats = %+v", st)
	}
	if st.NextSequence < 80 {
		t.Errorf("next sequence = %d, want >= 80", st.NextSequence)
	}

	// appends continue past the highest replayed sequence
	c, err := s2.Append(ChunkMessage, MessageContent{Role: "user", Text: "after reopen"})
	if err != nil {
		t.Fatalf("Append() after reopen error = %v", err)
	}
	if c.Sequence != 80 {
		t.Errorf("sequence after reopen = %d, want 80", c.Sequence)
	}
}

func TestSessions_RecordAndList(t *testing.T) {
	s := openTestStore(t, time.Hour)

	id, err := s.RecordSession("anthropic", "claude-sonnet")
	if err != nil {
		t.Fatalf("RecordSession() error = %v", err)
	}
	sessions, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != id || sessions[0].Model != "claude-sonnet" {
		t.Errorf("sessions = %+v", sessions)
	}
}
