package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tedsh/ted/internal/config"
	"github.com/tedsh/ted/internal/store"
)

func init() {
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storeCompactCmd)
	storeCmd.AddCommand(storeSessionsCmd)
	storeCmd.AddCommand(storeDumpCmd)
	storeDumpCmd.Flags().StringVar(&storeDumpType, "type", "", "Only dump chunks of one type (message, tool_call, summary)")
}

var storeDumpType string

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and maintain the context store",
}

func openStore() (*store.SQLiteStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return store.Open(store.Config{
		Path:          cfg.Store.Path,
		ColdThreshold: time.Duration(cfg.Store.ColdThresholdSecs) * time.Second,
	})
}

var storeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chunk counts per tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		st, err := s.Stats()
		if err != nil {
			return err
		}
		cmd.Printf("chunks: %d (hot %d, warm %d, cold %d)\n", st.Total, st.Hot, st.Warm, st.Cold)
		cmd.Printf("next sequence: %d\n", st.NextSequence)
		return nil
	},
}

var storeCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Demote aged chunks one tier (hot to warm, warm to gzipped cold)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		before, err := s.Stats()
		if err != nil {
			return err
		}
		if err := s.Compact(); err != nil {
			return err
		}
		after, err := s.Stats()
		if err != nil {
			return err
		}
		cmd.Printf("hot %d -> %d, warm %d -> %d, cold %d -> %d\n",
			before.Hot, after.Hot, before.Warm, after.Warm, before.Cold, after.Cold)
		return nil
	},
}

var storeSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded chat sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		sessions, err := s.Sessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			cmd.Println("no sessions recorded")
			return nil
		}
		for _, si := range sessions {
			cmd.Printf("%s  %s  %s/%s  %s\n",
				si.ID[:8], si.StartedAt.Format("2006-01-02 15:04"), si.Provider, si.Model, si.Status)
		}
		return nil
	},
}

var storeDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print stored chunks in sequence order",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		var chunks []store.Chunk
		if storeDumpType != "" {
			chunks, err = s.GetByType(store.ChunkType(storeDumpType))
		} else {
			chunks, err = s.GetAll()
		}
		if err != nil {
			return err
		}
		for _, c := range chunks {
			cmd.Printf("%6d  %-9s  %-4s  %s\n", c.Sequence, c.Type, c.Tier, summarizeChunk(c))
		}
		return nil
	},
}

func summarizeChunk(c store.Chunk) string {
	switch c.Type {
	case store.ChunkMessage:
		if m, err := c.Message(); err == nil {
			return fmt.Sprintf("%s: %s", m.Role, oneline(m.Text, 80))
		}
	case store.ChunkToolCall:
		if tc, err := c.ToolCall(); err == nil {
			status := "ok"
			if tc.IsError {
				status = "error"
			}
			return fmt.Sprintf("%s (%s): %s", tc.Name, status, oneline(tc.Output, 60))
		}
	}
	return oneline(string(c.Content), 80)
}

func oneline(s string, n int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
