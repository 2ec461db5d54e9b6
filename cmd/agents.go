package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tedsh/ted/internal/agents"
)

func init() {
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsShowCmd)
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List and inspect spawned-agent definitions",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available agent types",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := agents.NewRegistry(nil)
		for _, name := range registry.List() {
			agent, err := registry.Get(name)
			if err != nil {
				cmd.Printf("%-12s (error: %v)\n", name, err)
				continue
			}
			cmd.Printf("%-12s %s\n", name, agent.Description)
		}
		return nil
	},
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the full definition of one agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := agents.NewRegistry(nil)
		agent, err := registry.Get(args[0])
		if err != nil {
			return err
		}
		cmd.Printf("name:           %s\n", agent.Name)
		cmd.Printf("description:    %s\n", agent.Description)
		if agent.Model != "" {
			cmd.Printf("model:          %s\n", agent.Model)
		}
		if len(agent.Tools) > 0 {
			cmd.Printf("tools:          %s\n", strings.Join(agent.Tools, ", "))
		}
		cmd.Printf("max iterations: %d\n", agent.MaxIterations)
		cmd.Printf("system prompt:\n  %s\n", strings.ReplaceAll(agent.SystemPrompt, "\n", "\n  "))
		return nil
	},
}
