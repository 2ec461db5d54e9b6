package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var (
	rootProvider string
	rootModel    string
	yoloMode     bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootProvider, "provider", "", "Override the configured provider (anthropic, openai, ollama, openai-compat)")
	rootCmd.PersistentFlags().StringVarP(&rootModel, "model", "m", "", "Override the configured model")
	rootCmd.PersistentFlags().BoolVar(&yoloMode, "yolo", false, "Auto-approve all tool executions (trusted environments only)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "ted",
	Short: "A streaming terminal coding assistant",
	Long: `ted is an interactive coding assistant for the terminal. It streams
model output, runs tools with approval gating, spawns background agents,
and keeps durable session context in a local store.

Examples:
  ted chat                      # start an interactive session
  ted chat --provider ollama    # use a local model
  ted store stats               # inspect the context store`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ted version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("ted " + Version)
	},
}
