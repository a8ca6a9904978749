package cmd

import (
	"errors"
	"os"

	"github.com/samsaffron/qa-chat/internal/exitcode"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <user config dir>/qa-chat/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "Provider to use, optionally with a model (cohere, openai:gpt-4o)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model to use")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

var rootCmd = &cobra.Command{
	Use:   "qa-chat",
	Short: "A simple QA chatbot backed by a hosted chat model",
	Long: `qa-chat answers questions with a hosted chat model (Cohere by default).

Examples:
  qa-chat serve                         # web UI on :8501
  qa-chat serve --addr 127.0.0.1:9000 --store sqlite
  qa-chat ask "What is LangChain?"      # one answer in the terminal
  qa-chat ask -p openai:gpt-4o "Explain embeddings."

  qa-chat models                        # providers and their models
  qa-chat config init                   # write a starter config file`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
}

var configPath string
var providerFlag string
var modelFlag string
var logLevel string

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr exitcode.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(exitcode.Error)
	}
}
