package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/samsaffron/qa-chat/internal/chain"
	"github.com/samsaffron/qa-chat/internal/exitcode"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question and stream the answer",
	Long: `Ask a single question using the same prompt as the web UI and stream the
answer to stdout.

The API key is taken from config or the provider's environment variable
(CO_API_KEY for Cohere). When neither is set and stdin is a terminal, you are
prompted for it without echo.

Examples:
  qa-chat ask "What is LangChain?"
  qa-chat ask -m c4ai-aya-vision-32b "Describe the attention mechanism."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

// Terminal hooks, replaced in tests.
var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readPassword    = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg, io.Discard)

	provider, err := cfg.ActiveProvider()
	if err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return errors.New("question is empty")
	}

	apiKey := provider.APIKey
	if apiKey == "" {
		if apiKey, err = promptAPIKey(cmd.ErrOrStderr(), provider.DisplayName); err != nil {
			return err
		}
	}
	if apiKey == "" {
		return exitcode.NoKey(fmt.Sprintf("Please enter your %s API key (config providers.%s.api_key or environment).", provider.DisplayName, cfg.Provider))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if timeout := cfg.Chat.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ch, err := newChainFactory(cfg)(ctx, cfg.Provider, apiKey, provider.Model)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, err = ch.Stream(ctx, chain.Input{Vars: map[string]string{"question": question}}, func(chunk string) {
		fmt.Fprint(out, chunk)
	})
	fmt.Fprintln(out)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return exitcode.Cancel()
		}
		return err
	}
	return nil
}

// promptAPIKey asks for a key without echo. It returns "" when stdin is not
// a terminal.
func promptAPIKey(w io.Writer, displayName string) (string, error) {
	if !stdinIsTerminal() {
		return "", nil
	}
	fmt.Fprintf(w, "Enter your %s API key: ", displayName)
	key, err := readPassword()
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read api key: %w", err)
	}
	return strings.TrimSpace(string(key)), nil
}
