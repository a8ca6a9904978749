package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/samsaffron/qa-chat/internal/chain"
	"github.com/samsaffron/qa-chat/internal/config"
	"github.com/samsaffron/qa-chat/internal/llm"
	"github.com/samsaffron/qa-chat/internal/logging"
)

// newChainFactory builds the chains used by serve and ask. Tests swap it for
// one backed by a mock provider.
var newChainFactory = chain.NewFactory

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyProviderOverrides(cfg, modelFlag, providerFlag); err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// applyProviderOverrides applies --provider (which may carry a model) and
// then --model, so an explicit --model wins.
func applyProviderOverrides(cfg *config.Config, model, providerFlag string) error {
	if providerFlag != "" {
		provider, providerModel, err := llm.ParseProviderModel(providerFlag, cfg)
		if err != nil {
			return err
		}
		cfg.ApplyOverrides(provider, providerModel)
	}
	cfg.ApplyOverrides("", model)
	return nil
}

func initLogging(cfg *config.Config, fallback io.Writer) {
	if _, err := logging.Init(cfg.Log, fallback); err != nil {
		slog.Warn("log_file_unavailable", "path", cfg.Log.File, "error", err)
	}
}
