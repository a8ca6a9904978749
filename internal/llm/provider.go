package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/samsaffron/qa-chat/internal/config"
)

// NewProvider builds the named provider for apiKey and model. An empty model
// uses the provider's configured default.
func NewProvider(ctx context.Context, cfg *config.Config, name, apiKey, model string) (Provider, error) {
	pc, ok := cfg.GetProvider(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%s: api key is required", name)
	}
	if model == "" {
		model = pc.Model
	}
	if model == "" {
		return nil, fmt.Errorf("%s: model is required", name)
	}

	switch pc.Type {
	case config.ProviderTypeCohere:
		p := NewCohereProvider(apiKey, model)
		if pc.BaseURL != "" && pc.BaseURL != cohereCompatBaseURL {
			p = NewOpenAICompatProvider(pc.BaseURL, apiKey, model, pc.DisplayName)
		}
		return p, nil
	case config.ProviderTypeOpenAI:
		if pc.BaseURL != "" {
			return NewOpenAICompatProvider(pc.BaseURL, apiKey, model, pc.DisplayName), nil
		}
		return NewOpenAIProvider(apiKey, model), nil
	case config.ProviderTypeAnthropic:
		return NewAnthropicProvider(apiKey, model), nil
	case config.ProviderTypeGemini:
		return NewGeminiProvider(ctx, apiKey, model)
	case config.ProviderTypeOpenAICompat:
		if pc.BaseURL == "" {
			return nil, fmt.Errorf("%s: base_url is required for openai-compatible providers", name)
		}
		return NewOpenAICompatProvider(pc.BaseURL, apiKey, model, pc.DisplayName), nil
	default:
		return nil, fmt.Errorf("%s: unsupported provider type %q", name, pc.Type)
	}
}

// ParseProviderModel splits "provider:model". The model part is optional.
func ParseProviderModel(s string, cfg *config.Config) (string, string, error) {
	provider, model, _ := strings.Cut(strings.TrimSpace(s), ":")
	if provider == "" {
		return "", "", fmt.Errorf("provider is required")
	}
	if _, ok := cfg.GetProvider(provider); !ok {
		return "", "", fmt.Errorf("unknown provider: %s", provider)
	}
	return provider, model, nil
}
