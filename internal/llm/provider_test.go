package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/samsaffron/qa-chat/internal/config"
)

func TestParseProviderModel(t *testing.T) {
	cfg := config.Default()
	cfg.Providers["groq"] = config.ProviderConfig{
		BaseURL: "https://api.groq.com/openai/v1",
		Models:  []string{"llama-3.3-70b"},
	}

	tests := []struct {
		name         string
		input        string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{name: "provider only", input: "cohere", wantProvider: "cohere"},
		{name: "provider with model", input: "openai:gpt-4o", wantProvider: "openai", wantModel: "gpt-4o"},
		{name: "custom provider", input: "groq:llama-3.3-70b", wantProvider: "groq", wantModel: "llama-3.3-70b"},
		{name: "invalid provider", input: "unknown:model", wantErr: true},
		{name: "empty", input: "  ", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			provider, model, err := ParseProviderModel(tc.input, cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if provider != tc.wantProvider {
				t.Fatalf("provider=%q, want %q", provider, tc.wantProvider)
			}
			if model != tc.wantModel {
				t.Fatalf("model=%q, want %q", model, tc.wantModel)
			}
		})
	}
}

func TestNewProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Providers["nobase"] = config.ProviderConfig{Models: []string{"m"}}
	ctx := context.Background()

	tests := []struct {
		name     string
		provider string
		key      string
		model    string
		wantName string
		wantErr  string
	}{
		{name: "cohere default model", provider: "cohere", key: "k", wantName: "Cohere (c4ai-aya-vision-8b)"},
		{name: "cohere explicit model", provider: "cohere", key: "k", model: "c4ai-aya-vision-32b", wantName: "Cohere (c4ai-aya-vision-32b)"},
		{name: "openai", provider: "openai", key: "k", model: "gpt-4o", wantName: "OpenAI (gpt-4o)"},
		{name: "anthropic", provider: "anthropic", key: "k", wantName: "Anthropic (claude-sonnet-4-5)"},
		{name: "missing key", provider: "cohere", key: " ", wantErr: "api key is required"},
		{name: "unknown", provider: "nope", key: "k", wantErr: "unknown provider"},
		{name: "compat without base url", provider: "nobase", key: "k", wantErr: "base_url is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewProvider(ctx, cfg, tc.provider, tc.key, tc.model)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err=%v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tc.wantName {
				t.Fatalf("Name()=%q, want %q", p.Name(), tc.wantName)
			}
		})
	}
}
