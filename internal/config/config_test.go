package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyOverrides(t *testing.T) {
	cfg := Default()

	cfg.ApplyOverrides("openai", "gpt-4o")
	if cfg.Provider != "openai" {
		t.Fatalf("provider=%q, want %q", cfg.Provider, "openai")
	}
	if cfg.Providers["openai"].Model != "gpt-4o" {
		t.Fatalf("openai model=%q, want %q", cfg.Providers["openai"].Model, "gpt-4o")
	}
	if cfg.Providers["cohere"].Model != "c4ai-aya-vision-8b" {
		t.Fatalf("cohere model changed unexpectedly: %q", cfg.Providers["cohere"].Model)
	}

	cfg.ApplyOverrides("", "gpt-4o-mini")
	if cfg.Provider != "openai" {
		t.Fatalf("provider changed unexpectedly: %q", cfg.Provider)
	}
	if cfg.Providers["openai"].Model != "gpt-4o-mini" {
		t.Fatalf("openai model=%q, want %q", cfg.Providers["openai"].Model, "gpt-4o-mini")
	}
}

func TestInferProviderType(t *testing.T) {
	tests := []struct {
		name     string
		explicit ProviderType
		want     ProviderType
	}{
		{"cohere", "", ProviderTypeCohere},
		{"openai", "", ProviderTypeOpenAI},
		{"anthropic", "", ProviderTypeAnthropic},
		{"gemini", "", ProviderTypeGemini},
		{"groq", "", ProviderTypeOpenAICompat},
		{"cohere", ProviderTypeOpenAICompat, ProviderTypeOpenAICompat}, // explicit overrides
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := InferProviderType(tc.name, tc.explicit)
			if got != tc.want {
				t.Errorf("InferProviderType(%q, %q) = %q, want %q", tc.name, tc.explicit, got, tc.want)
			}
		})
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CO_API_KEY", "")
	t.Setenv("COHERE_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		// An explicit path that does not exist is an error; the search path is not.
		t.Fatalf("expected error for explicit missing file, got config %+v", cfg)
	}

	t.Chdir(t.TempDir())
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider != "cohere" {
		t.Errorf("provider=%q, want cohere", cfg.Provider)
	}
	if cfg.Chat.Temperature != 0.7 {
		t.Errorf("temperature=%v, want 0.7", cfg.Chat.Temperature)
	}
	if cfg.Serve.SessionIdle != 30*time.Minute {
		t.Errorf("session_idle=%v, want 30m", cfg.Serve.SessionIdle)
	}
	p, err := cfg.ActiveProvider()
	if err != nil {
		t.Fatalf("ActiveProvider() error: %v", err)
	}
	if p.Model != "c4ai-aya-vision-8b" {
		t.Errorf("model=%q, want c4ai-aya-vision-8b", p.Model)
	}
	if len(p.Models) != 2 || p.Models[1] != "c4ai-aya-vision-32b" {
		t.Errorf("models=%v", p.Models)
	}
	if p.APIKey != "" {
		t.Errorf("expected no api key, got %q", p.APIKey)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `provider: cohere
providers:
  cohere:
    api_key: ${TEST_QACHAT_KEY}
  groq:
    base_url: https://api.groq.com/openai/v1
    models: [llama-3.3-70b]
chat:
  temperature: 0.2
  request_timeout: 45s
serve:
  addr: ":9000"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_QACHAT_KEY", "secret-key")
	t.Setenv("QACHAT_SERVE_TITLE", "From Env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Chat.Temperature != 0.2 {
		t.Errorf("temperature=%v, want 0.2", cfg.Chat.Temperature)
	}
	if cfg.Chat.RequestTimeout != 45*time.Second {
		t.Errorf("request_timeout=%v, want 45s", cfg.Chat.RequestTimeout)
	}
	if cfg.Serve.Addr != ":9000" {
		t.Errorf("addr=%q", cfg.Serve.Addr)
	}
	if cfg.Serve.Title != "From Env" {
		t.Errorf("title=%q, want env override", cfg.Serve.Title)
	}

	cohere, _ := cfg.GetProvider("cohere")
	if cohere.APIKey != "secret-key" {
		t.Errorf("cohere api key=%q, want expanded env", cohere.APIKey)
	}
	if cohere.Model != "c4ai-aya-vision-8b" {
		t.Errorf("cohere model=%q, defaults should merge with file values", cohere.Model)
	}

	groq, ok := cfg.GetProvider("groq")
	if !ok {
		t.Fatal("expected groq provider")
	}
	if groq.Type != ProviderTypeOpenAICompat {
		t.Errorf("groq type=%q", groq.Type)
	}
	if groq.Model != "llama-3.3-70b" {
		t.Errorf("groq model=%q, want first listed model", groq.Model)
	}
}

func TestGetProviderUnknown(t *testing.T) {
	cfg := Default()
	if _, ok := cfg.GetProvider("nope"); ok {
		t.Fatal("expected unknown provider to be rejected")
	}
	cfg.Provider = "nope"
	if _, err := cfg.ActiveProvider(); err == nil {
		t.Fatal("expected error for unknown active provider")
	}
}

func TestSaveOmitsAPIKeys(t *testing.T) {
	cfg := Default()
	p := cfg.Providers["cohere"]
	p.APIKey = "do-not-write"
	cfg.Providers["cohere"] = p

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected config content")
	}
	if strings.Contains(string(data), "do-not-write") {
		t.Fatalf("api key leaked into config file:\n%s", data)
	}
	if cfg.Providers["cohere"].APIKey != "do-not-write" {
		t.Fatal("Save must not mutate the caller's config")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load(saved) error: %v", err)
	}
	if loaded.Chat.RequestTimeout != cfg.Chat.RequestTimeout {
		t.Errorf("request_timeout round trip: got %v, want %v", loaded.Chat.RequestTimeout, cfg.Chat.RequestTimeout)
	}
}

func TestResolveValue(t *testing.T) {
	t.Setenv("RESOLVE_TEST", "from-env")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"literal", "literal"},
		{"${RESOLVE_TEST}", "from-env"},
		{"$RESOLVE_TEST", "from-env"},
		{"$(printf ' hi ')", "hi"},
	}
	for _, tc := range tests {
		got, err := ResolveValue(tc.in)
		if err != nil {
			t.Fatalf("ResolveValue(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ResolveValue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if _, err := ResolveValue("$(exit 3)"); err == nil {
		t.Error("expected failing command to return an error")
	}
}
