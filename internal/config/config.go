package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ProviderType identifies which client implementation backs a provider entry.
type ProviderType string

const (
	ProviderTypeCohere       ProviderType = "cohere"
	ProviderTypeOpenAI       ProviderType = "openai"
	ProviderTypeAnthropic    ProviderType = "anthropic"
	ProviderTypeGemini       ProviderType = "gemini"
	ProviderTypeOpenAICompat ProviderType = "openai-compat"
)

// DefaultSystemPrompt is the system half of the question template.
// {provider} is filled with the provider display name.
const DefaultSystemPrompt = "You are a helpful assistant powered by {provider} that provides accurate answers based on the provided context."

type Config struct {
	Provider  string                    `mapstructure:"provider" yaml:"provider"`
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Chat      ChatConfig                `mapstructure:"chat" yaml:"chat"`
	Serve     ServeConfig               `mapstructure:"serve" yaml:"serve"`
	Store     StoreConfig               `mapstructure:"store" yaml:"store"`
	Log       LogConfig                 `mapstructure:"log" yaml:"log"`
}

type ProviderConfig struct {
	Type         ProviderType `mapstructure:"type" yaml:"type,omitempty"`
	DisplayName  string       `mapstructure:"display_name" yaml:"display_name,omitempty"`
	APIKey       string       `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL      string       `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Model        string       `mapstructure:"model" yaml:"model,omitempty"`
	Models       []string     `mapstructure:"models" yaml:"models,omitempty"`
	DashboardURL string       `mapstructure:"dashboard_url" yaml:"dashboard_url,omitempty"`
}

type ChatConfig struct {
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	SystemPrompt    string        `mapstructure:"system_prompt" yaml:"system_prompt"`
	IncludeHistory  bool          `mapstructure:"include_history" yaml:"include_history"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

type ServeConfig struct {
	Addr  string `mapstructure:"addr" yaml:"addr"`
	Title string `mapstructure:"title" yaml:"title"`
	// Token, when set, is required as a bearer token (or ?token=) on /chat endpoints.
	Token string `mapstructure:"token" yaml:"token,omitempty"`
	// ShareConfiguredKey lets browser sessions fall back to the provider key
	// from config instead of requiring one in the sidebar.
	ShareConfiguredKey bool          `mapstructure:"share_configured_key" yaml:"share_configured_key"`
	SessionIdle        time.Duration `mapstructure:"session_idle" yaml:"session_idle"`
	GCInterval         time.Duration `mapstructure:"gc_interval" yaml:"gc_interval"`
	EventBuffer        int           `mapstructure:"event_buffer" yaml:"event_buffer"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// builtinProviders seeds defaults for the providers we know how to talk to.
var builtinProviders = map[string]ProviderConfig{
	"cohere": {
		DisplayName:  "Cohere",
		BaseURL:      "https://api.cohere.ai/compatibility/v1",
		Model:        "c4ai-aya-vision-8b",
		Models:       []string{"c4ai-aya-vision-8b", "c4ai-aya-vision-32b"},
		DashboardURL: "https://dashboard.cohere.com/api-keys",
	},
	"openai": {
		DisplayName:  "OpenAI",
		Model:        "gpt-4o-mini",
		Models:       []string{"gpt-4o-mini", "gpt-4o"},
		DashboardURL: "https://platform.openai.com/api-keys",
	},
	"anthropic": {
		DisplayName:  "Anthropic",
		Model:        "claude-sonnet-4-5",
		Models:       []string{"claude-sonnet-4-5", "claude-haiku-4-5"},
		DashboardURL: "https://console.anthropic.com/settings/keys",
	},
	"gemini": {
		DisplayName:  "Gemini",
		Model:        "gemini-2.5-flash",
		Models:       []string{"gemini-2.5-flash", "gemini-2.5-pro"},
		DashboardURL: "https://aistudio.google.com/apikey",
	},
}

// apiKeyEnv lists the environment variables consulted when no key is configured.
var apiKeyEnv = map[string][]string{
	"cohere":    {"CO_API_KEY", "COHERE_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	providers := make(map[string]ProviderConfig, len(builtinProviders))
	for name, p := range builtinProviders {
		p.Models = append([]string(nil), p.Models...)
		providers[name] = p
	}
	return &Config{
		Provider:  "cohere",
		Providers: providers,
		Chat: ChatConfig{
			Temperature:    0.7,
			SystemPrompt:   DefaultSystemPrompt,
			RequestTimeout: 2 * time.Minute,
		},
		Serve: ServeConfig{
			Addr:        ":8501",
			Title:       "QA Chatbot",
			SessionIdle: 30 * time.Minute,
			GCInterval:  5 * time.Minute,
			EventBuffer: 512,
		},
		Store: StoreConfig{Driver: "memory"},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("provider", def.Provider)
	for name, p := range def.Providers {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"display_name", p.DisplayName)
		v.SetDefault(prefix+"base_url", p.BaseURL)
		v.SetDefault(prefix+"model", p.Model)
		v.SetDefault(prefix+"models", p.Models)
		v.SetDefault(prefix+"dashboard_url", p.DashboardURL)
		v.SetDefault(prefix+"api_key", "")
	}
	v.SetDefault("chat.temperature", def.Chat.Temperature)
	v.SetDefault("chat.system_prompt", def.Chat.SystemPrompt)
	v.SetDefault("chat.include_history", def.Chat.IncludeHistory)
	v.SetDefault("chat.max_output_tokens", def.Chat.MaxOutputTokens)
	v.SetDefault("chat.request_timeout", def.Chat.RequestTimeout)
	v.SetDefault("serve.addr", def.Serve.Addr)
	v.SetDefault("serve.title", def.Serve.Title)
	v.SetDefault("serve.token", "")
	v.SetDefault("serve.share_configured_key", false)
	v.SetDefault("serve.session_idle", def.Serve.SessionIdle)
	v.SetDefault("serve.gc_interval", def.Serve.GCInterval)
	v.SetDefault("serve.event_buffer", def.Serve.EventBuffer)
	v.SetDefault("store.driver", def.Store.Driver)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.file", "")
}

// Load reads the config file (if any), applies QACHAT_* environment
// overrides and resolves API key references.
// An empty path searches the user config dir and the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QACHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := configDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	// Read config file (optional - won't error if missing)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.resolveKeys(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolveKeys() error {
	for name, p := range c.Providers {
		key, err := ResolveValue(p.APIKey)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", name, err)
		}
		if key == "" {
			for _, env := range apiKeyEnv[name] {
				if key = os.Getenv(env); key != "" {
					break
				}
			}
		}
		p.APIKey = key
		c.Providers[name] = p
	}
	return nil
}

// GetProvider returns the named provider entry with builtin values filled in
// for anything left empty. ok is false for names that are neither configured
// nor builtin.
func (c *Config) GetProvider(name string) (ProviderConfig, bool) {
	p, configured := c.Providers[name]
	builtin, isBuiltin := builtinProviders[name]
	if !configured && !isBuiltin {
		return ProviderConfig{}, false
	}
	if isBuiltin {
		if p.DisplayName == "" {
			p.DisplayName = builtin.DisplayName
		}
		if p.BaseURL == "" {
			p.BaseURL = builtin.BaseURL
		}
		if p.Model == "" {
			p.Model = builtin.Model
		}
		if len(p.Models) == 0 {
			p.Models = append([]string(nil), builtin.Models...)
		}
		if p.DashboardURL == "" {
			p.DashboardURL = builtin.DashboardURL
		}
	}
	p.Type = InferProviderType(name, p.Type)
	if p.DisplayName == "" {
		p.DisplayName = name
	}
	if p.Model == "" && len(p.Models) > 0 {
		p.Model = p.Models[0]
	}
	if p.Model != "" && !containsString(p.Models, p.Model) {
		p.Models = append([]string{p.Model}, p.Models...)
	}
	return p, true
}

// ActiveProvider returns the entry for c.Provider.
func (c *Config) ActiveProvider() (ProviderConfig, error) {
	p, ok := c.GetProvider(c.Provider)
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider: %s", c.Provider)
	}
	return p, nil
}

// ApplyOverrides switches the active provider and/or its default model.
// Empty arguments leave the current value alone.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model == "" {
		return
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	p := c.Providers[c.Provider]
	p.Model = model
	c.Providers[c.Provider] = p
}

// InferProviderType maps a provider name to its client type.
// Unknown names are treated as OpenAI-compatible endpoints.
func InferProviderType(name string, explicit ProviderType) ProviderType {
	if explicit != "" {
		return explicit
	}
	switch name {
	case "cohere":
		return ProviderTypeCohere
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic":
		return ProviderTypeAnthropic
	case "gemini":
		return ProviderTypeGemini
	default:
		return ProviderTypeOpenAICompat
	}
}

// ProviderNames returns configured and builtin provider names.
func (c *Config) ProviderNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, name := range []string{"cohere", "openai", "anthropic", "gemini"} {
		seen[name] = true
		names = append(names, name)
	}
	for name := range c.Providers {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") && !strings.HasPrefix(s, "$(") {
		return os.Getenv(s[1:])
	}
	return s
}

func configDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config dir: %w", err)
	}
	return filepath.Join(dir, "qa-chat"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Save writes cfg as YAML. API keys are never written; use ${VAR} references
// in the file instead.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}

	out := *cfg
	out.Providers = make(map[string]ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		p.APIKey = ""
		out.Providers[name] = p
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
