package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/samsaffron/qa-chat/internal/config"
	"github.com/samsaffron/qa-chat/internal/llm"
	"github.com/samsaffron/qa-chat/internal/prompt"
)

// ErrNoAPIKey is returned when a chain is requested without a key.
var ErrNoAPIKey = errors.New("api key is required")

// DefaultCacheSize bounds how many chains are kept.
const DefaultCacheSize = 32

// Factory builds a chain for a provider/key/model triple. The model is
// already resolved to the provider default when the caller left it blank.
type Factory func(ctx context.Context, provider, apiKey, model string) (*Chain, error)

// Cache keeps built chains keyed by provider, key fingerprint and model.
type Cache struct {
	factory Factory
	chains  *lru.Cache[string, *Chain]
	mu      sync.Mutex
}

func NewCache(size int, factory Factory) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	chains, err := lru.New[string, *Chain](size)
	if err != nil {
		// only fails for size <= 0
		panic(err)
	}
	return &Cache{factory: factory, chains: chains}
}

// Get returns the cached chain for the triple, building it on first use.
func (c *Cache) Get(ctx context.Context, provider, apiKey, model string) (*Chain, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	key := cacheKey(provider, apiKey, model)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.chains.Get(key); ok {
		return ch, nil
	}
	ch, err := c.factory(ctx, provider, apiKey, model)
	if err != nil {
		return nil, err
	}
	c.chains.Add(key, ch)
	return ch, nil
}

func (c *Cache) Len() int {
	return c.chains.Len()
}

// Purge drops every cached chain.
func (c *Cache) Purge() {
	c.chains.Purge()
}

func cacheKey(provider, apiKey, model string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return provider + "\x00" + hex.EncodeToString(sum[:]) + "\x00" + model
}

// NewFactory returns a Factory that builds real providers from cfg.
func NewFactory(cfg *config.Config) Factory {
	return func(ctx context.Context, provider, apiKey, model string) (*Chain, error) {
		pc, ok := cfg.GetProvider(provider)
		if !ok {
			return nil, fmt.Errorf("unknown provider: %s", provider)
		}
		if model == "" {
			model = pc.Model
		}
		p, err := llm.NewProvider(ctx, cfg, provider, apiKey, model)
		if err != nil {
			return nil, err
		}
		tmpl, err := QATemplate(cfg, pc.DisplayName)
		if err != nil {
			return nil, err
		}
		return &Chain{
			Template:        tmpl,
			Provider:        p,
			Model:           model,
			Temperature:     cfg.Chat.Temperature,
			MaxOutputTokens: cfg.Chat.MaxOutputTokens,
		}, nil
	}
}

// QATemplate builds the question template and binds {provider} up front so
// callers only supply {question}.
func QATemplate(cfg *config.Config, displayName string) (*prompt.ChatTemplate, error) {
	system := cfg.Chat.SystemPrompt
	if strings.TrimSpace(system) == "" {
		system = config.DefaultSystemPrompt
	}
	system = strings.ReplaceAll(system, "{provider}", escapeBraces(displayName))
	return prompt.QA(system)
}

func escapeBraces(s string) string {
	s = strings.ReplaceAll(s, "{", "{{")
	return strings.ReplaceAll(s, "}", "}}")
}
