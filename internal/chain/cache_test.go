package chain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/samsaffron/qa-chat/internal/config"
	"github.com/samsaffron/qa-chat/internal/llm"
)

func countingFactory(calls *int) Factory {
	return func(ctx context.Context, provider, apiKey, model string) (*Chain, error) {
		*calls++
		return &Chain{Provider: llm.NewMockProvider(provider), Model: model}, nil
	}
}

func TestCacheReusesChains(t *testing.T) {
	var calls int
	c := NewCache(0, countingFactory(&calls))
	ctx := context.Background()

	a, err := c.Get(ctx, "cohere", "key-1", "m")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	b, err := c.Get(ctx, "cohere", "key-1", "m")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if a != b {
		t.Fatal("expected the same chain for the same triple")
	}
	if calls != 1 {
		t.Fatalf("factory calls=%d, want 1", calls)
	}

	for _, triple := range [][3]string{
		{"cohere", "key-2", "m"},
		{"cohere", "key-1", "other"},
		{"openai", "key-1", "m"},
	} {
		ch, err := c.Get(ctx, triple[0], triple[1], triple[2])
		if err != nil {
			t.Fatalf("Get(%v) error: %v", triple, err)
		}
		if ch == a {
			t.Fatalf("Get(%v) returned a chain for a different triple", triple)
		}
	}
	if calls != 4 {
		t.Fatalf("factory calls=%d, want 4", calls)
	}
	if c.Len() != 4 {
		t.Fatalf("Len()=%d, want 4", c.Len())
	}

	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("Len() after Purge=%d", c.Len())
	}
}

func TestCacheRejectsBlankKey(t *testing.T) {
	var calls int
	c := NewCache(4, countingFactory(&calls))
	for _, key := range []string{"", "   "} {
		if _, err := c.Get(context.Background(), "cohere", key, "m"); !errors.Is(err, ErrNoAPIKey) {
			t.Fatalf("Get(%q) err=%v, want ErrNoAPIKey", key, err)
		}
	}
	if calls != 0 {
		t.Fatalf("factory called %d times for blank keys", calls)
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	var calls int
	c := NewCache(2, countingFactory(&calls))
	ctx := context.Background()

	first, _ := c.Get(ctx, "p", "k", "1")
	c.Get(ctx, "p", "k", "2")
	c.Get(ctx, "p", "k", "3")
	if c.Len() != 2 {
		t.Fatalf("Len()=%d, want 2", c.Len())
	}
	again, _ := c.Get(ctx, "p", "k", "1")
	if again == first {
		t.Fatal("expected evicted chain to be rebuilt")
	}
	if calls != 4 {
		t.Fatalf("factory calls=%d, want 4", calls)
	}
}

func TestCacheFactoryError(t *testing.T) {
	boom := errors.New("boom")
	c := NewCache(2, func(ctx context.Context, provider, apiKey, model string) (*Chain, error) {
		return nil, boom
	})
	if _, err := c.Get(context.Background(), "p", "k", "m"); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if c.Len() != 0 {
		t.Fatal("failed builds must not be cached")
	}
}

func TestCacheKeyHidesAPIKey(t *testing.T) {
	key := cacheKey("cohere", "super-secret", "m")
	if strings.Contains(key, "super-secret") {
		t.Fatalf("cache key leaks api key: %q", key)
	}
}

func TestNewFactory(t *testing.T) {
	cfg := config.Default()
	factory := NewFactory(cfg)

	ch, err := factory(context.Background(), "cohere", "k", "")
	if err != nil {
		t.Fatalf("factory() error: %v", err)
	}
	if ch.Model != "c4ai-aya-vision-8b" {
		t.Fatalf("Model=%q, want provider default", ch.Model)
	}
	if ch.Temperature != 0.7 {
		t.Fatalf("Temperature=%v", ch.Temperature)
	}
	if got := ch.Template.Variables(); len(got) != 1 || got[0] != "question" {
		t.Fatalf("Variables()=%v, want [question]", got)
	}

	if _, err := factory(context.Background(), "nope", "k", ""); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
