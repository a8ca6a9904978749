package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samsaffron/qa-chat/internal/config"
	"github.com/samsaffron/qa-chat/internal/llm"
)

// ErrNotFound is returned for operations on a session id the store does not know.
var ErrNotFound = errors.New("session not found")

// Session is one browser tab's conversation.
type Session struct {
	ID           string    `json:"id" yaml:"id"`
	Provider     string    `json:"provider" yaml:"provider"`
	Model        string    `json:"model" yaml:"model"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
	MessageCount int       `json:"message_count" yaml:"message_count"`
}

// Message is one transcript entry.
type Message struct {
	ID        int64     `json:"-" yaml:"-"`
	SessionID string    `json:"-" yaml:"-"`
	Role      llm.Role  `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Sequence  int       `json:"sequence" yaml:"sequence"`
}

// LLM converts the entry into a provider message.
func (m Message) LLM() llm.Message {
	return llm.Message{Role: m.Role, Content: m.Content}
}

// ToLLM converts a transcript into provider messages.
func ToLLM(messages []Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.LLM())
	}
	return out
}

// Store holds sessions and their transcripts for the life of the process.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	// Get returns nil, nil when the session does not exist.
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Session, error)

	// AddMessage appends msg and assigns its ID and Sequence.
	AddMessage(ctx context.Context, sessionID string, msg *Message) error
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)
	// Clear removes every message but keeps the session.
	Clear(ctx context.Context, sessionID string) error

	Close() error
}

// NewStore opens the store selected by cfg.Driver.
func NewStore(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore()
	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func duplicate(id string) error {
	return fmt.Errorf("session already exists: %s", id)
}
