package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat-completion conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemText(text string) Message    { return Message{Role: RoleSystem, Content: text} }
func UserText(text string) Message      { return Message{Role: RoleUser, Content: text} }
func AssistantText(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// Request is a provider-neutral chat-completion request.
type Request struct {
	Model           string
	Messages        []Message
	Temperature     *float64 // nil leaves the provider default
	MaxOutputTokens int      // 0 leaves the provider default
}

// Float returns a pointer to v for optional request fields.
func Float(v float64) *float64 { return &v }

type EventType string

const (
	EventTextDelta EventType = "text_delta"
	EventUsage     EventType = "usage"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

type Usage struct {
	InputTokens  int
	OutputTokens int
}

type Event struct {
	Type EventType
	Text string
	Use  *Usage
	Err  error
}

// Stream yields events until Recv returns io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Provider is a hosted chat-completion backend.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}
