package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockTurn represents a single response turn from the mock provider.
type MockTurn struct {
	Text  string        // Text to emit (chunked to simulate streaming)
	Usage Usage         // Token usage to report
	Delay time.Duration // Delay before each chunk
	Error error         // Returned after Text has been emitted
}

// MockProvider returns scripted responses and records requests.
type MockProvider struct {
	name      string
	turns     []MockTurn
	turnIndex int
	Requests  []Request
	mu        sync.Mutex
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (m *MockProvider) Name() string {
	return m.name
}

// AddTurn adds a response turn and returns the provider for chaining.
func (m *MockProvider) AddTurn(t MockTurn) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return m
}

func (m *MockProvider) AddTextResponse(text string) *MockProvider {
	return m.AddTurn(MockTurn{Text: text})
}

func (m *MockProvider) AddError(err error) *MockProvider {
	return m.AddTurn(MockTurn{Error: err})
}

// RequestCount returns how many requests have been recorded.
func (m *MockProvider) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastRequest returns the most recent request.
func (m *MockProvider) LastRequest() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return Request{}, false
	}
	return m.Requests[len(m.Requests)-1], true
}

func (m *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)

	if m.turnIndex >= len(m.turns) {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock provider: no more turns configured (expected turn %d, have %d)", m.turnIndex, len(m.turns))
	}

	turn := m.turns[m.turnIndex]
	m.turnIndex++
	m.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, ch chan<- Event) error {
		for _, chunk := range chunkText(turn.Text, 10) {
			if turn.Delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(turn.Delay):
				}
			}
			if err := emit(ctx, ch, Event{Type: EventTextDelta, Text: chunk}); err != nil {
				return err
			}
		}

		if turn.Error != nil {
			return turn.Error
		}

		usage := turn.Usage
		if err := emit(ctx, ch, Event{Type: EventUsage, Use: &usage}); err != nil {
			return err
		}
		return emit(ctx, ch, Event{Type: EventDone})
	}), nil
}

// chunkText splits text into chunks of roughly chunkSize bytes, preferring
// to break after a space.
func chunkText(text string, chunkSize int) []string {
	if len(text) == 0 {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= chunkSize {
			chunks = append(chunks, text)
			break
		}

		breakPoint := chunkSize
		for i := chunkSize; i > chunkSize/2; i-- {
			if text[i] == ' ' {
				breakPoint = i + 1
				break
			}
		}
		// never split inside a UTF-8 sequence
		for breakPoint < len(text) && text[breakPoint]&0xC0 == 0x80 {
			breakPoint++
		}

		chunks = append(chunks, text[:breakPoint])
		text = text[breakPoint:]
	}
	return chunks
}
