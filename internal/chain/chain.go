// Package chain wires a prompt template to a provider and reduces the
// provider's event stream to plain text.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samsaffron/qa-chat/internal/llm"
	"github.com/samsaffron/qa-chat/internal/prompt"
)

// Input is one invocation's template variables plus optional prior turns.
type Input struct {
	Vars    map[string]string
	History []llm.Message
}

// Chain is prompt -> model -> string output.
type Chain struct {
	Template        *prompt.ChatTemplate
	Provider        llm.Provider
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// Stream runs the chain and calls onChunk with each text chunk as it arrives.
// It returns the full text. On error the partial text is returned as well.
func (c *Chain) Stream(ctx context.Context, in Input, onChunk func(string)) (string, error) {
	if c.Template == nil || c.Provider == nil {
		return "", errors.New("chain: template and provider are required")
	}
	msgs, err := c.Template.Format(in.Vars)
	if err != nil {
		return "", err
	}
	msgs = withHistory(msgs, in.History)

	start := time.Now()
	slog.Debug("chain_stream_start", "provider", c.Provider.Name(), "messages", len(msgs))

	stream, err := c.Provider.Stream(ctx, llm.Request{
		Model:           c.Model,
		Messages:        msgs,
		Temperature:     llm.Float(c.Temperature),
		MaxOutputTokens: c.MaxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("start stream: %w", err)
	}
	defer stream.Close()

	text, usage, err := llm.Collect(stream, onChunk)
	if err != nil {
		return text, err
	}
	attrs := []any{"provider", c.Provider.Name(), "duration", time.Since(start), "chars", len(text)}
	if usage != nil {
		attrs = append(attrs, "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	}
	slog.Debug("chain_stream_done", attrs...)
	return text, nil
}

// Invoke runs the chain to completion.
func (c *Chain) Invoke(ctx context.Context, in Input) (string, error) {
	return c.Stream(ctx, in, nil)
}

// withHistory splices history in front of the final user message. System
// turns in history are dropped; the template owns the system prompt.
func withHistory(msgs, history []llm.Message) []llm.Message {
	if len(history) == 0 {
		return msgs
	}
	last := len(msgs) - 1
	for last >= 0 && msgs[last].Role != llm.RoleUser {
		last--
	}
	if last < 0 {
		last = len(msgs)
	}
	out := make([]llm.Message, 0, len(msgs)+len(history))
	out = append(out, msgs[:last]...)
	for _, h := range history {
		if h.Role == llm.RoleSystem {
			continue
		}
		out = append(out, h)
	}
	return append(out, msgs[last:]...)
}
