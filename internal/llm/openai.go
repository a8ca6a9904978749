package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const cohereCompatBaseURL = "https://api.cohere.ai/compatibility/v1"

// OpenAICompatProvider streams Chat Completions from any endpoint that speaks
// the OpenAI wire format: OpenAI itself, Cohere's compatibility API, Groq, etc.
type OpenAICompatProvider struct {
	client       *openai.Client
	name         string
	model        string
	includeUsage bool
}

// NewOpenAICompatProvider builds a provider for baseURL. An empty baseURL
// uses the SDK default (api.openai.com).
func NewOpenAICompatProvider(baseURL, apiKey, model, name string, opts ...option.RequestOption) *OpenAICompatProvider {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	client := openai.NewClient(reqOpts...)
	return &OpenAICompatProvider{
		client: &client,
		name:   name,
		model:  model,
	}
}

// NewOpenAIProvider talks to api.openai.com and asks for usage on the stream.
func NewOpenAIProvider(apiKey, model string, opts ...option.RequestOption) *OpenAICompatProvider {
	p := NewOpenAICompatProvider("", apiKey, model, "OpenAI", opts...)
	p.includeUsage = true
	return p
}

// NewCohereProvider uses Cohere's OpenAI-compatible endpoint.
func NewCohereProvider(apiKey, model string, opts ...option.RequestOption) *OpenAICompatProvider {
	return NewOpenAICompatProvider(cohereCompatBaseURL, apiKey, model, "Cohere", opts...)
}

func (p *OpenAICompatProvider) Name() string {
	return fmt.Sprintf("%s (%s)", p.name, p.model)
}

func (p *OpenAICompatProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	messages := buildOpenAIMessages(req.Messages)
	if len(messages) == 0 {
		return nil, fmt.Errorf("no user content provided")
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(chooseModel(req.Model, p.model)),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if p.includeUsage {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		slog.Debug("openai_chat_stream_request",
			"provider", p.name,
			"model", string(params.Model),
			"message_count", len(messages),
		)

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if err := emit(ctx, events, Event{Type: EventTextDelta, Text: choice.Delta.Content}); err != nil {
					return err
				}
			}
			if chunk.Usage.TotalTokens > 0 {
				use := &Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				}
				if err := emit(ctx, events, Event{Type: EventUsage, Use: use}); err != nil {
					return err
				}
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("%s streaming error: %w", strings.ToLower(p.name), err)
		}
		return emit(ctx, events, Event{Type: EventDone})
	}), nil
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	hasUser := false
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleUser:
			hasUser = true
			out = append(out, openai.UserMessage(msg.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		}
	}
	if !hasUser {
		return nil
	}
	return out
}
