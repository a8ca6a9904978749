package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openai/openai-go/option"
)

type capturedRequest struct {
	mu   sync.Mutex
	path string
	auth string
	body map[string]any
}

func newChatCompletionsServer(t *testing.T, deltas []string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		captured.mu.Lock()
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		_ = json.Unmarshal(raw, &captured.body)
		captured.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for i, delta := range deltas {
			chunk := map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   "c4ai-aya-vision-8b",
				"choices": []map[string]any{{
					"index":         0,
					"delta":         map[string]any{"content": delta},
					"finish_reason": nil,
				}},
			}
			if i == 0 {
				chunk["choices"].([]map[string]any)[0]["delta"].(map[string]any)["role"] = "assistant"
			}
			payload, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestOpenAICompatProviderStreamsDeltas(t *testing.T) {
	var captured capturedRequest
	srv := newChatCompletionsServer(t, []string{"Hel", "lo", " there"}, &captured)
	defer srv.Close()

	p := NewOpenAICompatProvider(srv.URL+"/v1", "test-key", "c4ai-aya-vision-8b", "Cohere", option.WithMaxRetries(0))
	stream, err := p.Stream(context.Background(), Request{
		Messages: []Message{
			SystemText("be helpful"),
			UserText("hi"),
		},
		Temperature: Float(0.7),
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	defer stream.Close()

	text, _, err := Collect(stream, nil)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if text != "Hello there" {
		t.Fatalf("text=%q, want %q", text, "Hello there")
	}

	captured.mu.Lock()
	defer captured.mu.Unlock()
	if !strings.HasSuffix(captured.path, "/chat/completions") {
		t.Errorf("path=%q", captured.path)
	}
	if captured.auth != "Bearer test-key" {
		t.Errorf("auth=%q", captured.auth)
	}
	if captured.body["model"] != "c4ai-aya-vision-8b" {
		t.Errorf("model=%v", captured.body["model"])
	}
	if captured.body["stream"] != true {
		t.Errorf("stream=%v, want true", captured.body["stream"])
	}
	if captured.body["temperature"] != 0.7 {
		t.Errorf("temperature=%v, want 0.7", captured.body["temperature"])
	}
	msgs, _ := captured.body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages=%v", captured.body["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message role=%v, want system", first["role"])
	}
	if _, ok := captured.body["stream_options"]; ok {
		t.Errorf("compat providers should not send stream_options")
	}
}

func TestOpenAICompatProviderReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api token","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider(srv.URL, "bad", "m", "Cohere", option.WithMaxRetries(0))
	stream, err := p.Stream(context.Background(), Request{Messages: []Message{UserText("hi")}})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	defer stream.Close()

	_, _, err = Collect(stream, nil)
	if err == nil {
		t.Fatal("expected error from 401 response")
	}
	if !strings.Contains(err.Error(), "cohere streaming error") {
		t.Fatalf("err=%v", err)
	}
}

func TestOpenAICompatProviderRequiresUserMessage(t *testing.T) {
	p := NewOpenAICompatProvider("http://127.0.0.1:1", "k", "m", "Cohere")
	if _, err := p.Stream(context.Background(), Request{Messages: []Message{SystemText("only system")}}); err == nil {
		t.Fatal("expected error without a user message")
	}
}

func TestOpenAICompatProviderTemperature(t *testing.T) {
	tests := []struct {
		name        string
		temperature *float64
		want        any
		present     bool
	}{
		{name: "zero is sent", temperature: Float(0), want: float64(0), present: true},
		{name: "set", temperature: Float(0.3), want: 0.3, present: true},
		{name: "unset", temperature: nil, present: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured capturedRequest
			srv := newChatCompletionsServer(t, []string{"ok"}, &captured)
			defer srv.Close()

			p := NewOpenAICompatProvider(srv.URL+"/v1", "k", "m", "Cohere", option.WithMaxRetries(0))
			stream, err := p.Stream(context.Background(), Request{
				Messages:    []Message{UserText("hi")},
				Temperature: tt.temperature,
			})
			if err != nil {
				t.Fatalf("Stream() error: %v", err)
			}
			if _, _, err := Collect(stream, nil); err != nil {
				t.Fatalf("Collect() error: %v", err)
			}
			stream.Close()

			captured.mu.Lock()
			defer captured.mu.Unlock()
			got, ok := captured.body["temperature"]
			if ok != tt.present || (ok && got != tt.want) {
				t.Fatalf("temperature=%v (present %v), want %v (present %v)", got, ok, tt.want, tt.present)
			}
		})
	}
}
