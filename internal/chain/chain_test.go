package chain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/samsaffron/qa-chat/internal/config"
	"github.com/samsaffron/qa-chat/internal/llm"
	"github.com/samsaffron/qa-chat/internal/prompt"
)

func newTestChain(t *testing.T, p llm.Provider) *Chain {
	t.Helper()
	tmpl, err := QATemplate(config.Default(), "Cohere")
	if err != nil {
		t.Fatalf("QATemplate() error: %v", err)
	}
	return &Chain{Template: tmpl, Provider: p, Model: "c4ai-aya-vision-8b", Temperature: 0.7}
}

func TestChainStream(t *testing.T) {
	mock := llm.NewMockProvider("mock").AddTextResponse("Go is a programming language made at Google.")
	c := newTestChain(t, mock)

	var chunks []string
	text, err := c.Stream(context.Background(), Input{Vars: map[string]string{"question": "What is Go?"}}, func(s string) {
		chunks = append(chunks, s)
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if text != "Go is a programming language made at Google." {
		t.Fatalf("text=%q", text)
	}
	if strings.Join(chunks, "") != text {
		t.Fatalf("chunks=%q", chunks)
	}

	req, ok := mock.LastRequest()
	if !ok {
		t.Fatal("no request recorded")
	}
	if req.Temperature == nil || *req.Temperature != 0.7 || req.Model != "c4ai-aya-vision-8b" {
		t.Fatalf("request=%+v", req)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("messages=%+v", req.Messages)
	}
	if req.Messages[0].Role != llm.RoleSystem || !strings.Contains(req.Messages[0].Content, "powered by Cohere") {
		t.Fatalf("system message=%+v", req.Messages[0])
	}
	if req.Messages[1] != llm.UserText("What is Go?") {
		t.Fatalf("user message=%+v", req.Messages[1])
	}
}

func TestChainStreamWithHistory(t *testing.T) {
	mock := llm.NewMockProvider("mock").AddTextResponse("ok")
	c := newTestChain(t, mock)

	history := []llm.Message{
		llm.UserText("first"),
		llm.AssistantText("first answer"),
	}
	if _, err := c.Invoke(context.Background(), Input{Vars: map[string]string{"question": "second"}, History: history}); err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}

	req, _ := mock.LastRequest()
	roles := make([]llm.Role, len(req.Messages))
	for i, m := range req.Messages {
		roles[i] = m.Role
	}
	want := []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleUser}
	if len(roles) != len(want) {
		t.Fatalf("roles=%v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles=%v, want %v", roles, want)
		}
	}
	if req.Messages[3].Content != "second" {
		t.Fatalf("last message=%+v", req.Messages[3])
	}
}

func TestChainStreamError(t *testing.T) {
	boom := errors.New("invalid api token")
	mock := llm.NewMockProvider("mock").AddTurn(llm.MockTurn{Text: "half", Error: boom})
	c := newTestChain(t, mock)

	text, err := c.Invoke(context.Background(), Input{Vars: map[string]string{"question": "q"}})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want %v", err, boom)
	}
	if text != "half" {
		t.Fatalf("partial text=%q", text)
	}
}

func TestChainMissingQuestion(t *testing.T) {
	mock := llm.NewMockProvider("mock")
	c := newTestChain(t, mock)
	if _, err := c.Invoke(context.Background(), Input{}); err == nil {
		t.Fatal("expected error for missing question")
	}
	if mock.RequestCount() != 0 {
		t.Fatal("provider should not be called when formatting fails")
	}
}

func TestWithHistoryNoUserMessage(t *testing.T) {
	tmpl, err := prompt.FromMessages(prompt.System("sys"))
	if err != nil {
		t.Fatalf("FromMessages() error: %v", err)
	}
	msgs, _ := tmpl.Format(nil)
	out := withHistory(msgs, []llm.Message{llm.UserText("u"), llm.SystemText("ignored")})
	if len(out) != 2 || out[1].Content != "u" {
		t.Fatalf("out=%+v", out)
	}
}
