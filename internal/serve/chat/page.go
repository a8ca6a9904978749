package chat

import (
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/samsaffron/qa-chat/internal/render"
)

//go:embed templates/index.html
var indexHTML string

var pageTemplate = template.Must(template.New("index").Parse(indexHTML))

// exampleQuestions fill the "try these examples" grid, two per column.
var exampleQuestions = [][]string{
	{"What is LangChain?", "Explain the concept of embeddings."},
	{"How does a transformer model work?", "What are the applications of LLMs?"},
	{"Describe the attention mechanism.", "What is the difference between supervised and unsupervised learning?"},
}

type pageData struct {
	Title        string
	Provider     string
	Models       []string
	DefaultModel string
	DashboardURL string
	SharedKey    bool
	Cursor       string
	Examples     [][]string
}

func (m *SessionManager) handlePage(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:        m.cfg.Serve.Title,
		Provider:     m.provider.DisplayName,
		Models:       m.provider.Models,
		DefaultModel: m.provider.Model,
		DashboardURL: m.provider.DashboardURL,
		SharedKey:    m.cfg.Serve.ShareConfiguredKey && m.provider.APIKey != "",
		Cursor:       render.CursorGlyph,
		Examples:     exampleQuestions,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		slog.Error("chat_page_render_failed", "error", err)
	}
}
