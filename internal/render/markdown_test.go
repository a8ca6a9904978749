package render

import (
	"strings"
	"testing"
)

func TestMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		contains []string
		excludes []string
	}{
		{
			name:     "paragraph and emphasis",
			src:      "Go is **fast**.",
			contains: []string{"<p>Go is <strong>fast</strong>.</p>"},
		},
		{
			name:     "gfm table",
			src:      "| a | b |\n|---|---|\n| 1 | 2 |\n",
			contains: []string{"<table>", "<td>1</td>"},
		},
		{
			name:     "gfm strikethrough",
			src:      "~~old~~",
			contains: []string{"<del>old</del>"},
		},
		{
			name:     "fenced code is highlighted inline",
			src:      "```go\nfunc main() {}\n```\n",
			contains: []string{"<pre", "style=", "func"},
		},
		{
			name:     "unknown language still renders",
			src:      "```nosuchlang\nplain words\n```\n",
			contains: []string{"<pre", "plain words"},
		},
		{
			name:     "raw html is not passed through",
			src:      "hello <script>alert(1)</script>",
			excludes: []string{"<script>"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Markdown(tc.src)
			if err != nil {
				t.Fatalf("Markdown() error: %v", err)
			}
			out := string(got)
			for _, want := range tc.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			for _, bad := range tc.excludes {
				if strings.Contains(out, bad) {
					t.Errorf("output contains %q:\n%s", bad, out)
				}
			}
		})
	}
}

func TestMarkdownEscapesCode(t *testing.T) {
	got, err := Markdown("```html\n<b>x</b>\n```\n")
	if err != nil {
		t.Fatalf("Markdown() error: %v", err)
	}
	if strings.Contains(string(got), "<b>x</b>") {
		t.Fatalf("code block content was not escaped:\n%s", got)
	}
}
