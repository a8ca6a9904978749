package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samsaffron/qa-chat/internal/llm"
)

// Transcript is the serialized form used by the JSON and YAML exports.
type Transcript struct {
	Session  Session   `json:"session" yaml:"session"`
	Messages []Message `json:"messages" yaml:"messages"`
}

// escapeTableCell escapes characters that break markdown tables.
func escapeTableCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// ExportToMarkdown renders the transcript as a markdown document.
func ExportToMarkdown(sess *Session, messages []Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Chat %s\n\n", ShortID(sess.ID))
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| **Provider** | %s |\n", escapeTableCell(sess.Provider))
	fmt.Fprintf(&b, "| **Model** | %s |\n", escapeTableCell(sess.Model))
	fmt.Fprintf(&b, "| **Created** | %s |\n", sess.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "| **Messages** | %d |\n\n", len(messages))
	b.WriteString("---\n\n")

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleUser:
			b.WriteString("### User\n\n")
		case llm.RoleAssistant:
			b.WriteString("### Assistant\n\n")
		default:
			continue
		}
		b.WriteString(strings.TrimRight(msg.Content, "\n"))
		b.WriteString("\n\n---\n\n")
	}
	return b.String()
}

// ExportToJSON renders the transcript as indented JSON.
func ExportToJSON(sess *Session, messages []Message) ([]byte, error) {
	data, err := json.MarshalIndent(transcript(sess, messages), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToYAML renders the transcript as YAML.
func ExportToYAML(sess *Session, messages []Message) ([]byte, error) {
	data, err := yaml.Marshal(transcript(sess, messages))
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return data, nil
}

// Export renders the transcript in format ("md", "json" or "yaml") and
// returns the bytes with a content type and file extension.
func Export(format string, sess *Session, messages []Message) (data []byte, contentType, ext string, err error) {
	switch strings.ToLower(format) {
	case "", "md", "markdown":
		return []byte(ExportToMarkdown(sess, messages)), "text/markdown; charset=utf-8", "md", nil
	case "json":
		data, err = ExportToJSON(sess, messages)
		return data, "application/json", "json", err
	case "yaml", "yml":
		data, err = ExportToYAML(sess, messages)
		return data, "application/yaml", "yaml", err
	default:
		return nil, "", "", fmt.Errorf("unsupported export format: %q", format)
	}
}

func transcript(sess *Session, messages []Message) Transcript {
	t := Transcript{Session: *sess, Messages: messages}
	t.Session.MessageCount = len(messages)
	if t.Messages == nil {
		t.Messages = []Message{}
	}
	return t
}
