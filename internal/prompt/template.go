// Package prompt turns role/template pairs into chat messages.
//
// Templates use single-brace placeholders ("Hello {name}"), matching the
// system prompt format accepted in config. A doubled brace ("{{" or "}}")
// is a literal brace.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/samsaffron/qa-chat/internal/config"
	"github.com/samsaffron/qa-chat/internal/llm"
)

// Pair is one message of a template before parsing.
type Pair struct {
	Role   llm.Role
	Source string
}

// System is shorthand for a system-role pair.
func System(source string) Pair { return Pair{Role: llm.RoleSystem, Source: source} }

// User is shorthand for a user-role pair.
func User(source string) Pair { return Pair{Role: llm.RoleUser, Source: source} }

type compiled struct {
	role llm.Role
	tmpl *template.Template
}

// ChatTemplate is a parsed, reusable sequence of message templates.
type ChatTemplate struct {
	messages  []compiled
	variables []string
}

// FromMessages parses every pair. The first malformed template stops parsing.
func FromMessages(pairs ...Pair) (*ChatTemplate, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("prompt: at least one message is required")
	}
	seen := make(map[string]bool)
	ct := &ChatTemplate{}
	for i, p := range pairs {
		switch p.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return nil, fmt.Errorf("prompt: message %d: unknown role %q", i, p.Role)
		}
		src, vars, err := rewrite(p.Source)
		if err != nil {
			return nil, fmt.Errorf("prompt: message %d: %w", i, err)
		}
		tmpl, err := template.New(fmt.Sprintf("%s-%d", p.Role, i)).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("prompt: message %d: %w", i, err)
		}
		for _, v := range vars {
			if !seen[v] {
				seen[v] = true
				ct.variables = append(ct.variables, v)
			}
		}
		ct.messages = append(ct.messages, compiled{role: p.Role, tmpl: tmpl})
	}
	sort.Strings(ct.variables)
	return ct, nil
}

// QA is the question-answering template: the configured system prompt
// followed by the user's {question}.
func QA(systemPrompt string) (*ChatTemplate, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = config.DefaultSystemPrompt
	}
	return FromMessages(System(systemPrompt), User("{question}"))
}

// Variables returns the sorted placeholder names the template references.
func (t *ChatTemplate) Variables() []string {
	return append([]string(nil), t.variables...)
}

// Format renders every message with vars. A placeholder with no value is an
// error.
func (t *ChatTemplate) Format(vars map[string]string) ([]llm.Message, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	out := make([]llm.Message, 0, len(t.messages))
	for _, m := range t.messages {
		var sb strings.Builder
		if err := m.tmpl.Execute(&sb, vars); err != nil {
			return nil, fmt.Errorf("prompt: format %s message: %w", m.role, err)
		}
		out = append(out, llm.Message{Role: m.role, Content: sb.String()})
	}
	return out, nil
}

// rewrite converts single-brace placeholders into text/template actions and
// reports the variable names it found.
func rewrite(src string) (string, []string, error) {
	var (
		sb   strings.Builder
		vars []string
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '{':
			if i+1 < len(src) && src[i+1] == '{' {
				sb.WriteString(`{{"{"}}`)
				i++
				continue
			}
			end := strings.IndexByte(src[i+1:], '}')
			if end < 0 {
				return "", nil, fmt.Errorf("unclosed '{' at offset %d", i)
			}
			name := strings.TrimSpace(src[i+1 : i+1+end])
			if !validName(name) {
				return "", nil, fmt.Errorf("invalid placeholder %q at offset %d", src[i:i+2+end], i)
			}
			fmt.Fprintf(&sb, "{{.%s}}", name)
			vars = append(vars, name)
			i += end + 1
		case '}':
			if i+1 < len(src) && src[i+1] == '}' {
				sb.WriteString(`{{"}"}}`)
				i++
				continue
			}
			return "", nil, fmt.Errorf("single '}' at offset %d", i)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), vars, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
