package testutil

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
)

// AssertContains fails the test if output does not contain expected.
func AssertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("output does not contain expected string\nExpected to find: %q\nIn output:\n%s", expected, truncateForError(output))
	}
}

// AssertNotContains fails the test if output contains unexpected.
func AssertNotContains(t *testing.T, output, unexpected string) {
	t.Helper()
	if strings.Contains(output, unexpected) {
		t.Errorf("output contains unexpected string\nDid not expect to find: %q\nIn output:\n%s", unexpected, truncateForError(output))
	}
}

// AssertMatches fails the test if output does not match the regex pattern.
func AssertMatches(t *testing.T, output string, pattern *regexp.Regexp) {
	t.Helper()
	if !pattern.MatchString(output) {
		t.Errorf("output does not match pattern\nPattern: %s\nOutput:\n%s", pattern.String(), truncateForError(output))
	}
}

// AssertMatchesString fails the test if output does not match the regex pattern string.
func AssertMatchesString(t *testing.T, output, pattern string) {
	t.Helper()
	re, err := regexp.Compile(pattern)
	if err != nil {
		t.Fatalf("invalid regex pattern %q: %v", pattern, err)
	}
	AssertMatches(t, output, re)
}

// AssertLineCount fails if the trimmed output doesn't have the expected number of lines.
func AssertLineCount(t *testing.T, output string, expected int) {
	t.Helper()
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) != expected {
		t.Errorf("expected %d lines, got %d\nOutput:\n%s", expected, len(lines), truncateForError(output))
	}
}

// DecodeJSON unmarshals output into v, failing the test on error.
func DecodeJSON(t *testing.T, output string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Fatalf("invalid JSON: %v\nOutput:\n%s", err, truncateForError(output))
	}
}

// truncateForError truncates output for error messages to avoid huge logs.
func truncateForError(s string) string {
	const maxLen = 2000
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n... [truncated]"
}
