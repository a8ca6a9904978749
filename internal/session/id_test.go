package session

import (
	"sort"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	id := NewID()
	if len(id) != 36 {
		t.Fatalf("NewID() = %q, expected length 36", id)
	}
	if !ValidID(id) {
		t.Fatalf("ValidID(%q) = false", id)
	}
}

func TestNewIDSortsByTime(t *testing.T) {
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, NewID())
		time.Sleep(2 * time.Millisecond)
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatalf("ids not sorted by creation: %v", ids)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if ids[id] {
			t.Fatalf("NewID() generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"0190a5b2-7c3e-7d4f-8a1b-2c3d4e5f6a7b", true},
		{"", false},
		{"not-a-session", false},
		{"{0190a5b2-7c3e-7d4f-8a1b-2c3d4e5f6a7b}", false},
		{"0190a5b27c3e7d4f8a1b2c3d4e5f6a7b", false},
	}
	for _, tt := range tests {
		if got := ValidID(tt.id); got != tt.want {
			t.Errorf("ValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0190a5b2-7c3e-7d4f-8a1b-2c3d4e5f6a7b", "4e5f6a7b"},
		{"short", "short"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ShortID(tt.input); got != tt.expected {
			t.Errorf("ShortID(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
