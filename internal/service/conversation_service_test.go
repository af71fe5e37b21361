package service

import (
	"strings"
	"testing"
)

func TestExtractMemory(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"My name is Alex", "My name is Alex"},
		{"i love hiking in the mountains", "i love hiking in the mountains"},
		{"  I'm a nurse from Ohio  ", "I'm a nurse from Ohio"},
		{"what are you up to today", ""},
		{"tell me about yourself", ""},
	}
	for _, tt := range tests {
		if got := extractMemory(tt.text); got != tt.want {
			t.Fatalf("extractMemory(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtractMemoryTruncates(t *testing.T) {
	long := "I like " + strings.Repeat("x", 500)
	got := extractMemory(long)
	if len(got) != memoryMaxLength {
		t.Fatalf("len = %d, want %d", len(got), memoryMaxLength)
	}
}
