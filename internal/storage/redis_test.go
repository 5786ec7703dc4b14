package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain key", "social-mentions:mentions/acme/", "social-mentions:mentions/acme/"},
		{"Star", "mentions/a*/", `mentions/a\*/`},
		{"Question mark", "mentions/a?me/", `mentions/a\?me/`},
		{"Character class", "mentions/[a-z]cme/", `mentions/\[a-z\]cme/`},
		{"Backslash", `mentions/a\b/`, `mentions/a\\b/`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeGlob(tt.input))
		})
	}
}
