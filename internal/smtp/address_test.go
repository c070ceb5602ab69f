package smtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected string
		wantErr  bool
	}{
		{"Simple address", "MAIL FROM:<alice@example.com>", "alice@example.com", false},
		{"Uppercase is lowered", "MAIL FROM:<Alice@Example.COM>", "alice@example.com", false},
		{"Empty address", "MAIL FROM:<>", "", false},
		{"Inner whitespace preserved", "RCPT TO:< bob@x >", " bob@x ", false},
		{"First bracket pair wins", "X <a<b>c>", "a<b", false},
		{"Missing open bracket", "MAIL FROM:alice@example.com>", "", true},
		{"Missing close bracket", "MAIL FROM:<alice@example.com", "", true},
		{"No brackets", "MAIL FROM:alice", "", true},
		{"Reversed brackets", "MAIL> <FROM", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ExtractAddress(tt.line)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedAddress)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, addr)
		})
	}
}
