package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKVs(t *testing.T) {
	tests := []struct {
		name string
		in   []interface{}
		want []interface{}
	}{
		{
			name: "plain values pass through",
			in:   []interface{}{"item", "Q12", "count", 3},
			want: []interface{}{"item", "Q12", "count", 3},
		},
		{
			name: "password redacted",
			in:   []interface{}{"user", "bot", "password", "hunter2"},
			want: []interface{}{"user", "bot", "password", "[REDACTED]"},
		},
		{
			name: "csrf token redacted case-insensitively",
			in:   []interface{}{"CSRFToken", "abc+\\"},
			want: []interface{}{"CSRFToken", "[REDACTED]"},
		},
		{
			name: "dangling key kept",
			in:   []interface{}{"item", "Q1", "orphan"},
			want: []interface{}{"item", "Q1", "orphan"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeKVs(tt.in))
		})
	}
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		l.With("component", "test").Debug("hello", "k", "v")
	}
	Nop().Info("discarded")
}
