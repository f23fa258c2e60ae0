package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "notes.txt", want: "notes.txt"},
		{in: "my notes (1).txt", want: "my_notes_1_.txt"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: `C:\Users\bob\clip.mp4`, want: "clip.mp4"},
		{in: "", want: uploadFallbackName},
		{in: "..", want: uploadFallbackName},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFilename(tt.in))
		})
	}
}
