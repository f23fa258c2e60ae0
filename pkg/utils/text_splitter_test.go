package utils

import (
	"reflect"
	"testing"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		chunkSize int
		overlap   int
		want      []string
	}{
		{"empty", "", 10, 0, nil},
		{"fits in one chunk", "short", 10, 2, []string{"short"}},
		{"breaks at whitespace", "aaaa bbbb cccc", 10, 0, []string{"aaaa bbbb ", "cccc"}},
		{"hard cut with overlap", "abcdefghij", 4, 1, []string{"abcd", "defg", "ghij"}},
		{"multibyte runes", "日本語のテキスト", 4, 0, []string{"日本語の", "テキスト"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitText(tt.text, tt.chunkSize, tt.overlap)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitText(%q, %d, %d) = %q, want %q", tt.text, tt.chunkSize, tt.overlap, got, tt.want)
			}
		})
	}
}
