package memcontext

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"memcontext-be/pkg/utils"
)

type Chunk struct {
	Index int
	Text  string
}

// Converter turns a source file into text chunks, reporting progress in [0, 1].
type Converter interface {
	Convert(ctx context.Context, source string, kwargs map[string]interface{}, progress ProgressFunc) ([]Chunk, error)
}

// ErrUnsupportedConverter is returned for converter types with no registered converter.
type ErrUnsupportedConverter struct {
	Type string
}

func (e *ErrUnsupportedConverter) Error() string {
	return fmt.Sprintf("unsupported converter_type: %s", e.Type)
}

// TextConverter ingests plain text files. Accepted kwargs: chunk_size, chunk_overlap.
type TextConverter struct{}

func (TextConverter) Convert(ctx context.Context, source string, kwargs map[string]interface{}, progress ProgressFunc) ([]Chunk, error) {
	progress(0.05, "Reading file")

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("source %s is not valid UTF-8 text", source)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("source %s is empty", source)
	}

	size := intKwarg(kwargs, "chunk_size", utils.DefaultChunkSize)
	overlap := intKwarg(kwargs, "chunk_overlap", utils.DefaultChunkOverlap)
	parts := utils.SplitText(text, size, overlap)

	chunks := make([]Chunk, 0, len(parts))
	for i, p := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, Chunk{Index: i, Text: p})
		progress(0.1+0.5*float64(i+1)/float64(len(parts)), fmt.Sprintf("Split chunk %d/%d", i+1, len(parts)))
	}
	return chunks, nil
}

// JSON numbers decode as float64; accept ints too for callers building kwargs in Go.
func intKwarg(kwargs map[string]interface{}, key string, fallback int) int {
	switch v := kwargs[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return fallback
}
