package utils

import "unicode"

const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
)

// SplitText splits text into chunks of at most chunkSize runes, consecutive
// chunks sharing overlap runes. When a whitespace rune sits in the last fifth of
// a window the chunk ends there, so words are rarely cut in half.
func SplitText(text string, chunkSize int, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	runes := []rune(text)
	total := len(runes)
	if total == 0 {
		return nil
	}
	if total <= chunkSize {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < total; {
		end := start + chunkSize
		if end >= total {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		for i := end; i > end-chunkSize/5 && i > start+overlap; i-- {
			if unicode.IsSpace(runes[i-1]) {
				end = i
				break
			}
		}

		chunks = append(chunks, string(runes[start:end]))
		start = end - overlap
	}

	return chunks
}
