package knowledge

import "strings"

// Chunks splits text into retrievable chunks on sentence-terminal
// periods. Each chunk is trimmed of surrounding whitespace and empty
// fragments are discarded, so no chunk is ever empty and none carries a
// trailing delimiter. Input without periods yields a single chunk equal
// to the trimmed input, if non-empty.
func Chunks(text string) []string {
	parts := strings.Split(text, ".")
	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, part)
	}
	return chunks
}
