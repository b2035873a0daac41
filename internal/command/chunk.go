package command

import "unicode/utf8"

const (
	maxResponseLength = 140
	maxChunks          = 3
)

// ChunkResponse splits text into at most maxChunks chunks of at most
// maxResponseLength UTF-8 bytes each, as required by spec.md §4.3. The
// final chunk is truncated (with an ellipsis) if the text would otherwise
// require more than maxChunks pieces.
func ChunkResponse(text string) []string {
	if len(text) <= maxResponseLength {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 && len(chunks) < maxChunks {
		end := maxResponseLength
		if end > len(text) {
			end = len(text)
		}
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end--
		}
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	if len(text) > 0 && len(chunks) > 0 {
		last := chunks[len(chunks)-1]
		if len(last) > 3 {
			cut := len(last) - 3
			for cut > 0 && !utf8.RuneStart(last[cut]) {
				cut--
			}
			last = last[:cut]
		}
		chunks[len(chunks)-1] = last + "..."
	}
	return chunks
}
