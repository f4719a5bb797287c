package extractor

import (
	"strings"
	"unicode/utf8"
)

// chunk is a bounded-size slice of document content sent in one LLM call.
type chunk struct {
	Text   string
	Images []Image
	Start  int
}

// splitChunks splits content into overlapping chunks. The cut point is
// searched backward from the target size for (in priority order) a
// paragraph break, a sentence terminator, then a word boundary, within
// the configured look-back window; only a hard character cut remains
// otherwise. Consecutive chunks overlap by a fixed character count.
// Images are distributed round-robin, never duplicated.
func splitChunks(content string, images []Image, cfg Config) []chunk {
	var chunks []chunk

	if len(content) <= cfg.ChunkSize {
		chunks = []chunk{{Text: content, Start: 0}}
	} else {
		start := 0
		for start < len(content) {
			end := start + cfg.ChunkSize
			if end >= len(content) {
				end = len(content)
			} else {
				end = findBoundary(content, start, end, cfg)
			}

			chunks = append(chunks, chunk{Text: content[start:end], Start: start})
			if end == len(content) {
				break
			}
			next := end - cfg.ChunkOverlap
			for next > 0 && !utf8.RuneStart(content[next]) {
				next--
			}
			if next <= start {
				next = end
			}
			start = next
		}
	}

	for i, img := range images {
		target := i % len(chunks)
		chunks[target].Images = append(chunks[target].Images, img)
	}

	return chunks
}

// findBoundary returns the best cut point at or below target. Candidates
// must leave room for the overlap so the next chunk makes progress.
func findBoundary(content string, start, target int, cfg Config) int {
	windowStart := target - cfg.BoundaryLookBack
	min := start + cfg.ChunkOverlap + 1
	if windowStart < min {
		windowStart = min
	}
	if windowStart >= target {
		return target
	}

	window := content[windowStart:target]

	// Paragraph break.
	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		return windowStart + idx + 2
	}

	// Sentence terminator followed by whitespace.
	for i := len(window) - 2; i >= 0; i-- {
		c := window[i]
		if (c == '.' || c == '!' || c == '?') && isSpace(window[i+1]) {
			return windowStart + i + 1
		}
	}

	// Word boundary.
	for i := len(window) - 1; i >= 0; i-- {
		if isSpace(window[i]) {
			return windowStart + i + 1
		}
	}

	// Hard cut, backed up so a multi-byte rune is never split.
	cut := target
	for cut > min && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return cut
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
