// File: internal/services/ingest/chunker.go
package ingest

import "strings"

const (
	// DefaultChunkSize is the maximum chunk length in runes.
	DefaultChunkSize = 500
	// DefaultOverlap is the number of trailing runes carried into the next
	// chunk for context continuity.
	DefaultOverlap = 50
)

// sentenceTerminators covers both CJK and Latin sentence-ending punctuation.
var sentenceTerminators = map[rune]bool{
	'。': true, '！': true, '？': true,
	'.': true, '!': true, '?': true,
}

// ChunkText splits text into chunks of at most chunkSize runes, breaking at
// sentence boundaries. When a chunk fills up, the next chunk starts with the
// last overlap runes of the previous one. Text that already fits is returned
// as a single trimmed chunk. Deterministic for a given input.
func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var chunks []string
	current := ""
	for _, sentence := range splitSentences(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if runeLen(current)+runeLen(sentence) <= chunkSize {
			current += sentence
			continue
		}
		if current != "" {
			chunks = append(chunks, current)
		}
		current = tail(current, overlap) + sentence
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// splitSentences cuts text after every sentence terminator, keeping the
// terminator with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if sentenceTerminators[r] {
			sentences = append(sentences, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		sentences = append(sentences, b.String())
	}
	return sentences
}

func runeLen(s string) int {
	return len([]rune(s))
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
