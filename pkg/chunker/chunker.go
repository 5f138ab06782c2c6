package chunker

import (
	"strings"
	"unicode/utf8"
)

// Options controls how text is split into chunks.
type Options struct {
	ChunkSize   int    // target chunk size in characters (runes)
	Terminators []rune // sentence-ending runes
}

// DefaultOptions covers both CJK and Western sentence punctuation.
// Newline counts as a boundary so headings and list items chunk cleanly.
func DefaultOptions() Options {
	return Options{
		ChunkSize:   500,
		Terminators: []rune{'。', '！', '？', '.', '!', '?', '\n'},
	}
}

// Chunk splits text into sentence-aligned chunks of roughly
// opts.ChunkSize characters. Sentences accumulate greedily: when adding the
// next sentence would overflow a non-empty buffer, the buffer is emitted and
// the sentence starts a new one. A single sentence longer than ChunkSize is
// emitted whole rather than truncated. The final non-empty buffer is always
// emitted. Pure function of its inputs.
func Chunk(text string, opts Options) []string {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 500
	}
	if len(opts.Terminators) == 0 {
		opts.Terminators = DefaultOptions().Terminators
	}

	sentences := splitSentences(text, opts.Terminators)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	for _, s := range sentences {
		sLen := utf8.RuneCountInString(s)
		if currentLen > 0 && currentLen+sLen > opts.ChunkSize {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentLen = 0
		}
		if currentLen > 0 {
			current.WriteRune(' ')
			currentLen++
		}
		current.WriteString(s)
		currentLen += sLen
	}

	if current.Len() > 0 {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}

	return chunks
}

// splitSentences cuts text after each terminator rune, keeping terminators
// attached to their sentence. Runs of consecutive terminators stay together.
func splitSentences(text string, terminators []rune) []string {
	terms := make(map[rune]bool, len(terminators))
	for _, r := range terminators {
		terms[r] = true
	}

	var sentences []string
	var current strings.Builder
	inTerminator := false

	for _, r := range text {
		if terms[r] {
			current.WriteRune(r)
			inTerminator = true
			continue
		}
		if inTerminator {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
			inTerminator = false
		}
		current.WriteRune(r)
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
