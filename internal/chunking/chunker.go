// Package chunking splits long text into bounded, semantically coherent chunks.
//
// Text is split on paragraph boundaries first, then on sentence boundaries
// for paragraphs that are too long, and finally hard-split for sentences that
// still exceed the limit. Lengths are measured in characters (runes).
package chunking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChars is the chunk size used for knowledge items.
const DefaultMaxChars = 800

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// Chunk splits text into chunks of at most maxChars characters.
//
// Paragraphs (separated by two or more newlines) are packed greedily and
// joined with a blank line. Oversized paragraphs are broken into sentences
// (terminated by '.', '!' or '?' followed by whitespace) joined with a
// single newline. Sentences longer than maxChars are cut into maxChars-sized
// slices. Every chunk is trimmed and non-empty. Blank input yields nil.
// A non-positive maxChars selects DefaultMaxChars.
func Chunk(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if runeLen(text) <= maxChars {
		return []string{text}
	}

	var paragraphs []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return splitHard(text, maxChars)
	}

	b := &builder{max: maxChars}
	for _, paragraph := range paragraphs {
		if runeLen(paragraph) <= maxChars {
			b.add(paragraph, "\n\n")
			continue
		}
		sentences := splitSentences(paragraph)
		if len(sentences) == 0 {
			sentences = splitHard(paragraph, maxChars)
		}
		for _, sentence := range sentences {
			if runeLen(sentence) > maxChars {
				b.flush()
				b.chunks = append(b.chunks, splitHard(sentence, maxChars)...)
				continue
			}
			b.add(sentence, "\n")
		}
	}
	b.flush()
	return b.chunks
}

// builder accumulates pieces into the current chunk until the limit is hit.
type builder struct {
	max     int
	current string
	chunks  []string
}

func (b *builder) add(piece, sep string) {
	if b.current == "" {
		b.current = piece
		return
	}
	candidate := strings.TrimSpace(b.current + sep + piece)
	if runeLen(candidate) <= b.max {
		b.current = candidate
		return
	}
	b.flush()
	b.current = piece
}

func (b *builder) flush() {
	if c := strings.TrimSpace(b.current); c != "" {
		b.chunks = append(b.chunks, c)
	}
	b.current = ""
}

// splitSentences cuts after '.', '!' or '?' when followed by whitespace.
func splitSentences(paragraph string) []string {
	var (
		sentences []string
		start     int
	)
	flush := func(end int) {
		if s := strings.TrimSpace(paragraph[start:end]); s != "" {
			sentences = append(sentences, s)
		}
	}

	for i := 0; i < len(paragraph); {
		r, size := utf8.DecodeRuneInString(paragraph[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(paragraph[i:])
		if i >= len(paragraph) || !unicode.IsSpace(next) {
			continue
		}
		flush(i)
		for i < len(paragraph) {
			ws, n := utf8.DecodeRuneInString(paragraph[i:])
			if !unicode.IsSpace(ws) {
				break
			}
			i += n
		}
		start = i
	}
	flush(len(paragraph))
	return sentences
}

// splitHard slices text into maxChars-rune pieces, trimming each and dropping empties.
func splitHard(text string, maxChars int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += maxChars {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
