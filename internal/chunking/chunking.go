// Package chunking splits CV text into sentence-aligned, overlapping chunks.
package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200

	// minimum distance kept between the chunk size and the overlap
	overlapMargin = 100
)

// Split groups the sentences of text into chunks of roughly size runes. Each
// chunk after the first starts with trailing sentences of the previous one,
// covering at least overlap runes. A sentence longer than size becomes a chunk
// on its own.
func Split(text string, size, overlap int) []string {
	if text == "" || size <= 0 {
		return []string{}
	}

	overlap = min(overlap, size-overlapMargin)

	var (
		chunks  []string
		current []string
		length  int
	)

	for _, sentence := range Sentences(text) {
		n := utf8.RuneCountInString(sentence)

		if length+n > size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current, length = tail(current, overlap)
		}

		current = append(current, sentence)
		length += n + 1
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	if chunks == nil {
		return []string{}
	}
	return chunks
}

// tail returns the shortest suffix of sentences whose length, counting one
// separator per sentence, reaches overlap. At least one sentence is kept.
func tail(sentences []string, overlap int) ([]string, int) {
	length := 0
	start := len(sentences)
	for start > 0 {
		start--
		length += utf8.RuneCountInString(sentences[start]) + 1
		if length >= overlap {
			break
		}
	}

	kept := make([]string, len(sentences)-start)
	copy(kept, sentences[start:])
	return kept, length
}

// Sentences segments text at terminal punctuation followed by whitespace and
// at blank lines. Returned sentences are trimmed and never empty.
func Sentences(text string) []string {
	var (
		sentences []string
		start     int
	)

	emit := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}

	for i := 0; i < len(text); {
		r, width := utf8.DecodeRuneInString(text[i:])

		switch {
		case isTerminal(r):
			j := i + width
			for j < len(text) {
				next, w := utf8.DecodeRuneInString(text[j:])
				if !isTerminal(next) && !isCloser(next) {
					break
				}
				j += w
			}
			if j == len(text) {
				emit(j)
				return sentences
			}
			if next, _ := utf8.DecodeRuneInString(text[j:]); unicode.IsSpace(next) {
				emit(j)
			}
			i = j
		case r == '\n' && blankLineFollows(text[i+width:]):
			emit(i)
			i += width
		default:
			i += width
		}
	}

	emit(len(text))
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’', '»':
		return true
	}
	return false
}

// blankLineFollows reports whether rest begins with optional horizontal
// whitespace and another newline.
func blankLineFollows(rest string) bool {
	for _, r := range rest {
		switch {
		case r == '\n':
			return true
		case r == '\r' || r == ' ' || r == '\t':
			continue
		default:
			return false
		}
	}
	return false
}
