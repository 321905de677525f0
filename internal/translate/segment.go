package translate

import (
	"unicode"
	"unicode/utf8"
)

// DefaultBudget is the segment size used when none is configured.
const DefaultBudget = 4000

// Segment splits text into ordered chunks of at most budget runes. A
// sentence ends at '.', '!' or '?' followed by whitespace; the whitespace
// stays with the sentence it follows, so concatenating the chunks yields the
// input exactly. Sentences are packed greedily. A sentence longer than the
// budget becomes a chunk of its own and is never cut.
func Segment(text string, budget int) []string {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if utf8.RuneCountInString(text) <= budget {
		return []string{text}
	}

	var (
		segments []string
		current  []rune
	)
	for _, sentence := range splitSentences(text) {
		n := utf8.RuneCountInString(sentence)
		if len(current) > 0 && len(current)+n > budget {
			segments = append(segments, string(current))
			current = current[:0]
		}
		current = append(current, []rune(sentence)...)
	}
	if len(current) > 0 {
		segments = append(segments, string(current))
	}
	return segments
}

// splitSentences cuts text after each terminator plus its trailing whitespace.
func splitSentences(text string) []string {
	runes := []rune(text)
	var (
		out   []string
		start int
	)
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) || i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		end := i + 1
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		out = append(out, string(runes[start:end]))
		start = end
		i = end - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
