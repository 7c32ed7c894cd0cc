// Package textutil provides the text normalization primitives shared by the
// curator, the constraint compiler and the enforcement pipeline. Every function
// is total: malformed input degrades to an empty string, never a panic.
package textutil

import (
	"iter"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxTokens caps the number of tokens Tokenize returns.
const MaxTokens = 250

var (
	emojiPattern = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}\x{1F1E6}-\x{1F1FF}\x{FE0E}\x{FE0F}\x{200D}\x{20E3}]`)

	doubleQuotes = "\"“”„‟«»"
)

// accentedLatin lists the non-ASCII letters Tokenize keeps intact.
const accentedLatin = "àáâãäåæçèéêëìíîïñòóôõöøùúûüýÿœßğışą"

// TrimAndClip trims surrounding whitespace and truncates to at most maxLen runes.
func TrimAndClip(text string, maxLen int) string {
	if maxLen <= 0 || !utf8.ValidString(text) {
		return ""
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxLen]))
}

// CollapseWhitespace replaces every run of whitespace with one space and trims the ends.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// StripEmoji removes pictographic characters and their joiners/selectors.
func StripEmoji(text string) string {
	return emojiPattern.ReplaceAllString(text, "")
}

// StripQuoteMarks removes double quote glyphs and single curly quotes. A
// single quote between two letters is an elision mark and is kept, so
// "we’re" and "we're" survive while ‘quoted’ words lose their marks.
func StripQuoteMarks(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i, r := range runes {
		if strings.ContainsRune(doubleQuotes, r) {
			continue
		}
		if r == '‘' || r == '‚' || r == '’' {
			if r == '’' && i > 0 && i < len(runes)-1 && unicode.IsLetter(runes[i-1]) && unicode.IsLetter(runes[i+1]) {
				b.WriteRune(r)
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isTerminator reports whether r ends a sentence.
func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

// SplitSentences yields the non-empty trimmed sentences of text. A sentence
// ends at a run of terminal punctuation followed by whitespace or the end of
// the text. The sequence can be ranged over any number of times.
func SplitSentences(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		start := 0
		for i := 0; i < len(runes); i++ {
			if !isTerminator(runes[i]) {
				continue
			}
			j := i
			for j+1 < len(runes) && isTerminator(runes[j+1]) {
				j++
			}
			if j+1 < len(runes) && !unicode.IsSpace(runes[j+1]) {
				i = j
				continue
			}
			if s := strings.TrimSpace(string(runes[start : j+1])); s != "" {
				if !yield(s) {
					return
				}
			}
			start = j + 1
			i = j
		}
		if start < len(runes) {
			if s := strings.TrimSpace(string(runes[start:])); s != "" {
				yield(s)
			}
		}
	}
}

// Sentences collects SplitSentences into a slice.
func Sentences(text string) []string {
	return slices.Collect(SplitSentences(text))
}

// CountSentences returns the number of sentences in text.
func CountSentences(text string) int {
	n := 0
	for range SplitSentences(text) {
		n++
	}
	return n
}

// LimitSentences returns text unchanged when it has at most n sentences and
// otherwise joins the first n sentences with single spaces.
func LimitSentences(text string, n int) string {
	if n < 0 {
		n = 0
	}
	kept := make([]string, 0, n)
	count := 0
	for s := range SplitSentences(text) {
		if count < n {
			kept = append(kept, s)
		}
		count++
	}
	if count <= n {
		return text
	}
	return strings.Join(kept, " ")
}

// keepRune reports whether Tokenize treats r as part of a token.
func keepRune(r rune) bool {
	if r < utf8.RuneSelf {
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
	}
	return strings.ContainsRune(accentedLatin, r)
}

// Tokenize lowercases text, turns every character outside [a-z0-9] and a fixed
// set of accented Latin letters into a separator, and returns up to MaxTokens tokens.
func Tokenize(text string) []string {
	text = strings.ToLower(norm.NFC.String(text))
	cleaned := strings.Map(func(r rune) rune {
		if keepRune(r) {
			return r
		}
		return ' '
	}, text)
	tokens := strings.Fields(cleaned)
	if len(tokens) > MaxTokens {
		tokens = tokens[:MaxTokens]
	}
	return tokens
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// JaccardSimilarity returns |a ∩ b| / |a ∪ b|. Two empty sets are identical (1.0).
func JaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for t := range small {
		if _, ok := large[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// WordCount returns the number of whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
