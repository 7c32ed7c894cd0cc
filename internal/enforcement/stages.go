package enforcement

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jonathan/reply-drafter/internal/policy"
	"github.com/jonathan/reply-drafter/internal/textutil"
)

// SignatureDash prefixes the signature line.
const SignatureDash = "—"

var (
	spaceBeforePunct   = regexp.MustCompile(`\s+([,.!?;:…])`)
	repeatedSeparators = regexp.MustCompile(`([,;:])(?:\s*[,;:])+`)
	separatorBeforeEnd = regexp.MustCompile(`[,;:]+\s*([.!?…])`)
	leadingPunct       = regexp.MustCompile(`^[\s,.;:!?…\-–—]+`)
	trailingSeparators = regexp.MustCompile(`[\s,;:\-–—]+$`)
	exclamationRun     = regexp.MustCompile(`[.!?…]*![.!?…]*`)
)

// normalize detaches a trailing signature line, then strips quote marks and
// emoji and collapses whitespace.
func (p *Pipeline) normalize(text string, in Input, _ *Diagnostics) string {
	if sig := in.signature(); sig != "" {
		text = detachSignature(text, sig)
	}
	text = textutil.StripQuoteMarks(text)
	text = textutil.StripEmoji(text)
	return textutil.CollapseWhitespace(text)
}

func (p *Pipeline) stripOpeners(text string, _ Input, _ *Diagnostics) string {
	n := p.policy.OpenerPrefix(text)
	if n == 0 {
		return text
	}
	rest := strings.TrimSpace(text[n:])
	if !hasWordRune(rest) {
		return text
	}
	return rest
}

// sanitizeCorporate rewrites hedges and deletes content-free corporate
// phrases sentence by sentence. Sentences left without words are dropped.
func (p *Pipeline) sanitizeCorporate(text string, _ Input, _ *Diagnostics) string {
	sentences := textutil.Sentences(text)
	out := make([]string, 0, len(sentences))
	changed, leadDropped := false, false
	for i, s := range sentences {
		t := s
		for _, sub := range p.policy.Hedges() {
			t = substitute(sub, t)
		}
		t = p.policy.RemoveCorporatePhrases(t)
		if t == s {
			out = append(out, s)
			continue
		}
		changed = true
		if t = tidy(t); hasWordRune(t) {
			out = append(out, upperFirst(t))
		} else if i == 0 {
			leadDropped = true
		}
	}
	if !changed {
		return text
	}
	if leadDropped {
		return p.reopen(strings.Join(out, " "))
	}
	return strings.Join(out, " ")
}

// dropBannedPhrases removes sentences that still carry a banned phrase. When
// every sentence does, the text is kept and the phrases are reported.
func (p *Pipeline) dropBannedPhrases(text string, _ Input, diag *Diagnostics) string {
	kept, removed := p.filterSentences(text, func(s string) bool {
		return len(p.policy.BannedPhrasesIn(s)) == 0
	})
	if removed > 0 && kept == "" {
		diag.BannedPhraseResidual = p.policy.BannedPhrasesIn(text)
		return text
	}
	return kept
}

func (p *Pipeline) repairElisions(text string, _ Input, _ *Diagnostics) string {
	for _, sub := range p.policy.Elisions() {
		text = substitute(sub, text)
	}
	return text
}

func capitalize(text string, _ Input, _ *Diagnostics) string {
	r, size := utf8.DecodeRuneInString(text)
	if size == 0 || !unicode.IsLower(r) || !unicode.Is(unicode.Latin, r) {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

// removeExcuses drops sentences blaming capacity or staffing on low ratings,
// unless the reviewer raised the subject first.
func (p *Pipeline) removeExcuses(text string, in Input, diag *Diagnostics) string {
	if in.Rating > 2 || p.policy.MentionsCapacity(in.ReviewText) {
		return text
	}
	kept, removed := p.filterSentences(text, func(s string) bool {
		return !p.policy.MentionsCapacity(s)
	})
	if kept == "" {
		return text
	}
	diag.ExcusesRemoved += removed
	return kept
}

func (p *Pipeline) dedupeApologies(text string, in Input, diag *Diagnostics) string {
	if in.Rating > 3 {
		return text
	}
	seen := false
	kept, removed := p.filterSentences(text, func(s string) bool {
		if !p.policy.IsApology(s) {
			return true
		}
		if seen {
			return false
		}
		seen = true
		return true
	})
	diag.ApologiesRemoved += removed
	return kept
}

func (p *Pipeline) stripClosers(text string, in Input, diag *Diagnostics) string {
	if in.Rating < 4 || textutil.CountSentences(text) <= 2 {
		return text
	}
	kept, removed := p.filterSentences(text, func(s string) bool {
		return !p.policy.IsCloser(s)
	})
	if kept == "" {
		return text
	}
	if removed > 0 {
		diag.ClosersStripped = true
	}
	return kept
}

func limitToBudget(text string, in Input, _ *Diagnostics) string {
	return textutil.LimitSentences(text, in.budget())
}

// enforceExclamations rewrites punctuation runs that contain '!'. When
// exclamations are allowed the first run keeps one '!', and a run such as
// "?!" that already has exactly one is left alone.
func enforceExclamations(text string, in Input, _ *Diagnostics) string {
	first := in.AllowExclamation
	return exclamationRun.ReplaceAllStringFunc(text, func(run string) string {
		if first {
			first = false
			if strings.Count(run, "!") == 1 {
				return run
			}
			return "!"
		}
		if strings.Contains(run, "?") {
			return "?"
		}
		return "."
	})
}

func appendSignature(text string, in Input, _ *Diagnostics) string {
	sig := in.signature()
	text = strings.TrimSpace(text)
	if sig == "" || text == "" {
		return text
	}
	line := SignatureDash + " " + sig
	if strings.Contains(strings.ToLower(text), strings.ToLower(line)) {
		return text
	}
	return text + "\n" + line
}

// detachSignature removes a trailing "— Signature" line so the body stages
// see only the reply itself.
func detachSignature(text, sig string) string {
	re, err := regexp.Compile(`(?i)\s*[—–-]+\s*` + regexp.QuoteMeta(sig) + `\s*$`)
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, "")
}

// filterSentences keeps the sentences for which keep returns true. The text
// is returned untouched when nothing is removed. When the first sentence goes,
// the new leading sentence is reopened.
func (p *Pipeline) filterSentences(text string, keep func(s string) bool) (string, int) {
	sentences := textutil.Sentences(text)
	kept := make([]string, 0, len(sentences))
	leadDropped := false
	for i, s := range sentences {
		if keep(s) {
			kept = append(kept, s)
		} else if i == 0 {
			leadDropped = true
		}
	}
	removed := len(sentences) - len(kept)
	if removed == 0 {
		return text, 0
	}
	out := strings.Join(kept, " ")
	if leadDropped {
		out = p.reopen(out)
	}
	return out, removed
}

// reopen applies the opener and capitalization stages to text that has a new
// leading sentence.
func (p *Pipeline) reopen(text string) string {
	text = p.stripOpeners(text, Input{}, nil)
	return capitalize(text, Input{}, nil)
}

// substitute applies sub, carrying an uppercase first letter of the match
// over to the replacement.
func substitute(sub policy.Substitution, text string) string {
	if sub.Pattern == nil {
		return text
	}
	return sub.Pattern.ReplaceAllStringFunc(text, func(m string) string {
		r, _ := utf8.DecodeRuneInString(m)
		if unicode.IsUpper(r) {
			return upperFirst(sub.Replacement)
		}
		return sub.Replacement
	})
}

func tidy(text string) string {
	text = textutil.CollapseWhitespace(text)
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = repeatedSeparators.ReplaceAllString(text, "$1")
	text = separatorBeforeEnd.ReplaceAllString(text, "$1")
	text = leadingPunct.ReplaceAllString(text, "")
	text = trailingSeparators.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || !unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func hasWordRune(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
