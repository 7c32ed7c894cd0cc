// Package policy holds the versioned phrase lists and pattern tables shared
// by the constraint compiler, the voice curator and the enforcement pipeline.
// A Policy is immutable once built and is injected into each component at
// construction time so that every consumer reads the same lists.
package policy

import (
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultDocument []byte

// Replacement is a pattern/replacement pair as written in the policy document.
type Replacement struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// Document is the on-disk form of a policy.
type Document struct {
	PromptVersion      string        `yaml:"prompt_version"`
	BannedListVersion  string        `yaml:"banned_list_version"`
	EnforcementVersion string        `yaml:"enforcement_version"`
	BannedPhrases      []string      `yaml:"banned_phrases"`
	PromoPatterns      []string      `yaml:"promo_patterns"`
	OpenerPatterns     []string      `yaml:"opener_patterns"`
	Hedges             []Replacement `yaml:"hedges"`
	RemovedPhrases     []string      `yaml:"removed_phrases"`
	Elisions           []Replacement `yaml:"elisions"`
	ApologyPatterns    []string      `yaml:"apology_patterns"`
	CloserPatterns     []string      `yaml:"closer_patterns"`
	ExcuseWords        []string      `yaml:"excuse_words"`
	TimeReferences     []string      `yaml:"time_references"`
}

// Substitution is a compiled, case-insensitive rewrite rule.
type Substitution struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// Policy is the compiled, read-only form of a Document.
type Policy struct {
	promptVersion      string
	bannedListVersion  string
	enforcementVersion string
	bannedPhrases      []string

	promo    *regexp.Regexp
	opener   *regexp.Regexp
	removed  *regexp.Regexp
	apology  *regexp.Regexp
	closer   *regexp.Regexp
	excuse   *regexp.Regexp
	timeRef  *regexp.Regexp
	hedges   []Substitution
	elisions []Substitution
}

var (
	defaultOnce   sync.Once
	defaultPolicy *Policy
)

// Default returns the policy compiled from the embedded document.
func Default() *Policy {
	defaultOnce.Do(func() {
		p, err := Parse(defaultDocument)
		if err != nil {
			panic(fmt.Sprintf("embedded policy is invalid: %v", err))
		}
		defaultPolicy = p
	})
	return defaultPolicy
}

// Load reads and compiles a policy document from r.
func Load(r io.Reader) (*Policy, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return Parse(data)
}

// Parse compiles a YAML policy document.
func Parse(data []byte) (*Policy, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	return New(doc)
}

// New compiles doc into a Policy.
func New(doc Document) (*Policy, error) {
	if doc.PromptVersion == "" || doc.BannedListVersion == "" || doc.EnforcementVersion == "" {
		return nil, fmt.Errorf("policy version tags are required")
	}

	p := &Policy{
		promptVersion:      doc.PromptVersion,
		bannedListVersion:  doc.BannedListVersion,
		enforcementVersion: doc.EnforcementVersion,
	}
	for _, phrase := range doc.BannedPhrases {
		if phrase = strings.ToLower(strings.TrimSpace(phrase)); phrase != "" {
			p.bannedPhrases = append(p.bannedPhrases, phrase)
		}
	}

	var err error
	if p.promo, err = alternation(doc.PromoPatterns, "", ""); err != nil {
		return nil, fmt.Errorf("promo_patterns: %w", err)
	}
	// Repeated openers ("Hello, thank you for your review!") are stripped in
	// one match so that a second pass finds nothing. An opener must end at
	// punctuation or at the end of the text.
	if p.opener, err = alternation(doc.OpenerPatterns, `^\s*(?:(?:`, `)(?:\s*[,.!:;\-–—]+\s*|\s*$))+`); err != nil {
		return nil, fmt.Errorf("opener_patterns: %w", err)
	}
	if p.removed, err = alternation(doc.RemovedPhrases, "", ""); err != nil {
		return nil, fmt.Errorf("removed_phrases: %w", err)
	}
	if p.apology, err = alternation(doc.ApologyPatterns, "", ""); err != nil {
		return nil, fmt.Errorf("apology_patterns: %w", err)
	}
	if p.closer, err = alternation(doc.CloserPatterns, "", ""); err != nil {
		return nil, fmt.Errorf("closer_patterns: %w", err)
	}
	if p.excuse, err = alternation(quoteAll(doc.ExcuseWords), `\b(?:`, `)\b`); err != nil {
		return nil, fmt.Errorf("excuse_words: %w", err)
	}
	if p.timeRef, err = alternation(quoteAll(doc.TimeReferences), `(?:^|[^\pL])(?:`, `)(?:$|[^\pL])`); err != nil {
		return nil, fmt.Errorf("time_references: %w", err)
	}
	if p.hedges, err = compileSubstitutions(doc.Hedges, false); err != nil {
		return nil, fmt.Errorf("hedges: %w", err)
	}
	if p.elisions, err = compileSubstitutions(doc.Elisions, true); err != nil {
		return nil, fmt.Errorf("elisions: %w", err)
	}
	return p, nil
}

// alternation joins patterns into one case-insensitive expression. An empty
// list compiles to nil, which every matcher treats as "never matches".
func alternation(patterns []string, prefix, suffix string) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(patterns))
	for _, pat := range patterns {
		if pat = strings.TrimSpace(pat); pat != "" {
			parts = append(parts, pat)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	if prefix == "" && suffix == "" {
		prefix, suffix = "(?:", ")"
	}
	return regexp.Compile("(?i)" + prefix + strings.Join(parts, "|") + suffix)
}

func quoteAll(words []string) []string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return quoted
}

func compileSubstitutions(reps []Replacement, wordBoundary bool) ([]Substitution, error) {
	subs := make([]Substitution, 0, len(reps))
	for _, r := range reps {
		pat := strings.TrimSpace(r.Pattern)
		if pat == "" {
			continue
		}
		if wordBoundary {
			pat = `\b` + pat + `\b`
		}
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", r.Pattern, err)
		}
		subs = append(subs, Substitution{Pattern: re, Replacement: r.Replacement})
	}
	return subs, nil
}

// PromptVersion identifies the instruction template revision.
func (p *Policy) PromptVersion() string { return p.promptVersion }

// BannedListVersion identifies the banned phrase list revision.
func (p *Policy) BannedListVersion() string { return p.bannedListVersion }

// EnforcementVersion identifies the enforcement pipeline revision.
func (p *Policy) EnforcementVersion() string { return p.enforcementVersion }

// BannedPhrases returns a copy of the lowercased banned phrase list.
func (p *Policy) BannedPhrases() []string {
	out := make([]string, len(p.bannedPhrases))
	copy(out, p.bannedPhrases)
	return out
}

// BannedPhrasesIn returns the banned phrases contained in text, in list order.
func (p *Policy) BannedPhrasesIn(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, phrase := range p.bannedPhrases {
		if strings.Contains(lower, phrase) {
			found = append(found, phrase)
		}
	}
	return found
}

// IsPromotional reports whether text contains promotional language.
func (p *Policy) IsPromotional(text string) bool { return match(p.promo, text) }

// IsApology reports whether text contains an apology.
func (p *Policy) IsApology(text string) bool { return match(p.apology, text) }

// IsCloser reports whether text contains a generic closing invitation.
func (p *Policy) IsCloser(text string) bool { return match(p.closer, text) }

// MentionsCapacity reports whether text invokes busyness or staffing.
func (p *Policy) MentionsCapacity(text string) bool { return match(p.excuse, text) }

// HasTimeReference reports whether text refers to a time of day or a day.
func (p *Policy) HasTimeReference(text string) bool { return match(p.timeRef, text) }

// OpenerPrefix returns the length in bytes of the templated opener at the
// start of text, or 0 when there is none.
func (p *Policy) OpenerPrefix(text string) int {
	if p.opener == nil {
		return 0
	}
	loc := p.opener.FindStringIndex(text)
	if loc == nil {
		return 0
	}
	return loc[1]
}

// RemoveCorporatePhrases deletes phrases that carry no content.
func (p *Policy) RemoveCorporatePhrases(text string) string {
	if p.removed == nil {
		return text
	}
	return p.removed.ReplaceAllString(text, "")
}

// Hedges returns the hedge substitutions.
func (p *Policy) Hedges() []Substitution { return p.hedges }

// Elisions returns the contraction repair substitutions.
func (p *Policy) Elisions() []Substitution { return p.elisions }

func match(re *regexp.Regexp, text string) bool {
	return re != nil && re.MatchString(text)
}
