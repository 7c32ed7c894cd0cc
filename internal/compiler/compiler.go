// Package compiler turns review context, a resolved voice profile and the
// curated voice set into a single generation request plus the sentence
// budget the enforcement pipeline later applies.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/reply-drafter/internal/policy"
	"github.com/jonathan/reply-drafter/internal/prompts"
	"github.com/jonathan/reply-drafter/internal/textutil"
	"github.com/jonathan/reply-drafter/internal/types"
)

// Sentence budget bounds.
const (
	MinSentenceBudget = 2
	MaxSentenceBudget = 4
)

// SentenceBudget derives the maximum reply sentence count from the review's
// word count. The enforcement pipeline must use the same value.
func SentenceBudget(reviewText string) int {
	words := textutil.WordCount(reviewText)
	switch {
	case words > 120:
		return 4
	case words > 60:
		return 3
	default:
		return MinSentenceBudget
	}
}

// EffectiveTone picks the client tone when valid, otherwise the profile tone,
// and never allows a playful tone for ratings of 2 or below.
func EffectiveTone(clientTone string, profileTone types.Tone, rating int) types.Tone {
	tone := profileTone
	if t := types.Tone(strings.ToLower(strings.TrimSpace(clientTone))); t.Valid() {
		tone = t
	}
	if !tone.Valid() {
		tone = types.ToneWarm
	}
	if tone == types.TonePlayful && rating <= 2 {
		tone = types.ToneNeutral
	}
	return tone
}

// Input is everything the compiler reads for one request.
type Input struct {
	Review          types.ReviewInput
	Profile         types.VoiceProfile
	Settings        types.OrgReplySettings
	Samples         []string
	ToneOverride    string
	AdditionalRules []string
}

// Request is the compiled generation request.
type Request struct {
	SystemInstruction string     `json:"system_instruction"`
	Prompt            string     `json:"prompt"`
	SentenceBudget    int        `json:"sentence_budget"`
	Tone              types.Tone `json:"tone"`
	LanguageTag       string     `json:"language_tag"`
	PromptVersion     string     `json:"prompt_version"`
	BannedListVersion string     `json:"banned_list_version"`
}

// Compiler builds generation requests against a fixed policy.
type Compiler struct {
	policy *policy.Policy
}

// New returns a Compiler for p.
func New(p *policy.Policy) *Compiler {
	if p == nil {
		p = policy.Default()
	}
	return &Compiler{policy: p}
}

// Policy returns the policy the compiler was built with.
func (c *Compiler) Policy() *policy.Policy {
	return c.policy
}

// Compile builds the generation request. It cannot fail: malformed optional
// input is treated as absent.
func (c *Compiler) Compile(in Input) Request {
	rating := clampRating(in.Review.Rating)
	budget := SentenceBudget(in.Review.Text)
	tone := EffectiveTone(in.ToneOverride, in.Profile.Tone, rating)
	langTag := languageTag(in.Settings.OwnerLanguageTag, in.Review.ReviewerLanguageTag)
	business := strings.TrimSpace(in.Review.BusinessName)

	system := prompts.Format(prompts.MustGet(prompts.RepliesFile, "role-framing"), map[string]string{
		"BusinessName": business,
	})

	var b strings.Builder
	b.WriteString("LANGUAGE: ")
	b.WriteString(LanguageInstruction(langTag))
	b.WriteString("\n\nRULES:\n")
	writeRule(&b, prompts.MustGet(prompts.RepliesFile, "grammar-rule"))
	writeRule(&b, prompts.MustGet(prompts.RepliesFile, "specificity-rule"))
	writeRule(&b, prompts.Format(prompts.MustGet(prompts.RepliesFile, "length-rule"), map[string]string{
		"SentenceBudget": strconv.Itoa(budget),
	}))
	writeRule(&b, voiceRule(in.Profile, tone))
	if in.Profile.AllowExclamation {
		writeRule(&b, prompts.MustGet(prompts.RepliesFile, "exclamation-allowed"))
	} else {
		writeRule(&b, prompts.MustGet(prompts.RepliesFile, "exclamation-forbidden"))
	}

	b.WriteString("\n")
	b.WriteString(prompts.MustGet(prompts.RepliesFile, "banned-header"))
	b.WriteString("\n")
	for _, phrase := range c.policy.BannedPhrases() {
		fmt.Fprintf(&b, "- %q\n", phrase)
	}
	if len(in.Profile.AvoidPhrases) > 0 {
		b.WriteString(prompts.MustGet(prompts.RepliesFile, "avoid-header"))
		b.WriteString("\n")
		for _, phrase := range in.Profile.AvoidPhrases {
			fmt.Fprintf(&b, "- %q\n", phrase)
		}
	}

	fmt.Fprintf(&b, "\nRATING GUIDANCE:\n%s\n", RatingGuidance(rating))

	if block := toneReferenceBlock(in.Samples); block != "" {
		b.WriteString("\n")
		b.WriteString(block)
	}

	if rules := cleanRules(in.AdditionalRules); len(rules) > 0 {
		b.WriteString("\n")
		b.WriteString(prompts.MustGet(prompts.RepliesFile, "extra-rules-header"))
		b.WriteString("\n")
		for _, rule := range rules {
			writeRule(&b, rule)
		}
	}

	prompt := prompts.Format(prompts.MustGet(prompts.RepliesFile, "reply-draft"), map[string]string{
		"Instructions": strings.TrimRight(b.String(), "\n"),
		"Rating":       strconv.Itoa(rating),
		"BusinessName": business,
		"ReviewText":   fenceSafe(in.Review.Text),
	})

	return Request{
		SystemInstruction: system,
		Prompt:            prompt,
		SentenceBudget:    budget,
		Tone:              tone,
		LanguageTag:       langTag,
		PromptVersion:     c.policy.PromptVersion(),
		BannedListVersion: c.policy.BannedListVersion(),
	}
}

// Text returns the system instruction and prompt as one block.
func (r Request) Text() string {
	return r.SystemInstruction + "\n\n" + r.Prompt
}

// RatingGuidance returns the fixed guidance block for a 1-5 rating.
func RatingGuidance(rating int) string {
	return prompts.MustGet(prompts.RepliesFile, "rating-"+strconv.Itoa(clampRating(rating)))
}

// LanguageInstruction returns the instruction for a language tag. Tags
// outside the table fall back to a generic instruction carrying the tag verbatim.
func LanguageInstruction(tag string) string {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"))
	if key == "pt-br" {
		return prompts.MustGet(prompts.RepliesFile, "lang-pt-br")
	}
	if len(key) >= 2 && (len(key) == 2 || key[2] == '-') {
		if text, ok := prompts.Reply("lang-" + key[:2]); ok {
			return text
		}
	}
	return prompts.Format(prompts.MustGet(prompts.RepliesFile, "lang-fallback"), map[string]string{
		"LanguageTag": tag,
	})
}

var speakers = map[types.ReplyAs]string{
	types.ReplyAsOwner:   "the owner, in the first person singular",
	types.ReplyAsManager: "the manager, in the first person singular",
	types.ReplyAsWe:      "the team, in the first person plural (we)",
}

func voiceRule(p types.VoiceProfile, tone types.Tone) string {
	speaker, ok := speakers[p.ReplyAs]
	if !ok {
		speaker = speakers[types.ReplyAsWe]
	}
	brevity := p.Brevity
	if !brevity.Valid() {
		brevity = types.BrevityShort
	}
	formality := p.Formality
	if !formality.Valid() {
		formality = types.FormalityCasual
	}
	return prompts.Format(prompts.MustGet(prompts.RepliesFile, "voice-rule"), map[string]string{
		"Speaker":   speaker,
		"Tone":      string(tone),
		"Formality": string(formality),
		"Brevity":   string(brevity),
	})
}

func toneReferenceBlock(samples []string) string {
	var kept []string
	for _, s := range samples {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(prompts.MustGet(prompts.RepliesFile, "tone-reference"))
	b.WriteString("\n")
	for i, s := range kept {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, s)
	}
	return b.String()
}

func languageTag(owner, reviewer string) string {
	if tag := strings.TrimSpace(owner); tag != "" {
		return tag
	}
	if tag := strings.TrimSpace(reviewer); tag != "" {
		return tag
	}
	return "en"
}

func cleanRules(rules []string) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if r = textutil.CollapseWhitespace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func writeRule(b *strings.Builder, rule string) {
	b.WriteString("- ")
	b.WriteString(rule)
	b.WriteString("\n")
}

// fenceSafe keeps review text from closing the quoting fence early.
func fenceSafe(text string) string {
	text = strings.ReplaceAll(text, "<<<", "< < <")
	return strings.ReplaceAll(text, ">>>", "> > >")
}

func clampRating(rating int) int {
	if rating < 1 {
		return 1
	}
	if rating > 5 {
		return 5
	}
	return rating
}
