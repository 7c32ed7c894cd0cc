// Package voice curates an organization's past writing into a small, diverse
// reference set and resolves the voice profile used for one reply.
package voice

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/policy"
	"github.com/jonathan/reply-drafter/internal/textutil"
	"github.com/jonathan/reply-drafter/internal/types"
	"go.uber.org/zap"
)

const (
	// MaxCandidates is how many recent samples are read per curation run.
	MaxCandidates = 50
	// MaxItemsCap bounds MaxItems regardless of what the caller asks for.
	MaxItemsCap = 12
	// SimilarityThreshold rejects a candidate that is this similar to any selected sample.
	SimilarityThreshold = 0.78
	// separatorCost is charged per selected sample on top of its length.
	separatorCost = 10

	defaultMaxItems      = 5
	defaultMaxCharsEach  = 420
	defaultMaxTotalChars = 1800
)

// Score weights.
const (
	weightAntiTemplate = 0.48
	weightLength       = 0.26
	weightSpecificity  = 0.18
	weightSentences    = 0.08
)

// Params bounds the curated set. Zero values select the defaults.
type Params struct {
	MaxItems      int `json:"max_items"`
	MaxCharsEach  int `json:"max_chars_each"`
	MaxTotalChars int `json:"max_total_chars"`
}

// DefaultParams returns {5, 420, 1800}.
func DefaultParams() Params {
	return Params{
		MaxItems:      defaultMaxItems,
		MaxCharsEach:  defaultMaxCharsEach,
		MaxTotalChars: defaultMaxTotalChars,
	}
}

func (p Params) withDefaults() Params {
	if p.MaxItems <= 0 {
		p.MaxItems = defaultMaxItems
	}
	if p.MaxItems > MaxItemsCap {
		p.MaxItems = MaxItemsCap
	}
	if p.MaxCharsEach <= 0 {
		p.MaxCharsEach = defaultMaxCharsEach
	}
	if p.MaxTotalChars <= 0 {
		p.MaxTotalChars = defaultMaxTotalChars
	}
	return p
}

// Candidate is one cleaned and scored sample.
type Candidate struct {
	ID          uuid.UUID           `json:"id"`
	RawText     string              `json:"-"`
	CleanedText string              `json:"cleaned_text"`
	Score       float64             `json:"score"`
	TokenSet    map[string]struct{} `json:"-"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Cost is the share of the character budget the candidate consumes.
func (c Candidate) Cost() int {
	return utf8.RuneCountInString(c.CleanedText) + separatorCost
}

// CuratedSet is the ordered, bounded and mutually diverse reference set.
// An empty set is valid.
type CuratedSet struct {
	Samples    []string    `json:"samples"`
	SampleIDs  []uuid.UUID `json:"sample_ids"`
	TotalCost  int         `json:"total_cost"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// SampleStore reads past writing for an organization.
type SampleStore interface {
	ListRecentVoiceSamples(ctx context.Context, orgID uuid.UUID, limit int) ([]types.VoiceSample, error)
}

// Curator scores and selects voice samples.
type Curator struct {
	policy *policy.Policy
}

// NewCurator returns a Curator that penalizes the phrases listed in p.
func NewCurator(p *policy.Policy) *Curator {
	if p == nil {
		p = policy.Default()
	}
	return &Curator{policy: p}
}

// CurateFromStore reads recent samples for orgID and curates them. A store
// error yields an empty set; curation never fails a drafting request.
func (c *Curator) CurateFromStore(ctx context.Context, store SampleStore, orgID uuid.UUID, params Params, logger *zap.Logger) CuratedSet {
	if store == nil {
		return CuratedSet{}
	}
	samples, err := store.ListRecentVoiceSamples(ctx, orgID, MaxCandidates)
	if err != nil {
		if logger != nil {
			logger.Warn("voice samples unavailable, drafting without tone reference",
				zap.String("org_id", orgID.String()), zap.Error(err))
		}
		return CuratedSet{}
	}
	return c.Curate(samples, params)
}

// Curate cleans, scores and greedily selects samples.
func (c *Curator) Curate(samples []types.VoiceSample, params Params) CuratedSet {
	params = params.withDefaults()
	candidates := c.Score(mostRecent(samples, MaxCandidates), params.MaxCharsEach)

	set := CuratedSet{Candidates: candidates}
	selected := make([]Candidate, 0, params.MaxItems)
	for _, cand := range candidates {
		if len(selected) >= params.MaxItems {
			break
		}
		cost := cand.Cost()
		if set.TotalCost+cost > params.MaxTotalChars {
			continue
		}
		if tooSimilar(cand, selected) {
			continue
		}
		selected = append(selected, cand)
		set.TotalCost += cost
		set.Samples = append(set.Samples, cand.CleanedText)
		set.SampleIDs = append(set.SampleIDs, cand.ID)
	}
	return set
}

// Score cleans every sample, drops empties and returns the survivors sorted
// by score descending, newest first on ties.
func (c *Curator) Score(samples []types.VoiceSample, maxCharsEach int) []Candidate {
	if maxCharsEach <= 0 {
		maxCharsEach = defaultMaxCharsEach
	}
	candidates := make([]Candidate, 0, len(samples))
	for _, s := range samples {
		cleaned := CleanSample(s.Text, maxCharsEach)
		if cleaned == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:          s.ID,
			RawText:     s.Text,
			CleanedText: cleaned,
			Score:       c.ScoreText(cleaned),
			TokenSet:    textutil.TokenSet(cleaned),
			CreatedAt:   s.CreatedAt,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return candidates
}

// CleanSample clips, strips quote marks and emoji, and collapses whitespace.
func CleanSample(text string, maxChars int) string {
	text = textutil.TrimAndClip(text, maxChars)
	text = textutil.StripQuoteMarks(text)
	text = textutil.StripEmoji(text)
	return textutil.CollapseWhitespace(text)
}

// ScoreText returns the weighted quality score of a cleaned sample in [0,1].
func (c *Curator) ScoreText(text string) float64 {
	score := weightAntiTemplate*c.antiTemplateScore(text) +
		weightLength*lengthScore(utf8.RuneCountInString(text)) +
		weightSpecificity*c.specificityScore(text) +
		weightSentences*sentenceCountScore(textutil.CountSentences(text))
	return clamp01(score)
}

// Length band, in runes.
const (
	lengthMin       = 40
	lengthIdealLow  = 120
	lengthIdealHigh = 320
	lengthHardMax   = 600
	lengthFloor     = 0.35
)

func lengthScore(n int) float64 {
	switch {
	case n < lengthMin:
		return 0
	case n < lengthIdealLow:
		return float64(n-lengthMin) / float64(lengthIdealLow-lengthMin)
	case n <= lengthIdealHigh:
		return 1
	case n >= lengthHardMax:
		return lengthFloor
	default:
		over := float64(n-lengthIdealHigh) / float64(lengthHardMax-lengthIdealHigh)
		return 1 - over*(1-lengthFloor)
	}
}

// uniquenessFloor is the distinct/total ratio that earns no credit.
const uniquenessFloor = 0.35

func (c *Curator) specificityScore(text string) float64 {
	tokens := textutil.Tokenize(text)
	if len(tokens) == 0 {
		return 0
	}
	distinct := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		distinct[t] = struct{}{}
	}
	ratio := float64(len(distinct)) / float64(len(tokens))
	score := 0.7 * clamp01((ratio-uniquenessFloor)/(1-uniquenessFloor))

	if strings.IndexFunc(text, unicode.IsDigit) >= 0 {
		score += 0.1
	}
	if hasProperNoun(text) {
		score += 0.1
	}
	if c.policy.HasTimeReference(text) {
		score += 0.1
	}
	return clamp01(score)
}

// hasProperNoun reports whether a capitalized word of two or more letters
// appears somewhere other than the start of a sentence.
func hasProperNoun(text string) bool {
	for sentence := range textutil.SplitSentences(text) {
		words := strings.Fields(sentence)
		for _, w := range words[1:] {
			w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
			runes := []rune(w)
			if len(runes) >= 2 && unicode.IsUpper(runes[0]) && unicode.IsLower(runes[1]) {
				return true
			}
		}
	}
	return false
}

const (
	templatePenalty    = 0.35
	promoPenalty       = 0.25
	exclamationPenalty = 0.2
)

func (c *Curator) antiTemplateScore(text string) float64 {
	score := 1.0
	score -= templatePenalty * float64(len(c.policy.BannedPhrasesIn(text)))
	if c.policy.IsPromotional(text) {
		score -= promoPenalty
	}
	if strings.Count(text, "!") >= 2 {
		score -= exclamationPenalty
	}
	return clamp01(score)
}

func sentenceCountScore(n int) float64 {
	switch {
	case n >= 1 && n <= 3:
		return 1.0
	case n == 4:
		return 0.7
	default:
		return 0.45
	}
}

func tooSimilar(cand Candidate, selected []Candidate) bool {
	for _, s := range selected {
		if textutil.JaccardSimilarity(cand.TokenSet, s.TokenSet) >= SimilarityThreshold {
			return true
		}
	}
	return false
}

// mostRecent returns at most n samples, newest first.
func mostRecent(samples []types.VoiceSample, n int) []types.VoiceSample {
	sorted := make([]types.VoiceSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
