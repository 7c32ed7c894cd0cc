package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/policy"
	"github.com/jonathan/reply-drafter/internal/textutil"
	"github.com/jonathan/reply-drafter/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(text string, ageHours int) types.VoiceSample {
	return types.VoiceSample{
		ID:        uuid.New(),
		Text:      text,
		CreatedAt: baseTime.Add(-time.Duration(ageHours) * time.Hour),
	}
}

// distinctSamples builds n samples that share almost no vocabulary.
func distinctSamples(n int) []types.VoiceSample {
	samples := make([]types.VoiceSample, 0, n)
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("Table %d on Friday had the smoked trout%d, and Marco%d remembered the pickled shallots%d from last spring visit%d.", i, i, i, i, i)
		samples = append(samples, sample(text, i))
	}
	return samples
}

func TestCurate_Empty(t *testing.T) {
	c := NewCurator(policy.Default())
	set := c.Curate(nil, Params{})
	assert.Empty(t, set.Samples)
	assert.Empty(t, set.SampleIDs)
	assert.Equal(t, 0, set.TotalCost)
}

func TestCurate_DropsSamplesThatCleanToEmpty(t *testing.T) {
	c := NewCurator(nil)
	set := c.Curate([]types.VoiceSample{sample(" 😀 \"\" ", 1), sample("   ", 2)}, Params{})
	assert.Empty(t, set.Samples)
	assert.Empty(t, set.Candidates)
}

func TestCurate_RespectsMaxItemsAndCap(t *testing.T) {
	c := NewCurator(nil)
	samples := distinctSamples(30)

	tests := []struct {
		name     string
		maxItems int
		want     int
	}{
		{"default", 0, defaultMaxItems},
		{"explicit", 3, 3},
		{"capped", 40, MaxItemsCap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := c.Curate(samples, Params{MaxItems: tt.maxItems, MaxTotalChars: 100000})
			assert.Len(t, set.Samples, tt.want)
			assert.Len(t, set.SampleIDs, tt.want)
		})
	}
}

func TestCurate_RespectsCharacterBudget(t *testing.T) {
	c := NewCurator(nil)
	samples := distinctSamples(20)

	for _, budget := range []int{50, 200, 400, 1800} {
		set := c.Curate(samples, Params{MaxItems: 12, MaxTotalChars: budget})
		total := 0
		for _, s := range set.Samples {
			total += len([]rune(s)) + separatorCost
		}
		assert.LessOrEqual(t, total, budget)
		assert.Equal(t, total, set.TotalCost)
	}
}

func TestCurate_DiversityGate(t *testing.T) {
	c := NewCurator(nil)
	original := "Thanks Dana, the lamb shoulder on Saturday was a new recipe from Chef Ruiz and we are glad it landed."
	nearDuplicate := "Thanks Dana, the lamb shoulder on Saturday was a new recipe from Chef Ruiz and we are so glad it landed."
	different := "Sorry the espresso machine was down Tuesday morning; the part arrived and Priya has it dialed in again."

	set := c.Curate([]types.VoiceSample{
		sample(original, 1),
		sample(nearDuplicate, 2),
		sample(different, 3),
	}, Params{})

	require.Len(t, set.Samples, 2)
	for i := range set.Samples {
		for j := i + 1; j < len(set.Samples); j++ {
			sim := textutil.JaccardSimilarity(textutil.TokenSet(set.Samples[i]), textutil.TokenSet(set.Samples[j]))
			assert.Less(t, sim, SimilarityThreshold)
		}
	}
}

func TestCurate_PairwiseDiversityProperty(t *testing.T) {
	c := NewCurator(nil)
	var samples []types.VoiceSample
	for i := 0; i < 40; i++ {
		// Every group of four shares a template with one varying word.
		text := fmt.Sprintf("Glad the brunch crowd on Sunday liked the %s pancakes and the new patio heaters.", []string{"ricotta", "banana", "oat", "lemon"}[i%4])
		if i%4 == 0 {
			text = fmt.Sprintf("Group %d: %s", i, strings.Repeat(fmt.Sprintf("word%d ", i), 3)+"Marta checked the oven at noon.")
		}
		samples = append(samples, sample(text, i))
	}

	set := c.Curate(samples, Params{MaxItems: 12})
	assert.LessOrEqual(t, len(set.Samples), 12)
	for i := range set.Samples {
		for j := i + 1; j < len(set.Samples); j++ {
			sim := textutil.JaccardSimilarity(textutil.TokenSet(set.Samples[i]), textutil.TokenSet(set.Samples[j]))
			assert.Less(t, sim, SimilarityThreshold, "%q vs %q", set.Samples[i], set.Samples[j])
		}
	}
}

func TestCurate_OrdersByScoreThenRecency(t *testing.T) {
	c := NewCurator(nil)
	text := "Thanks for noticing the new sourdough, Lena bakes it every Thursday at six."
	older := sample(text, 10)
	newer := sample(text+" ", 1) // cleans to the same text and score

	candidates := c.Score([]types.VoiceSample{older, newer}, 420)
	require.Len(t, candidates, 2)
	assert.Equal(t, newer.ID, candidates[0].ID)

	// Identical token sets: only the newer one is selected.
	set := c.Curate([]types.VoiceSample{older, newer}, Params{})
	assert.True(t, cmp.Equal([]uuid.UUID{newer.ID}, set.SampleIDs), cmp.Diff([]uuid.UUID{newer.ID}, set.SampleIDs))
}

func TestCurate_PrefersSpecificOverTemplated(t *testing.T) {
	c := NewCurator(nil)
	templated := sample("We appreciate your feedback! Thank you for your feedback and we value your business!!", 1)
	specific := sample("Good call on the green curry, Sam. We bumped the heat back up after Friday and the kitchen tasted every batch.", 5)

	set := c.Curate([]types.VoiceSample{templated, specific}, Params{MaxItems: 1})
	require.Len(t, set.Samples, 1)
	assert.Equal(t, specific.ID, set.SampleIDs[0])
}

func TestCurate_OnlyFiftyMostRecentConsidered(t *testing.T) {
	c := NewCurator(nil)
	samples := distinctSamples(60)
	set := c.Curate(samples, Params{MaxItems: 12, MaxTotalChars: 100000})
	assert.Len(t, set.Candidates, MaxCandidates)
	for _, cand := range set.Candidates {
		assert.False(t, cand.CreatedAt.Before(baseTime.Add(-49*time.Hour)))
	}
}

func TestCleanSample(t *testing.T) {
	assert.Equal(t, "Thanks for coming in", CleanSample("  “Thanks”   for coming in 🎉 ", 420))
	assert.Equal(t, "abc", CleanSample("abcdef", 3))
}

func TestScoreComponents(t *testing.T) {
	assert.Equal(t, 0.0, lengthScore(10))
	assert.InDelta(t, 0.5, lengthScore(80), 1e-9)
	assert.Equal(t, 1.0, lengthScore(200))
	assert.Equal(t, lengthFloor, lengthScore(900))
	assert.Greater(t, lengthScore(400), lengthFloor)
	assert.Less(t, lengthScore(400), 1.0)

	assert.Equal(t, 1.0, sentenceCountScore(1))
	assert.Equal(t, 1.0, sentenceCountScore(3))
	assert.Equal(t, 0.7, sentenceCountScore(4))
	assert.Equal(t, 0.45, sentenceCountScore(0))
	assert.Equal(t, 0.45, sentenceCountScore(7))

	c := NewCurator(nil)
	assert.Equal(t, 1.0, c.antiTemplateScore("The ramen broth takes two days."))
	assert.InDelta(t, 0.65, c.antiTemplateScore("We appreciate your feedback about the ramen."), 1e-9)
	assert.InDelta(t, 0.3, c.antiTemplateScore("We appreciate your feedback and we value your business."), 1e-9)
	assert.InDelta(t, 0.8, c.antiTemplateScore("Wow! Great!"), 1e-9)
	assert.Equal(t, 0.0, c.antiTemplateScore("We appreciate your feedback, thank you for your feedback, we value your feedback, dear valued customer!!"))

	for _, text := range []string{"", "a", "We appreciate your feedback!!", strings.Repeat("word ", 200)} {
		s := c.ScoreText(text)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestSpecificityBonuses(t *testing.T) {
	c := NewCurator(nil)
	plain := c.specificityScore("the food was good and the staff was kind")
	withDigit := c.specificityScore("the food was good and the staff was kind at 7")
	withName := c.specificityScore("the food was good and Marco was kind")
	withTime := c.specificityScore("the food was good and the staff was kind at dinner")

	assert.Greater(t, withDigit, plain)
	assert.Greater(t, withName, plain-0.01)
	assert.Greater(t, withTime, plain)
	assert.Equal(t, 0.0, c.specificityScore("!!!"))
}

type fakeSampleStore struct {
	samples []types.VoiceSample
	err     error
	limit   int
}

func (f *fakeSampleStore) ListRecentVoiceSamples(_ context.Context, _ uuid.UUID, limit int) ([]types.VoiceSample, error) {
	f.limit = limit
	return f.samples, f.err
}

func TestCurateFromStore(t *testing.T) {
	c := NewCurator(nil)

	store := &fakeSampleStore{samples: distinctSamples(3)}
	set := c.CurateFromStore(context.Background(), store, uuid.New(), Params{}, zap.NewNop())
	assert.Len(t, set.Samples, 3)
	assert.Equal(t, MaxCandidates, store.limit)

	failing := &fakeSampleStore{err: errors.New("connection refused")}
	set = c.CurateFromStore(context.Background(), failing, uuid.New(), Params{}, zap.NewNop())
	assert.Empty(t, set.Samples)

	set = c.CurateFromStore(context.Background(), nil, uuid.New(), Params{}, nil)
	assert.Empty(t, set.Samples)
}
