package drafting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/enforcement"
	"github.com/jonathan/reply-drafter/internal/llm"
	"github.com/jonathan/reply-drafter/internal/policy"
	"github.com/jonathan/reply-drafter/internal/textutil"
	"github.com/jonathan/reply-drafter/internal/types"
	"github.com/jonathan/reply-drafter/internal/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type fakeSamples struct {
	samples []types.VoiceSample
	err     error
}

func (f *fakeSamples) ListRecentVoiceSamples(_ context.Context, _ uuid.UUID, _ int) ([]types.VoiceSample, error) {
	return f.samples, f.err
}

type fakeSettings struct {
	settings    *types.OrgReplySettings
	override    *types.VoiceOverride
	settingsErr error
	overrideErr error
}

func (f *fakeSettings) GetReplySettings(context.Context, uuid.UUID) (*types.OrgReplySettings, error) {
	return f.settings, f.settingsErr
}

func (f *fakeSettings) GetVoiceOverride(context.Context, uuid.UUID) (*types.VoiceOverride, error) {
	return f.override, f.overrideErr
}

type fakeEntitlements struct {
	active bool
	err    error
}

func (f *fakeEntitlements) HasActiveSubscription(context.Context, uuid.UUID) (bool, error) {
	return f.active, f.err
}

type fakeGenerator struct {
	text  string
	err   error
	calls int
	last  llm.GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.GenerateResult{Text: f.text, Model: "gemini-2.5-flash"}, nil
}

func (f *fakeGenerator) Sampling(req llm.GenerateRequest) (float32, int32) {
	t, m := req.Temperature, req.MaxOutputTokens
	if t == 0 {
		t = llm.DefaultTemperature
	}
	if m == 0 {
		m = llm.DefaultMaxOutputTokens
	}
	return t, m
}

type fakeAudit struct {
	mu      sync.Mutex
	records []types.AuditRecord
	err     error
}

func (f *fakeAudit) InsertDraftAudit(_ context.Context, rec types.AuditRecord) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return uuid.New(), f.err
}

const rawLowRatingDraft = "Thank you for your feedback! We're so sorry you waited 45 minutes and your food was cold. " +
	"We were really busy that night. We apologize for any inconvenience. Please email me so we can make it right!"

func lowRatingRequest() types.DraftRequest {
	return types.DraftRequest{
		ReviewText:   "Waited 45 minutes for a table, food was cold.",
		BusinessName: "Harbor Grill",
		Rating:       1,
		LanguageTag:  "en",
	}
}

func newTestDrafter(gen *fakeGenerator, audit *fakeAudit) (*Drafter, *fakeSettings, *fakeEntitlements) {
	settings := &fakeSettings{}
	ent := &fakeEntitlements{active: true}
	deps := Deps{
		Samples:      &fakeSamples{},
		Settings:     settings,
		Entitlements: ent,
		Generator:    gen,
	}
	if audit != nil {
		deps.Audit = audit
	}
	return New(deps, Options{}), settings, ent
}

func TestDraft_EndToEnd(t *testing.T) {
	pol := policy.Default()
	gen := &fakeGenerator{text: rawLowRatingDraft}
	audit := &fakeAudit{}
	d, _, _ := newTestDrafter(gen, audit)

	reply, err := d.Draft(context.Background(), uuid.New(), lowRatingRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, reply.Text)
	assert.LessOrEqual(t, textutil.CountSentences(reply.Text), 2)
	assert.Empty(t, pol.BannedPhrasesIn(reply.Text))
	assert.NotContains(t, reply.Text, "!")
	assert.NotContains(t, strings.ToLower(reply.Text), "busy")

	apologies := 0
	for s := range textutil.SplitSentences(reply.Text) {
		if pol.IsApology(s) {
			apologies++
		}
	}
	assert.LessOrEqual(t, apologies, 1)

	assert.Equal(t, "en", reply.Meta.OwnerLanguageTag)
	assert.Equal(t, "warm", reply.Meta.ReplyToneLabel)
	assert.Nil(t, reply.Meta.ReplySignature)
	assert.Len(t, reply.PromptFingerprint, 64)
	assert.Equal(t, pol.EnforcementVersion(), reply.EnforcementVersion)
	assert.Equal(t, 0, reply.SampleCount)

	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, llm.TierStandard, gen.last.Tier)
	assert.Contains(t, gen.last.Prompt, "Waited 45 minutes")
	assert.NotContains(t, gen.last.Prompt, "TONE REFERENCE")

	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	assert.Equal(t, 1, rec.RatingRounded)
	assert.Equal(t, reply.PromptFingerprint, rec.PromptFingerprint)
	assert.Equal(t, pol.PromptVersion(), rec.PromptVersionTag)
	assert.Equal(t, pol.BannedListVersion(), rec.BannedListVersion)
	assert.Equal(t, "gemini-2.5-flash", rec.ModelIdentifier)
	assert.Equal(t, llm.DefaultTemperature, rec.Temperature)
	assert.Nil(t, rec.ExternalReviewID)
	assert.Len(t, rec.ReviewContentHash, 64)
}

func TestDraft_UsesSettingsSamplesAndSignature(t *testing.T) {
	gen := &fakeGenerator{text: "Glad the smoked brisket hit the spot on Friday."}
	audit := &fakeAudit{}
	d, settings, _ := newTestDrafter(gen, audit)

	sig := "The Team"
	settings.settings = &types.OrgReplySettings{OwnerLanguageTag: "es", ReplyToneLabel: "direct", ReplySignature: &sig}
	sampleID := uuid.New()
	d.deps.Samples = &fakeSamples{samples: []types.VoiceSample{{
		ID:        sampleID,
		Text:      "Thanks Marta, the Tuesday paella is Jordi's recipe and he was thrilled to hear it.",
		CreatedAt: time.Now(),
	}}}

	req := lowRatingRequest()
	req.Rating = 5
	req.ReviewText = "Best brisket in town."
	req.ExternalReviewID = "g-123"

	reply, err := d.Draft(context.Background(), uuid.New(), req)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(reply.Text, "\n— The Team"))
	assert.Equal(t, "es", reply.Meta.OwnerLanguageTag)
	assert.Equal(t, "direct", reply.Meta.ReplyToneLabel)
	assert.Equal(t, 1, reply.SampleCount)
	assert.Equal(t, []uuid.UUID{sampleID}, reply.SampleIDs)

	assert.Contains(t, gen.last.Prompt, "español")
	assert.Contains(t, gen.last.Prompt, "Tone: direct")
	assert.Contains(t, gen.last.Prompt, "TONE REFERENCE")

	require.Len(t, audit.records, 1)
	require.NotNil(t, audit.records[0].ExternalReviewID)
	assert.Equal(t, "g-123", *audit.records[0].ExternalReviewID)
	assert.Equal(t, []uuid.UUID{sampleID}, audit.records[0].SampleIDs)
}

func TestDraft_ProfilePrecedence(t *testing.T) {
	gen := &fakeGenerator{text: "Glad you liked it."}
	d, settings, _ := newTestDrafter(gen, nil)

	storedTone := "direct"
	storedExcl := true
	settings.settings = &types.OrgReplySettings{ReplyToneLabel: "neutral"}
	settings.override = &types.VoiceOverride{Tone: &storedTone, AllowExclamation: &storedExcl}

	req := lowRatingRequest()
	req.Rating = 5
	preview, err := d.Preview(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	assert.Equal(t, types.ToneDirect, preview.Profile.Tone)
	assert.True(t, preview.Profile.AllowExclamation)

	requestTone := "playful"
	req.Voice = &types.VoiceOverride{Tone: &requestTone}
	preview, err = d.Preview(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	assert.Equal(t, types.TonePlayful, preview.Profile.Tone)
	assert.Equal(t, types.TonePlayful, preview.Request.Tone)
	assert.Equal(t, "en", preview.Settings.OwnerLanguageTag, "blank settings fields fall back to defaults")
	assert.Equal(t, 0, gen.calls)
}

func TestDraft_PlayfulClampedOnLowRating(t *testing.T) {
	d, _, _ := newTestDrafter(&fakeGenerator{}, nil)
	req := lowRatingRequest()
	req.Tone = "playful"

	preview, err := d.Preview(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	assert.Equal(t, types.ToneNeutral, preview.Request.Tone)
}

func TestDraft_InputErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.DraftRequest)
		field  string
	}{
		{"missing review", func(r *types.DraftRequest) { r.ReviewText = "   " }, "ReviewText"},
		{"markup only review", func(r *types.DraftRequest) { r.ReviewText = "<p> </p>" }, "ReviewText"},
		{"missing business", func(r *types.DraftRequest) { r.BusinessName = "" }, "BusinessName"},
		{"rating too high", func(r *types.DraftRequest) { r.Rating = 6 }, "Rating"},
		{"rating missing", func(r *types.DraftRequest) { r.Rating = 0 }, "Rating"},
		{"review too long", func(r *types.DraftRequest) { r.ReviewText = strings.Repeat("a", types.MaxReviewChars+1) }, "ReviewText"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{text: "unused"}
			d, _, _ := newTestDrafter(gen, nil)
			req := lowRatingRequest()
			tt.mutate(&req)

			_, err := d.Draft(context.Background(), uuid.New(), req)
			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			require.NotEmpty(t, inputErr.Fields)
			assert.Equal(t, tt.field, inputErr.Fields[0].Field)
			assert.Equal(t, 0, gen.calls)
		})
	}
}

func TestDraft_StripsMarkupBeforeValidation(t *testing.T) {
	gen := &fakeGenerator{text: "We're sorry the soup was cold."}
	d, _, _ := newTestDrafter(gen, nil)
	req := lowRatingRequest()
	req.ReviewText = "<p>The <b>soup</b> was cold.</p><script>alert(1)</script>"

	_, err := d.Draft(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	assert.Contains(t, gen.last.Prompt, "The soup was cold.")
	assert.NotContains(t, gen.last.Prompt, "<b>")
	assert.NotContains(t, gen.last.Prompt, "alert")
}

func TestDraft_Entitlement(t *testing.T) {
	t.Run("inactive", func(t *testing.T) {
		gen := &fakeGenerator{text: "unused"}
		d, _, ent := newTestDrafter(gen, nil)
		ent.active = false

		_, err := d.Draft(context.Background(), uuid.New(), lowRatingRequest())
		var entErr *EntitlementError
		require.ErrorAs(t, err, &entErr)
		assert.Equal(t, 0, gen.calls)
	})

	t.Run("lookup failure denies", func(t *testing.T) {
		gen := &fakeGenerator{text: "unused"}
		d, _, ent := newTestDrafter(gen, nil)
		ent.err = errors.New("connection refused")

		_, err := d.Draft(context.Background(), uuid.New(), lowRatingRequest())
		var entErr *EntitlementError
		require.ErrorAs(t, err, &entErr)
		assert.Equal(t, 0, gen.calls)
	})

	t.Run("invalid input is reported before entitlement", func(t *testing.T) {
		d, _, ent := newTestDrafter(&fakeGenerator{}, nil)
		ent.active = false
		req := lowRatingRequest()
		req.Rating = 9

		_, err := d.Draft(context.Background(), uuid.New(), req)
		var inputErr *InputError
		assert.ErrorAs(t, err, &inputErr)
	})
}

func TestDraft_UpstreamError(t *testing.T) {
	gen := &fakeGenerator{err: &llm.ProviderError{StatusCode: http.StatusTooManyRequests, Message: "quota"}}
	audit := &fakeAudit{}
	d, _, _ := newTestDrafter(gen, audit)

	_, err := d.Draft(context.Background(), uuid.New(), lowRatingRequest())
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusTooManyRequests, upErr.Status)
	assert.Empty(t, audit.records)

	gen.err = fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 503})
	_, err = d.Draft(context.Background(), uuid.New(), lowRatingRequest())
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusServiceUnavailable, upErr.Status)
	assert.Equal(t, 2, gen.calls, "the drafter never retries")
}

func TestDraft_NoGenerator(t *testing.T) {
	d := New(Deps{}, Options{})
	_, err := d.Draft(context.Background(), uuid.New(), lowRatingRequest())
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusServiceUnavailable, upErr.Status)
}

func TestDraft_EmptyResult(t *testing.T) {
	gen := &fakeGenerator{text: " 🙏 \"\" "}
	audit := &fakeAudit{}
	d, _, _ := newTestDrafter(gen, audit)

	_, err := d.Draft(context.Background(), uuid.New(), lowRatingRequest())
	var emptyErr *EmptyResultError
	require.ErrorAs(t, err, &emptyErr)
	assert.Empty(t, audit.records)
}

func TestDraft_CollaboratorDegradation(t *testing.T) {
	gen := &fakeGenerator{text: "We're sorry the soup was cold."}
	audit := &fakeAudit{err: errors.New("disk full")}
	d := New(Deps{
		Samples:      &fakeSamples{err: errors.New("timeout")},
		Settings:     &fakeSettings{settingsErr: errors.New("timeout"), overrideErr: errors.New("timeout")},
		Entitlements: &fakeEntitlements{active: true},
		Generator:    gen,
		Audit:        audit,
	}, Options{})

	reply, err := d.Draft(context.Background(), uuid.New(), lowRatingRequest())
	require.NoError(t, err)
	assert.Equal(t, "We're sorry the soup was cold.", reply.Text)
	assert.Equal(t, types.DefaultOrgReplySettings().OwnerLanguageTag, reply.Meta.OwnerLanguageTag)
	assert.Equal(t, 0, reply.SampleCount)
	assert.Len(t, audit.records, 1)
}

func TestDraft_CanceledContext(t *testing.T) {
	gen := &fakeGenerator{text: "unused"}
	d, _, _ := newTestDrafter(gen, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Draft(ctx, uuid.New(), lowRatingRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, gen.calls)
}

func TestVoiceSet(t *testing.T) {
	now := time.Now()
	d := New(Deps{Samples: &fakeSamples{samples: []types.VoiceSample{
		{ID: uuid.New(), Text: "Thanks Ana, the Tuesday tiramisu is Nonna's recipe.", CreatedAt: now},
		{ID: uuid.New(), Text: "   ", CreatedAt: now},
	}}}, Options{})

	set := d.VoiceSet(context.Background(), uuid.New(), voice.Params{})
	assert.Len(t, set.Samples, 1)
	assert.Len(t, set.Candidates, 1)
}

func TestEnforce(t *testing.T) {
	d := New(Deps{}, Options{})
	res, steps := d.Enforce("Great!! Thanks!", enforcementInput())
	assert.Equal(t, "Great. Thanks.", res.Text)
	assert.NotEmpty(t, steps)
}

func enforcementInput() enforcement.Input {
	return enforcement.Input{Rating: 5, ReviewText: "Lovely", SentenceBudget: 4}
}
