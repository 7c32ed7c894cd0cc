// Package drafting orchestrates one reply draft: it resolves the
// organization's voice and settings, compiles the generation request, calls
// the provider, enforces the output and records an audit entry.
package drafting

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/compiler"
	"github.com/jonathan/reply-drafter/internal/enforcement"
	"github.com/jonathan/reply-drafter/internal/llm"
	"github.com/jonathan/reply-drafter/internal/policy"
	"github.com/jonathan/reply-drafter/internal/textutil"
	"github.com/jonathan/reply-drafter/internal/types"
	"github.com/jonathan/reply-drafter/internal/voice"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SettingsStore reads per-organization reply settings and voice overrides.
type SettingsStore interface {
	GetReplySettings(ctx context.Context, orgID uuid.UUID) (*types.OrgReplySettings, error)
	GetVoiceOverride(ctx context.Context, orgID uuid.UUID) (*types.VoiceOverride, error)
}

// EntitlementChecker reports whether an organization may draft replies.
type EntitlementChecker interface {
	HasActiveSubscription(ctx context.Context, orgID uuid.UUID) (bool, error)
}

// Generator produces candidate text.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error)
	Sampling(req llm.GenerateRequest) (float32, int32)
}

// AuditSink records drafts. Failures never reach the caller.
type AuditSink interface {
	InsertDraftAudit(ctx context.Context, rec types.AuditRecord) (uuid.UUID, error)
}

// Deps are the collaborators of a Drafter. Any store may be nil: missing
// samples, settings and audit degrade to defaults, and a nil entitlement
// checker grants access.
type Deps struct {
	Policy       *policy.Policy
	Samples      voice.SampleStore
	Settings     SettingsStore
	Entitlements EntitlementChecker
	Generator    Generator
	Audit        AuditSink
	Logger       *zap.Logger
}

// Options tune generation and curation.
type Options struct {
	Tier            llm.ModelTier
	Temperature     float32
	MaxOutputTokens int32
	Curation        voice.Params
	// AuditTimeout bounds the best-effort audit write.
	AuditTimeout time.Duration
}

// Drafter drafts replies for organizations.
type Drafter struct {
	deps     Deps
	opts     Options
	logger   *zap.Logger
	compiler *compiler.Compiler
	curator  *voice.Curator
	pipeline *enforcement.Pipeline
}

// New returns a Drafter. The policy is shared by the compiler, curator and
// enforcement pipeline.
func New(deps Deps, opts Options) *Drafter {
	if deps.Policy == nil {
		deps.Policy = policy.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Tier == "" {
		opts.Tier = llm.TierStandard
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = 5 * time.Second
	}
	return &Drafter{
		deps:     deps,
		opts:     opts,
		logger:   logger,
		compiler: compiler.New(deps.Policy),
		curator:  voice.NewCurator(deps.Policy),
		pipeline: enforcement.New(deps.Policy),
	}
}

// Preview is the compiled request for a draft, without generation.
type Preview struct {
	Request   compiler.Request       `json:"request"`
	Profile   types.VoiceProfile     `json:"profile"`
	Settings  types.OrgReplySettings `json:"settings"`
	SampleIDs []uuid.UUID            `json:"sample_ids"`
}

// prepared is everything resolved before the provider call.
type prepared struct {
	req      types.DraftRequest
	settings types.OrgReplySettings
	profile  types.VoiceProfile
	voiceSet voice.CuratedSet
	compiled compiler.Request
}

// Draft runs the full drafting flow for one request.
func (d *Drafter) Draft(ctx context.Context, orgID uuid.UUID, req types.DraftRequest) (*types.DraftReply, error) {
	p, err := d.prepare(ctx, orgID, req)
	if err != nil {
		return nil, err
	}
	if d.deps.Generator == nil {
		return nil, &UpstreamError{Status: http.StatusServiceUnavailable, Message: "no generation provider configured"}
	}

	genReq := llm.GenerateRequest{
		SystemInstruction: p.compiled.SystemInstruction,
		Prompt:            p.compiled.Prompt,
		Tier:              d.opts.Tier,
		Temperature:       d.opts.Temperature,
		MaxOutputTokens:   d.opts.MaxOutputTokens,
	}
	temperature, maxTokens := d.deps.Generator.Sampling(genReq)

	start := time.Now()
	result, err := d.deps.Generator.Generate(ctx, genReq)
	if err != nil {
		d.logger.Error("generation failed", zap.String("org_id", orgID.String()), zap.Error(err))
		return nil, &UpstreamError{Status: llm.StatusCode(err), Message: "generation failed", Cause: err}
	}

	enforced := d.pipeline.Run(result.Text, enforcement.Input{
		Rating:           p.req.Rating,
		ReviewText:       p.req.ReviewText,
		SentenceBudget:   p.compiled.SentenceBudget,
		AllowExclamation: p.profile.AllowExclamation,
		Signature:        p.settings.ReplySignature,
	})
	if enforced.Text == "" {
		d.logger.Warn("draft empty after enforcement", zap.String("org_id", orgID.String()), zap.String("model", result.Model))
		return nil, &EmptyResultError{Raw: result.Text}
	}
	d.logger.Debug("enforcement diagnostics",
		zap.Bool("closers_stripped", enforced.Diagnostics.ClosersStripped),
		zap.Int("excuses_removed", enforced.Diagnostics.ExcusesRemoved),
		zap.Int("apologies_removed", enforced.Diagnostics.ApologiesRemoved),
		zap.Strings("banned_residual", enforced.Diagnostics.BannedPhraseResidual),
	)

	fingerprint := compiler.Fingerprint(p.compiled, compiler.SamplingParams{
		Model:           result.Model,
		Temperature:     temperature,
		MaxOutputTokens: maxTokens,
	})

	reply := &types.DraftReply{
		Text: enforced.Text,
		Meta: types.DraftMeta{
			OwnerLanguageTag:    p.settings.OwnerLanguageTag,
			ReviewerLanguageTag: p.req.LanguageTag,
			ReplyToneLabel:      p.settings.ReplyToneLabel,
			ReplySignature:      p.settings.ReplySignature,
		},
		PromptFingerprint:  fingerprint,
		EnforcementVersion: d.pipeline.Version(),
		SampleCount:        len(p.voiceSet.SampleIDs),
		SampleIDs:          p.voiceSet.SampleIDs,
	}

	d.logger.Info("draft created",
		zap.String("org_id", orgID.String()),
		zap.Int("rating", p.req.Rating),
		zap.String("model", result.Model),
		zap.Int("samples", reply.SampleCount),
		zap.Duration("generation", time.Since(start)),
	)

	d.recordAudit(ctx, orgID, p, reply, result.Model, temperature)
	return reply, nil
}

// Preview resolves and compiles a request without calling the provider.
func (d *Drafter) Preview(ctx context.Context, orgID uuid.UUID, req types.DraftRequest) (*Preview, error) {
	p, err := d.prepare(ctx, orgID, req)
	if err != nil {
		return nil, err
	}
	return &Preview{
		Request:   p.compiled,
		Profile:   p.profile,
		Settings:  p.settings,
		SampleIDs: p.voiceSet.SampleIDs,
	}, nil
}

// VoiceSet returns the organization's curated voice set with every scored
// candidate.
func (d *Drafter) VoiceSet(ctx context.Context, orgID uuid.UUID, params voice.Params) voice.CuratedSet {
	return d.curator.CurateFromStore(ctx, d.deps.Samples, orgID, params, d.logger)
}

// Enforce runs only the enforcement pipeline.
func (d *Drafter) Enforce(raw string, in enforcement.Input) (enforcement.Result, []enforcement.Step) {
	return d.pipeline.RunTrace(raw, in)
}

func (d *Drafter) prepare(ctx context.Context, orgID uuid.UUID, req types.DraftRequest) (*prepared, error) {
	req.ReviewText = textutil.StripMarkup(req.ReviewText)
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, inputErrorFrom(err)
	}

	if err := d.checkEntitlement(ctx, orgID); err != nil {
		return nil, err
	}

	p := &prepared{req: req, settings: types.DefaultOrgReplySettings()}
	var stored *types.VoiceOverride

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.settings = d.loadSettings(gCtx, orgID)
		return nil
	})
	g.Go(func() error {
		stored = d.loadVoiceOverride(gCtx, orgID)
		return nil
	})
	g.Go(func() error {
		p.voiceSet = d.curator.CurateFromStore(gCtx, d.deps.Samples, orgID, d.opts.Curation, d.logger)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.profile = voice.ResolveProfile(req.Voice, stored, voice.ToneOverride(p.settings.ReplyToneLabel))
	p.compiled = d.compiler.Compile(compiler.Input{
		Review:          req.Review(),
		Profile:         p.profile,
		Settings:        p.settings,
		Samples:         p.voiceSet.Samples,
		ToneOverride:    req.Tone,
		AdditionalRules: req.AdditionalRules,
	})
	return p, nil
}

// checkEntitlement fails closed: a lookup error denies access.
func (d *Drafter) checkEntitlement(ctx context.Context, orgID uuid.UUID) error {
	if d.deps.Entitlements == nil {
		return nil
	}
	ok, err := d.deps.Entitlements.HasActiveSubscription(ctx, orgID)
	if err != nil {
		d.logger.Error("entitlement lookup failed", zap.String("org_id", orgID.String()), zap.Error(err))
		return &EntitlementError{Message: "could not verify subscription", Cause: err}
	}
	if !ok {
		return &EntitlementError{Message: "organization has no active subscription"}
	}
	return nil
}

func (d *Drafter) loadSettings(ctx context.Context, orgID uuid.UUID) types.OrgReplySettings {
	defaults := types.DefaultOrgReplySettings()
	if d.deps.Settings == nil {
		return defaults
	}
	s, err := d.deps.Settings.GetReplySettings(ctx, orgID)
	if err != nil {
		d.logger.Warn("reply settings unavailable, using defaults", zap.String("org_id", orgID.String()), zap.Error(err))
		return defaults
	}
	if s == nil {
		return defaults
	}
	out := *s
	if out.OwnerLanguageTag == "" {
		out.OwnerLanguageTag = defaults.OwnerLanguageTag
	}
	if out.ReplyToneLabel == "" {
		out.ReplyToneLabel = defaults.ReplyToneLabel
	}
	if out.ReplySignature != nil && *out.ReplySignature == "" {
		out.ReplySignature = nil
	}
	return out
}

func (d *Drafter) loadVoiceOverride(ctx context.Context, orgID uuid.UUID) *types.VoiceOverride {
	if d.deps.Settings == nil {
		return nil
	}
	o, err := d.deps.Settings.GetVoiceOverride(ctx, orgID)
	if err != nil {
		d.logger.Warn("voice profile unavailable, using defaults", zap.String("org_id", orgID.String()), zap.Error(err))
		return nil
	}
	return o
}

func (d *Drafter) recordAudit(ctx context.Context, orgID uuid.UUID, p *prepared, reply *types.DraftReply, model string, temperature float32) {
	if d.deps.Audit == nil {
		return
	}
	rec := types.AuditRecord{
		OrgID:             orgID,
		RatingRounded:     p.req.Rating,
		ReviewContentHash: compiler.Hash(p.req.ReviewText),
		PromptFingerprint: reply.PromptFingerprint,
		PromptVersionTag:  p.compiled.PromptVersion,
		BannedListVersion: p.compiled.BannedListVersion,
		ModelIdentifier:   model,
		Temperature:       temperature,
		SampleCount:       reply.SampleCount,
		SampleIDs:         reply.SampleIDs,
	}
	if p.req.ExternalReviewID != "" {
		id := p.req.ExternalReviewID
		rec.ExternalReviewID = &id
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.AuditTimeout)
	defer cancel()
	if _, err := d.deps.Audit.InsertDraftAudit(auditCtx, rec); err != nil {
		d.logger.Warn("audit write failed", zap.String("org_id", orgID.String()), zap.Error(err))
	}
}
