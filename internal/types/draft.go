package types

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DraftRequest is the caller-facing request to draft a reply.
type DraftRequest struct {
	ReviewText       string         `json:"review_text" validate:"required,max=5000"`
	BusinessName     string         `json:"business_name" validate:"required,max=200"`
	Rating           int            `json:"rating" validate:"required,min=1,max=5"`
	LanguageTag      string         `json:"language_tag,omitempty" validate:"omitempty,max=16"`
	Tone             string         `json:"tone,omitempty"`
	AdditionalRules  []string       `json:"additional_rules,omitempty" validate:"max=10,dive,max=300"`
	Voice            *VoiceOverride `json:"voice,omitempty"`
	ExternalReviewID string         `json:"external_review_id,omitempty" validate:"max=200"`
}

// Normalize trims string fields and drops blank additional rules. It must run
// before Validate so that whitespace-only fields are rejected as missing.
func (r *DraftRequest) Normalize() {
	r.ReviewText = strings.TrimSpace(r.ReviewText)
	r.BusinessName = strings.TrimSpace(r.BusinessName)
	r.LanguageTag = strings.TrimSpace(r.LanguageTag)
	r.Tone = strings.ToLower(strings.TrimSpace(r.Tone))
	r.ExternalReviewID = strings.TrimSpace(r.ExternalReviewID)

	var rules []string
	for _, rule := range r.AdditionalRules {
		if rule = strings.TrimSpace(rule); rule != "" {
			rules = append(rules, rule)
		}
	}
	r.AdditionalRules = rules
}

// Validate validates the DraftRequest using the validator.
func (r *DraftRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Review converts the request into the pipeline's ReviewInput.
func (r *DraftRequest) Review() ReviewInput {
	return ReviewInput{
		Text:                r.ReviewText,
		Rating:              r.Rating,
		BusinessName:        r.BusinessName,
		ReviewerLanguageTag: r.LanguageTag,
	}
}

// DraftMeta describes the language and voice context a reply was drafted in.
type DraftMeta struct {
	OwnerLanguageTag    string  `json:"owner_language_tag"`
	ReviewerLanguageTag string  `json:"reviewer_language_tag"`
	ReplyToneLabel      string  `json:"reply_tone_label"`
	ReplySignature      *string `json:"reply_signature"`
}

// DraftResponse is the caller-facing response for a drafted reply.
type DraftResponse struct {
	ReplyText string    `json:"reply_text"`
	Meta      DraftMeta `json:"meta"`
}

// DraftReply is the final reply plus the fields recorded for audit. It is
// never mutated after it is returned.
type DraftReply struct {
	Text               string      `json:"text"`
	Meta               DraftMeta   `json:"meta"`
	PromptFingerprint  string      `json:"prompt_fingerprint"`
	EnforcementVersion string      `json:"enforcement_version"`
	SampleCount        int         `json:"sample_count"`
	SampleIDs          []uuid.UUID `json:"sample_ids,omitempty"`
}

// Response returns the caller-facing view of the reply.
func (d *DraftReply) Response() DraftResponse {
	return DraftResponse{ReplyText: d.Text, Meta: d.Meta}
}
