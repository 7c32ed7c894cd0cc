// Package types provides type definitions for structured data used throughout the reply drafting system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// MaxReviewChars is the longest review text accepted for drafting.
const MaxReviewChars = 5000

// ReviewInput is the immutable input to a single drafting request.
type ReviewInput struct {
	Text                string `json:"text"`
	Rating              int    `json:"rating"`
	BusinessName        string `json:"business_name"`
	ReviewerLanguageTag string `json:"reviewer_language_tag,omitempty"`
}

// VoiceSample is a raw past-writing record as read from the sample store.
type VoiceSample struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// OrgReplySettings holds the per-organization reply settings.
type OrgReplySettings struct {
	OwnerLanguageTag string  `json:"owner_language_tag"`
	ReplyToneLabel   string  `json:"reply_tone_label"`
	ReplySignature   *string `json:"reply_signature,omitempty"`
}

// DefaultOrgReplySettings returns the settings used when the settings store is
// unavailable or has no row for an organization.
func DefaultOrgReplySettings() OrgReplySettings {
	return OrgReplySettings{
		OwnerLanguageTag: "en",
		ReplyToneLabel:   string(ToneWarm),
	}
}

// Signature returns the configured signature, or "" when none is set.
func (s OrgReplySettings) Signature() string {
	if s.ReplySignature == nil {
		return ""
	}
	return *s.ReplySignature
}
