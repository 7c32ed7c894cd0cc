package types

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord is written once per successful draft. Writes are best-effort.
type AuditRecord struct {
	ID                uuid.UUID   `json:"id"`
	OrgID             uuid.UUID   `json:"org_id"`
	RatingRounded     int         `json:"rating_rounded"`
	ReviewContentHash string      `json:"review_content_hash"`
	PromptFingerprint string      `json:"prompt_fingerprint"`
	PromptVersionTag  string      `json:"prompt_version_tag"`
	BannedListVersion string      `json:"banned_list_version_tag"`
	ModelIdentifier   string      `json:"model_identifier"`
	Temperature       float32     `json:"temperature"`
	SampleCount       int         `json:"sample_count"`
	SampleIDs         []uuid.UUID `json:"sample_ids"`
	ExternalReviewID  *string     `json:"external_review_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}
