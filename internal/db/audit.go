package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/types"
)

// InsertDraftAudit writes one audit row and returns its ID.
func (db *DB) InsertDraftAudit(ctx context.Context, rec types.AuditRecord) (uuid.UUID, error) {
	sampleIDs := rec.SampleIDs
	if sampleIDs == nil {
		sampleIDs = []uuid.UUID{}
	}

	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO draft_audit (org_id, rating, review_hash, prompt_fingerprint, prompt_version,
		     banned_list_version, model, temperature, sample_count, sample_ids, external_review_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		rec.OrgID, rec.RatingRounded, rec.ReviewContentHash, rec.PromptFingerprint, rec.PromptVersionTag,
		rec.BannedListVersion, rec.ModelIdentifier, rec.Temperature, rec.SampleCount, sampleIDs, rec.ExternalReviewID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert draft audit: %w", err)
	}
	return id, nil
}

// ListDraftAudit returns the most recent audit rows for an organization.
func (db *DB) ListDraftAudit(ctx context.Context, orgID uuid.UUID, limit int) ([]types.AuditRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, org_id, rating, review_hash, prompt_fingerprint, prompt_version, banned_list_version,
		        model, temperature, sample_count, sample_ids, external_review_id, created_at
		 FROM draft_audit WHERE org_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		orgID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list draft audit: %w", err)
	}
	defer rows.Close()

	var out []types.AuditRecord
	for rows.Next() {
		var r types.AuditRecord
		var rating int16
		if err := rows.Scan(&r.ID, &r.OrgID, &rating, &r.ReviewContentHash, &r.PromptFingerprint,
			&r.PromptVersionTag, &r.BannedListVersion, &r.ModelIdentifier, &r.Temperature,
			&r.SampleCount, &r.SampleIDs, &r.ExternalReviewID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan draft audit: %w", err)
		}
		r.RatingRounded = int(rating)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate draft audit: %w", err)
	}
	return out, nil
}
