package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/types"
)

// MaxVoiceSampleRows caps how many samples a single read returns.
const MaxVoiceSampleRows = 50

// ListRecentVoiceSamples returns an organization's most recent voice samples,
// newest first. limit is clamped to 1..MaxVoiceSampleRows.
func (db *DB) ListRecentVoiceSamples(ctx context.Context, orgID uuid.UUID, limit int) ([]types.VoiceSample, error) {
	if limit <= 0 || limit > MaxVoiceSampleRows {
		limit = MaxVoiceSampleRows
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, body, created_at
		 FROM voice_samples
		 WHERE org_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		orgID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list voice samples: %w", err)
	}
	defer rows.Close()

	var samples []types.VoiceSample
	for rows.Next() {
		var s types.VoiceSample
		if err := rows.Scan(&s.ID, &s.Text, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan voice sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate voice samples: %w", err)
	}
	return samples, nil
}

// InsertVoiceSample stores a past reply written by the organization.
func (db *DB) InsertVoiceSample(ctx context.Context, orgID uuid.UUID, body string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO voice_samples (org_id, body) VALUES ($1, $2) RETURNING id`,
		orgID, body,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert voice sample: %w", err)
	}
	return id, nil
}
