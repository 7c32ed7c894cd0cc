package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/reply-drafter/internal/types"
)

// GetReplySettings returns the organization's reply settings, or nil when
// none are stored.
func (db *DB) GetReplySettings(ctx context.Context, orgID uuid.UUID) (*types.OrgReplySettings, error) {
	var s types.OrgReplySettings
	err := db.pool.QueryRow(ctx,
		`SELECT owner_language, reply_tone, reply_signature
		 FROM org_reply_settings WHERE org_id = $1`,
		orgID,
	).Scan(&s.OwnerLanguageTag, &s.ReplyToneLabel, &s.ReplySignature)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reply settings: %w", err)
	}
	return &s, nil
}

// UpsertReplySettings creates or replaces the organization's reply settings.
func (db *DB) UpsertReplySettings(ctx context.Context, orgID uuid.UUID, s types.OrgReplySettings) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO org_reply_settings (org_id, owner_language, reply_tone, reply_signature)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (org_id) DO UPDATE
		 SET owner_language = $2, reply_tone = $3, reply_signature = $4, updated_at = NOW()`,
		orgID, s.OwnerLanguageTag, s.ReplyToneLabel, s.ReplySignature,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert reply settings: %w", err)
	}
	return nil
}

// GetVoiceOverride returns the stored voice profile override, or nil when the
// organization has none.
func (db *DB) GetVoiceOverride(ctx context.Context, orgID uuid.UUID) (*types.VoiceOverride, error) {
	var raw []byte
	err := db.pool.QueryRow(ctx,
		`SELECT profile FROM org_voice_profiles WHERE org_id = $1`,
		orgID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get voice profile: %w", err)
	}
	return decodeVoiceOverride(raw)
}

// UpsertVoiceOverride stores the organization's voice profile override.
func (db *DB) UpsertVoiceOverride(ctx context.Context, orgID uuid.UUID, o types.VoiceOverride) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal voice profile: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO org_voice_profiles (org_id, profile) VALUES ($1, $2)
		 ON CONFLICT (org_id) DO UPDATE SET profile = $2, updated_at = NOW()`,
		orgID, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert voice profile: %w", err)
	}
	return nil
}

func decodeVoiceOverride(raw []byte) (*types.VoiceOverride, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var o types.VoiceOverride
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("failed to decode voice profile: %w", err)
	}
	return &o, nil
}
