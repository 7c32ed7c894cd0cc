package voice

import (
	"testing"

	"github.com/jonathan/reply-drafter/internal/types"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestResolveProfile_Defaults(t *testing.T) {
	got := ResolveProfile()
	assert.Equal(t, types.DefaultVoiceProfile(), got)

	got = ResolveProfile(nil, nil)
	assert.Equal(t, types.DefaultVoiceProfile(), got)
}

func TestResolveProfile_Precedence(t *testing.T) {
	request := &types.VoiceOverride{Tone: strPtr("direct")}
	stored := &types.VoiceOverride{
		Tone:             strPtr("playful"),
		ReplyAs:          strPtr("owner"),
		AllowExclamation: boolPtr(true),
	}
	orgDefaults := &types.VoiceOverride{
		ReplyAs:   strPtr("manager"),
		Formality: strPtr("professional"),
		Brevity:   strPtr("medium"),
	}

	got := ResolveProfile(request, stored, orgDefaults)
	assert.Equal(t, types.ToneDirect, got.Tone)
	assert.Equal(t, types.ReplyAsOwner, got.ReplyAs)
	assert.Equal(t, types.FormalityProfessional, got.Formality)
	assert.Equal(t, types.BrevityMedium, got.Brevity)
	assert.True(t, got.AllowExclamation)
	assert.Empty(t, got.AvoidPhrases)
}

func TestResolveProfile_InvalidValuesFallThrough(t *testing.T) {
	request := &types.VoiceOverride{Tone: strPtr("sarcastic"), ReplyAs: strPtr(" Owner ")}
	stored := &types.VoiceOverride{Tone: strPtr("neutral")}

	got := ResolveProfile(request, stored)
	assert.Equal(t, types.ToneNeutral, got.Tone)
	assert.Equal(t, types.ReplyAsOwner, got.ReplyAs)
}

func TestResolveProfile_ExplicitFalseWins(t *testing.T) {
	got := ResolveProfile(
		&types.VoiceOverride{AllowExclamation: boolPtr(false)},
		&types.VoiceOverride{AllowExclamation: boolPtr(true)},
	)
	assert.False(t, got.AllowExclamation)
}

func TestResolveProfile_AvoidPhrases(t *testing.T) {
	got := ResolveProfile(
		&types.VoiceOverride{AvoidPhrases: []string{" yummy ", "Yummy", "", "to die for"}},
		&types.VoiceOverride{AvoidPhrases: []string{"ignored"}},
	)
	assert.Equal(t, []string{"yummy", "to die for"}, got.AvoidPhrases)
}

func TestToneOverride(t *testing.T) {
	assert.Nil(t, ToneOverride("  "))
	got := ResolveProfile(ToneOverride("neutral"))
	assert.Equal(t, types.ToneNeutral, got.Tone)
}
