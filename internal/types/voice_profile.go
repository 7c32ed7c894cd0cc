package types

// ReplyAs names who speaks in a reply.
type ReplyAs string

// Tone is the emotional register of a reply.
type Tone string

// Brevity controls how long a reply should be.
type Brevity string

// Formality controls the register of a reply.
type Formality string

const (
	ReplyAsOwner   ReplyAs = "owner"
	ReplyAsManager ReplyAs = "manager"
	ReplyAsWe      ReplyAs = "we"

	ToneWarm    Tone = "warm"
	ToneNeutral Tone = "neutral"
	ToneDirect  Tone = "direct"
	TonePlayful Tone = "playful"

	BrevityShort  Brevity = "short"
	BrevityMedium Brevity = "medium"

	FormalityCasual       Formality = "casual"
	FormalityProfessional Formality = "professional"
)

// Valid reports whether r is a known value.
func (r ReplyAs) Valid() bool {
	switch r {
	case ReplyAsOwner, ReplyAsManager, ReplyAsWe:
		return true
	}
	return false
}

// Valid reports whether t is a known value.
func (t Tone) Valid() bool {
	switch t {
	case ToneWarm, ToneNeutral, ToneDirect, TonePlayful:
		return true
	}
	return false
}

// Valid reports whether b is a known value.
func (b Brevity) Valid() bool {
	return b == BrevityShort || b == BrevityMedium
}

// Valid reports whether f is a known value.
func (f Formality) Valid() bool {
	return f == FormalityCasual || f == FormalityProfessional
}

// VoiceProfile is the fully resolved set of stylistic parameters for one reply.
// Every field always carries a value.
type VoiceProfile struct {
	ReplyAs          ReplyAs   `json:"reply_as"`
	Tone             Tone      `json:"tone"`
	Brevity          Brevity   `json:"brevity"`
	Formality        Formality `json:"formality"`
	AvoidPhrases     []string  `json:"avoid_phrases"`
	AllowExclamation bool      `json:"allow_exclamation"`
}

// DefaultVoiceProfile returns the profile used when no layer sets a field.
func DefaultVoiceProfile() VoiceProfile {
	return VoiceProfile{
		ReplyAs:      ReplyAsWe,
		Tone:         ToneWarm,
		Brevity:      BrevityShort,
		Formality:    FormalityCasual,
		AvoidPhrases: []string{},
	}
}

// VoiceOverride is a partial VoiceProfile. Nil fields are absent and fall
// through to the next layer during resolution.
type VoiceOverride struct {
	ReplyAs          *string  `json:"reply_as,omitempty"`
	Tone             *string  `json:"tone,omitempty"`
	Brevity          *string  `json:"brevity,omitempty"`
	Formality        *string  `json:"formality,omitempty"`
	AvoidPhrases     []string `json:"avoid_phrases,omitempty"`
	AllowExclamation *bool    `json:"allow_exclamation,omitempty"`
}
