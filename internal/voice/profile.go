package voice

import (
	"strings"

	"github.com/jonathan/reply-drafter/internal/types"
)

// ResolveProfile merges override layers field by field. Layers are given in
// precedence order (request first, then stored override, then organization
// defaults); the first layer with a valid value for a field wins and the
// fixed defaults fill whatever remains. Unknown enum values count as absent.
func ResolveProfile(layers ...*types.VoiceOverride) types.VoiceProfile {
	profile := types.DefaultVoiceProfile()
	var (
		replyAs, tone, brevity, formality, avoid, exclaim bool
	)

	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if !replyAs && layer.ReplyAs != nil {
			if v := types.ReplyAs(normalizeEnum(*layer.ReplyAs)); v.Valid() {
				profile.ReplyAs, replyAs = v, true
			}
		}
		if !tone && layer.Tone != nil {
			if v := types.Tone(normalizeEnum(*layer.Tone)); v.Valid() {
				profile.Tone, tone = v, true
			}
		}
		if !brevity && layer.Brevity != nil {
			if v := types.Brevity(normalizeEnum(*layer.Brevity)); v.Valid() {
				profile.Brevity, brevity = v, true
			}
		}
		if !formality && layer.Formality != nil {
			if v := types.Formality(normalizeEnum(*layer.Formality)); v.Valid() {
				profile.Formality, formality = v, true
			}
		}
		if !avoid && layer.AvoidPhrases != nil {
			profile.AvoidPhrases, avoid = cleanPhrases(layer.AvoidPhrases), true
		}
		if !exclaim && layer.AllowExclamation != nil {
			profile.AllowExclamation, exclaim = *layer.AllowExclamation, true
		}
	}
	return profile
}

// ToneOverride builds an override layer that only sets the tone. Settings
// store a tone label; this lets it participate in resolution.
func ToneOverride(label string) *types.VoiceOverride {
	if strings.TrimSpace(label) == "" {
		return nil
	}
	return &types.VoiceOverride{Tone: &label}
}

func normalizeEnum(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func cleanPhrases(phrases []string) []string {
	seen := make(map[string]bool, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
