package compiler

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// SamplingParams are the generation parameters recorded in the fingerprint.
type SamplingParams struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

// Fingerprint identifies the combination of instruction version, banned-list
// version, model and sampling parameters used for a generation.
func Fingerprint(req Request, params SamplingParams) string {
	parts := []string{
		req.PromptVersion,
		req.BannedListVersion,
		params.Model,
		strconv.FormatFloat(float64(params.Temperature), 'f', 3, 32),
		strconv.FormatInt(int64(params.MaxOutputTokens), 10),
	}
	return Hash(strings.Join(parts, "|"))
}

// Hash returns the hex BLAKE2b-256 digest of text.
func Hash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
