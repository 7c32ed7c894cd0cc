package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/config"
	"github.com/jonathan/reply-drafter/internal/db"
	"github.com/jonathan/reply-drafter/internal/drafting"
	"github.com/jonathan/reply-drafter/internal/llm"
	"github.com/jonathan/reply-drafter/internal/policy"
	"github.com/jonathan/reply-drafter/internal/schemas"
	"github.com/jonathan/reply-drafter/internal/types"
	"github.com/jonathan/reply-drafter/internal/voice"
)

// loadPolicy returns the configured policy file or the embedded default.
func loadPolicy(c *config.Config) (*policy.Policy, error) {
	if c.PolicyFile == "" {
		return policy.Default(), nil
	}
	f, err := os.Open(c.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer func() { _ = f.Close() }()

	p, err := policy.Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy %s: %w", c.PolicyFile, err)
	}
	return p, nil
}

// llmConfig maps the service config onto the provider config.
func llmConfig(c *config.Config) *llm.Config {
	lc := llm.DefaultConfig()
	lc.Temperature = c.Temperature
	lc.MaxOutputTokens = c.MaxOutputTokens
	if c.Model != "" {
		lc = lc.WithModel(modelTier(c), c.Model)
	}
	return lc
}

func modelTier(c *config.Config) llm.ModelTier {
	if c.Tier == "" {
		return llm.TierStandard
	}
	return llm.ModelTier(c.Tier)
}

func curationParams(c *config.Config) voice.Params {
	return voice.Params{
		MaxItems:      c.MaxSamples,
		MaxCharsEach:  c.MaxSampleChars,
		MaxTotalChars: c.MaxSamplesTotal,
	}
}

func drafterOptions(c *config.Config) drafting.Options {
	return drafting.Options{
		Tier:            modelTier(c),
		Temperature:     c.Temperature,
		MaxOutputTokens: c.MaxOutputTokens,
		Curation:        curationParams(c),
	}
}

// connectDB opens the database named by the config.
func connectDB(ctx context.Context, c *config.Config) (*db.DB, error) {
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	database, err := db.Connect(ctx, c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

// newGenerator creates the provider client. The flag value wins over the
// configured key.
func newGenerator(ctx context.Context, c *config.Config, apiKeyFlag string) (llm.Client, error) {
	apiKey := apiKeyFlag
	if apiKey == "" {
		apiKey = c.APIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required (set GEMINI_API_KEY environment variable or use --api-key flag)")
	}
	client, err := llm.NewClient(ctx, llmConfig(c), apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, nil
}

// readDraftRequest reads a draft request JSON file, or stdin for "-", and
// validates it against the request schema before decoding.
func readDraftRequest(path string, stdin io.Reader) (types.DraftRequest, error) {
	var req types.DraftRequest

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return req, fmt.Errorf("failed to read request file: %w", err)
	}

	if err := schemas.ValidateDraftRequest(data); err != nil {
		return req, fmt.Errorf("request file does not validate against schema: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to unmarshal request JSON: %w", err)
	}
	return req, nil
}

// writeJSON writes v as indented JSON to path, or to out when path is empty.
func writeJSON(path string, out io.Writer, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	jsonBytes = append(jsonBytes, '\n')

	if path == "" {
		_, err = out.Write(jsonBytes)
		return err
	}
	if err := os.WriteFile(path, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// sampleFile is a SampleStore over past replies loaded from disk, most
// recent first.
type sampleFile []types.VoiceSample

func (s sampleFile) ListRecentVoiceSamples(_ context.Context, _ uuid.UUID, limit int) ([]types.VoiceSample, error) {
	if limit >= 0 && limit < len(s) {
		return s[:limit], nil
	}
	return s, nil
}

// loadSampleFile reads a JSON array of reply texts. IDs are derived from the
// text so repeated runs select the same IDs.
func loadSampleFile(path string, now time.Time) (sampleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples file: %w", err)
	}
	var texts []string
	if err := json.Unmarshal(data, &texts); err != nil {
		return nil, fmt.Errorf("samples file must be a JSON array of strings: %w", err)
	}

	samples := make(sampleFile, 0, len(texts))
	for i, text := range texts {
		samples = append(samples, types.VoiceSample{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(text)),
			Text:      text,
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		})
	}
	return samples, nil
}
