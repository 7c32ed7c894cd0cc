package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/option"
)

// GenerateRequest is one generation call. Zero sampling values fall back to
// the client config.
type GenerateRequest struct {
	SystemInstruction string
	Prompt            string
	Tier              ModelTier
	Temperature       float32
	MaxOutputTokens   int32
}

// GenerateResult is the candidate text and the model that produced it.
type GenerateResult struct {
	Text  string
	Model string
}

// Client is an abstraction over LLM providers
type Client interface {
	// Generate returns one candidate text or a *ProviderError
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	// GetModel returns the provider model name for a tier
	GetModel(tier ModelTier) string
	// Sampling returns the effective temperature and output cap for req
	Sampling(req GenerateRequest) (float32, int32)
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported provider %q", config.Provider)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// Generate sends one request to Gemini. Rate limits and 5xx responses are
// retried with a short Fibonacci backoff; everything else fails immediately.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	modelName := c.config.GetModel(req.Tier)
	if modelName == "" {
		return nil, &ProviderError{StatusCode: http.StatusBadGateway, Message: fmt.Sprintf("no model configured for tier %s", req.Tier)}
	}

	model := c.client.GenerativeModel(modelName)
	temperature, maxTokens := c.Sampling(req)
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(maxTokens)
	model.SetCandidateCount(1)
	if req.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemInstruction)}}
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	text, err := withRetry(ctx, c.config.MaxRetries, 500*time.Millisecond, func(ctx context.Context) (string, error) {
		resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
		if err != nil {
			return "", newProviderError("failed to generate content", err)
		}
		return extractTextFromResponse(resp)
	})
	if err != nil {
		return nil, err
	}
	return &GenerateResult{Text: StripCodeFence(text), Model: modelName}, nil
}

// Sampling returns the effective sampling parameters for req
func (c *GeminiClient) Sampling(req GenerateRequest) (float32, int32) {
	return sampling(c.config, req)
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func sampling(config *Config, req GenerateRequest) (float32, int32) {
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = config.Temperature
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = config.MaxOutputTokens
	}
	return temperature, maxTokens
}

// withRetry runs fn until it succeeds, fails with a non-temporary error or
// maxRetries retries are spent.
func withRetry(ctx context.Context, maxRetries uint64, base time.Duration, fn func(context.Context) (string, error)) (string, error) {
	var out string
	b := retry.WithMaxRetries(maxRetries, retry.NewFibonacci(base))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		text, err := fn(ctx)
		if err != nil {
			if perr, ok := err.(*ProviderError); ok && perr.Temporary() {
				return retry.RetryableError(err)
			}
			return err
		}
		out = text
		return nil
	})
	return out, err
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &ProviderError{StatusCode: http.StatusBadGateway, Message: "no candidates in response"}
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", &ProviderError{StatusCode: http.StatusBadGateway, Message: fmt.Sprintf("no content in response (finish reason %s)", candidate.FinishReason)}
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", &ProviderError{StatusCode: http.StatusBadGateway, Message: "no text parts in response"}
	}

	return strings.Join(parts, ""), nil
}
