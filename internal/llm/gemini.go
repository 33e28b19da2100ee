package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// GeminiOracle implements Oracle for Google Gemini
type GeminiOracle struct {
	client *genai.Client
	config Config
	logger zerolog.Logger
}

// NewGeminiOracle creates a new Gemini oracle
func NewGeminiOracle(ctx context.Context, cfg Config, logger zerolog.Logger) (*GeminiOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiOracle{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// Extract sends the content to Gemini and returns its text answer
func (o *GeminiOracle) Extract(ctx context.Context, c Content) (string, error) {
	req, err := prepare(ctx, o.config, c)
	if err != nil {
		return "", err
	}
	logRequest(o.logger, ProviderGemini, o.config.Model, req)

	ctx, cancel := context.WithTimeout(ctx, req.settings.Timeout)
	defer cancel()

	model := o.client.GenerativeModel(o.config.Model)
	model.SetTemperature(req.settings.Temperature)
	model.SetMaxOutputTokens(int32(req.settings.MaxTokens))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.system)}}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, geminiParts(req)...)
	if err != nil {
		return "", &OracleError{Mode: req.mode, Message: "generate content", Cause: err}
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", &OracleError{Mode: req.mode, Message: "read response", Cause: err}
	}
	o.logger.Info().
		Str("mode", string(req.mode)).
		Dur("elapsed", time.Since(start)).
		Int("response_chars", len(text)).
		Msg("oracle.response")
	return checkAnswer(req.mode, text)
}

// Close releases resources held by the client
func (o *GeminiOracle) Close() error {
	if o.client != nil {
		return o.client.Close()
	}
	return nil
}

// geminiParts puts the user instruction first, then one blob per page
func geminiParts(req *request) []genai.Part {
	parts := make([]genai.Part, 0, len(req.images)+1)
	parts = append(parts, genai.Text(req.user))
	for _, img := range req.images {
		parts = append(parts, genai.ImageData("png", img))
	}
	return parts
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
