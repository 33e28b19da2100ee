package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/rs/zerolog"
)

// DefaultOpenAIModel is used when the provider is openai and no model is set
const DefaultOpenAIModel = "gpt-4o"

// OpenAIOracle implements Oracle over the chat completions API. A base URL
// points it at Azure or any compatible endpoint.
type OpenAIOracle struct {
	client openai.Client
	config Config
	logger zerolog.Logger
}

// NewOpenAIOracle creates a new OpenAI oracle
func NewOpenAIOracle(cfg Config, logger zerolog.Logger) (*OpenAIOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIOracle{
		client: openai.NewClient(opts...),
		config: cfg,
		logger: logger,
	}, nil
}

// Extract sends the content as a chat completion and returns the first choice
func (o *OpenAIOracle) Extract(ctx context.Context, c Content) (string, error) {
	req, err := prepare(ctx, o.config, c)
	if err != nil {
		return "", err
	}
	logRequest(o.logger, ProviderOpenAI, o.config.Model, req)

	ctx, cancel := context.WithTimeout(ctx, req.settings.Timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.system),
			openai.UserMessage(openAIParts(req)),
		},
		Temperature: openai.Float(float64(req.settings.Temperature)),
		MaxTokens:   openai.Int(int64(req.settings.MaxTokens)),
	}

	start := time.Now()
	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		msg := "chat completion"
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg = fmt.Sprintf("chat completion returned status %d", apiErr.StatusCode)
		}
		return "", &OracleError{Mode: req.mode, Message: msg, Cause: err}
	}
	if len(completion.Choices) == 0 {
		return "", &OracleError{Mode: req.mode, Message: "no completion choices returned"}
	}

	text := completion.Choices[0].Message.Content
	o.logger.Info().
		Str("mode", string(req.mode)).
		Dur("elapsed", time.Since(start)).
		Int64("tokens", completion.Usage.TotalTokens).
		Int("response_chars", len(text)).
		Msg("oracle.response")
	return checkAnswer(req.mode, text)
}

// Close is a no-op; the HTTP client holds no resources that need releasing
func (o *OpenAIOracle) Close() error {
	return nil
}

func openAIParts(req *request) []openai.ChatCompletionContentPartUnionParam {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.images)+1)
	parts = append(parts, openai.TextContentPart(req.user))
	for _, img := range req.images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    dataURL(img),
			Detail: "high",
		}))
	}
	return parts
}

func dataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
