package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/resume-intake/internal/extract"
	"github.com/jonathan/resume-intake/internal/prompts"
	"github.com/jonathan/resume-intake/internal/tasks"
)

const promptFile = "extraction.json"

// Content is the input of one oracle call
type Content struct {
	Mode tasks.Strategy
	// Text is the flattened document, used in textual mode
	Text string
	// Pages are the rasterized pages, used in visual mode
	Pages []extract.Page
	// RowMarkers is the number of experience rows the text declares
	RowMarkers int
}

// Oracle turns document content into the model's raw JSON answer
type Oracle interface {
	Extract(ctx context.Context, c Content) (string, error)
	Close() error
}

// NewOracle creates an oracle for the configured provider
func NewOracle(ctx context.Context, cfg Config, logger zerolog.Logger) (Oracle, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIOracle(cfg, logger)
	case ProviderGemini, "":
		return NewGeminiOracle(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported oracle provider %q", cfg.Provider)
	}
}

// request is a provider-neutral oracle call
type request struct {
	mode     tasks.Strategy
	system   string
	user     string
	images   [][]byte
	omitted  int
	settings ModeSettings
}

// prepare renders the instructions for c and, in visual mode, encodes at most
// cfg.MaxPages pages as PNG.
func prepare(ctx context.Context, cfg Config, c Content) (*request, error) {
	req := &request{mode: c.Mode, settings: cfg.Settings(c.Mode)}

	switch c.Mode {
	case tasks.StrategyVisual:
		if len(c.Pages) == 0 {
			return nil, &OracleError{Mode: c.Mode, Message: "no pages to send"}
		}
		pages := c.Pages
		if limit := cfg.maxPages(); len(pages) > limit {
			req.omitted = len(pages) - limit
			pages = pages[:limit]
		}
		images, err := encodePages(ctx, pages)
		if err != nil {
			return nil, &OracleError{Mode: c.Mode, Message: "encode pages", Cause: err}
		}
		req.images = images

		if req.system, err = prompts.Get(promptFile, "vision-system"); err != nil {
			return nil, err
		}
		req.user, err = prompts.Render(promptFile, "vision-user", map[string]string{
			"PageCount": strconv.Itoa(len(images)),
		})
		if err != nil {
			return nil, err
		}

	case tasks.StrategyTextual:
		if strings.TrimSpace(c.Text) == "" {
			return nil, &OracleError{Mode: c.Mode, Message: "no text to send"}
		}
		var err error
		if req.system, err = prompts.Get(promptFile, "text-system"); err != nil {
			return nil, err
		}
		req.user, err = prompts.Render(promptFile, "text-user", map[string]string{
			"RowCount": strconv.Itoa(c.RowMarkers),
			"Text":     c.Text,
		})
		if err != nil {
			return nil, err
		}

	default:
		return nil, &OracleError{Mode: c.Mode, Message: "unknown extraction mode"}
	}
	return req, nil
}

// encodePages PNG-encodes pages concurrently, preserving order
func encodePages(ctx context.Context, pages []extract.Page) ([][]byte, error) {
	out := make([][]byte, len(pages))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := p.EncodePNG()
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// checkAnswer rejects blank model output
func checkAnswer(mode tasks.Strategy, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &OracleError{Mode: mode, Message: "empty response"}
	}
	return text, nil
}

func logRequest(logger zerolog.Logger, provider Provider, model string, req *request) {
	logger.Info().
		Str("provider", string(provider)).
		Str("model", model).
		Str("mode", string(req.mode)).
		Int("images", len(req.images)).
		Int("omitted_pages", req.omitted).
		Int("prompt_chars", len(req.user)).
		Msg("oracle.request")
}
