// Package convert normalizes word-processing uploads to PDF through an ordered
// chain of converter backends.
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/resume-intake/internal/tasks"
)

// DefaultTimeout bounds a single backend attempt
const DefaultTimeout = 90 * time.Second

// Converter is one backend of the chain
type Converter interface {
	Name() string
	Supports(ext string) bool
	// Convert writes a PDF derived from in into outDir and returns its path
	Convert(ctx context.Context, in, outDir string) (string, error)
}

// Result is the document the extractor should read
type Result struct {
	Path string
	Ext  string
	// Backend names the converter that succeeded, empty when none ran
	Backend string
	// Degraded is set when conversion was required but every backend failed
	Degraded bool
	// Failures lists each backend error in attempt order
	Failures []error
}

// Converted reports whether Path is a derivative the caller must release
func (r Result) Converted() bool {
	return r.Backend != ""
}

// Normalizer runs the converter chain
type Normalizer struct {
	converters []Converter
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewNormalizer creates a Normalizer trying converters in order
func NewNormalizer(converters []Converter, timeout time.Duration, logger zerolog.Logger) *Normalizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Normalizer{converters: converters, timeout: timeout, logger: logger}
}

// Build instantiates the named backends in order
func Build(names []string, r Runner, printPDF PrintFunc) ([]Converter, error) {
	out := make([]Converter, 0, len(names))
	for _, name := range names {
		switch name {
		case "office":
			out = append(out, NewOfficeConverter(r))
		case "unoconv":
			out = append(out, NewUnoconvConverter(r))
		case "render":
			out = append(out, NewRenderConverter(printPDF))
		default:
			return nil, fmt.Errorf("unknown converter %q", name)
		}
	}
	return out, nil
}

// Normalize returns a PDF for visual extraction of a word-processing document.
// PDFs and textual requests pass through unchanged. When every backend fails
// the original document is returned with Degraded set; the only error is a
// done context.
func (n *Normalizer) Normalize(ctx context.Context, path, ext string, strategy tasks.Strategy) (Result, error) {
	passthrough := Result{Path: path, Ext: ext}
	if strategy != tasks.StrategyVisual || ext == ".pdf" {
		return passthrough, nil
	}

	outDir := filepath.Dir(path)
	var failures []error
	for _, c := range n.converters {
		if !c.Supports(ext) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		start := time.Now()
		out, err := n.attempt(ctx, c, path, outDir)
		if err == nil {
			n.logger.Info().
				Str("backend", c.Name()).
				Str("output", out).
				Dur("duration", time.Since(start)).
				Msg("convert.backend.ok")
			return Result{Path: out, Ext: ".pdf", Backend: c.Name(), Failures: failures}, nil
		}

		failures = append(failures, err)
		n.logger.Warn().
			Str("backend", c.Name()).
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("convert.backend.failed")
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	n.logger.Warn().
		Int("attempts", len(failures)).
		Str("ext", ext).
		Msg("convert.degraded")
	passthrough.Degraded = true
	passthrough.Failures = failures
	return passthrough, nil
}

// attempt runs one backend under its own timeout and removes any partial output on failure
func (n *Normalizer) attempt(ctx context.Context, c Converter, in, outDir string) (out string, err error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	expected := OutputPath(in, outDir, "pdf")
	defer func() {
		if r := recover(); r != nil {
			err = &ConversionError{Backend: c.Name(), Cause: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			_ = os.Remove(expected)
			if out != "" && out != expected {
				_ = os.Remove(out)
			}
			out = ""
		}
	}()

	return c.Convert(ctx, in, outDir)
}
