package convert

import (
	"context"
	"fmt"
	"os"
)

// UnoconvConverter converts through the UNO document-automation client
type UnoconvConverter struct {
	runner Runner
}

func NewUnoconvConverter(r Runner) *UnoconvConverter {
	return &UnoconvConverter{runner: r}
}

func (c *UnoconvConverter) Name() string { return "unoconv" }

func (c *UnoconvConverter) Supports(ext string) bool {
	return ext == ".doc" || ext == ".docx"
}

func (c *UnoconvConverter) Convert(ctx context.Context, in, outDir string) (string, error) {
	out := OutputPath(in, outDir, "pdf")
	_, stderr, err := c.runner.Run(ctx, "unoconv", "-f", "pdf", "-o", out, in)
	if err != nil {
		return "", &ConversionError{Backend: c.Name(), Stderr: string(stderr), Cause: err}
	}
	if _, statErr := os.Stat(out); statErr != nil {
		return "", &ConversionError{Backend: c.Name(), Stderr: string(stderr), Cause: fmt.Errorf("unoconv produced no output")}
	}
	return out, nil
}
