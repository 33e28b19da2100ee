package convert

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultOfficeBinaries are the LibreOffice entry points tried in order
var DefaultOfficeBinaries = []string{"soffice", "libreoffice"}

// LookupOffice returns the path of the first office binary found on PATH. An
// empty binaries list uses DefaultOfficeBinaries.
func LookupOffice(binaries ...string) (string, error) {
	if len(binaries) == 0 {
		binaries = DefaultOfficeBinaries
	}
	var lastErr error
	for _, bin := range binaries {
		path, err := exec.LookPath(bin)
		if err == nil {
			return path, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("no office binary on PATH (tried %s): %w", strings.Join(binaries, ", "), lastErr)
}

// OfficeConverter converts through headless LibreOffice
type OfficeConverter struct {
	runner   Runner
	binaries []string
}

// NewOfficeConverter creates the office backend. An empty binaries list uses
// DefaultOfficeBinaries.
func NewOfficeConverter(r Runner, binaries ...string) *OfficeConverter {
	if len(binaries) == 0 {
		binaries = DefaultOfficeBinaries
	}
	return &OfficeConverter{runner: r, binaries: binaries}
}

func (c *OfficeConverter) Name() string { return "office" }

func (c *OfficeConverter) Supports(ext string) bool {
	return ext == ".doc" || ext == ".docx"
}

// Convert writes <outDir>/<basename>.pdf
func (c *OfficeConverter) Convert(ctx context.Context, in, outDir string) (string, error) {
	return ConvertWithOffice(ctx, c.runner, c.binaries, in, outDir, "pdf")
}

// ConvertWithOffice runs `<office> --headless --convert-to <format> --outdir
// <outDir> <in>` with the first binary that exists, and returns the output path.
// Each call gets a throwaway user profile, since LibreOffice serializes or
// fails instances that share one.
func ConvertWithOffice(ctx context.Context, r Runner, binaries []string, in, outDir, format string) (string, error) {
	if len(binaries) == 0 {
		binaries = DefaultOfficeBinaries
	}
	out := OutputPath(in, outDir, format)

	profile, err := os.MkdirTemp("", "lo-profile-*")
	if err != nil {
		return "", &ConversionError{Backend: "office", Cause: fmt.Errorf("create profile dir: %w", err)}
	}
	defer func() { _ = os.RemoveAll(profile) }()
	profileArg := "-env:UserInstallation=" + profileURL(profile)

	var lastErr error
	for _, bin := range binaries {
		_, stderr, err := r.Run(ctx, bin, profileArg, "--headless", "--convert-to", format, "--outdir", outDir, in)
		if errors.Is(err, exec.ErrNotFound) {
			lastErr = err
			continue
		}
		if err != nil {
			return "", &ConversionError{Backend: "office", Stderr: string(stderr), Cause: err}
		}
		if _, statErr := os.Stat(out); statErr != nil {
			return "", &ConversionError{Backend: "office", Stderr: string(stderr), Cause: fmt.Errorf("%s produced no output", bin)}
		}
		return out, nil
	}
	return "", &ConversionError{Backend: "office", Cause: fmt.Errorf("no office binary available: %w", lastErr)}
}

// profileURL turns dir into the file URL LibreOffice expects for
// UserInstallation
func profileURL(dir string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(dir)}
	return u.String()
}

// OutputPath is where a converter writes in's derivative with the given extension
func OutputPath(in, outDir, format string) string {
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	return filepath.Join(outDir, base+"."+format)
}
