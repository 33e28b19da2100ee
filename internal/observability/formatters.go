// Package observability provides structured logging and formatted CLI output.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/jonathan/resume-intake/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI
type Printer struct {
	out     io.Writer
	noColor bool
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer, noColor bool) *Printer {
	return &Printer{out: out, noColor: noColor}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintProfile outputs a human-readable summary of an extracted profile.
func (p *Printer) PrintProfile(profile *types.Profile) {
	if profile == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Name:    %s\n", profile.Name))
	sb.WriteString(fmt.Sprintf("Email:   %s\n", profile.Email))
	sb.WriteString(fmt.Sprintf("Mobile:  %s\n", profile.Mobile))

	if len(profile.Skills) > 0 {
		sb.WriteString("\nSkills:\n")
		count := min(len(profile.Skills), maxItemsToShow)
		for i := 0; i < count; i++ {
			g := profile.Skills[i]
			sb.WriteString(fmt.Sprintf("  • %s: %s\n", g.Category, strings.Join(g.Skills, ", ")))
		}
		if len(profile.Skills) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(profile.Skills)-maxItemsToShow))
		}
	}

	if len(profile.ExperienceData) > 0 {
		sb.WriteString(fmt.Sprintf("\nExperience (%d rows):\n", len(profile.ExperienceData)))
		count := min(len(profile.ExperienceData), maxItemsToShow)
		for i := 0; i < count; i++ {
			e := profile.ExperienceData[i]
			sb.WriteString(fmt.Sprintf("  • %s, %s (%s to %s)\n", e.Company, e.Role, e.StartDate, e.EndDate))
		}
		if len(profile.ExperienceData) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(profile.ExperienceData)-maxItemsToShow))
		}
	}

	if len(profile.Certifications) > 0 {
		sb.WriteString("\nCertifications:\n")
		count := min(len(profile.Certifications), 3)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", profile.Certifications[i]))
		}
		if len(profile.Certifications) > 3 {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(profile.Certifications)-3))
		}
	}

	p.printBox("EXTRACTED PROFILE", strings.TrimSuffix(sb.String(), "\n"))
}

// Success prints a success line
func (p *Printer) Success(format string, args ...any) {
	p.status(color.FgGreen, "✓", format, args...)
}

// Warning prints a warning line
func (p *Printer) Warning(format string, args ...any) {
	p.status(color.FgYellow, "⚠", format, args...)
}

// Error prints an error line
func (p *Printer) Error(format string, args ...any) {
	p.status(color.FgRed, "✗", format, args...)
}

// Info prints an informational line
func (p *Printer) Info(format string, args ...any) {
	p.status(color.FgCyan, "•", format, args...)
}

//nolint:errcheck
func (p *Printer) status(attr color.Attribute, symbol, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.noColor {
		fmt.Fprintf(p.out, "%s %s\n", symbol, msg)
		return
	}
	c := color.New(attr)
	c.EnableColor()
	c.Fprintf(p.out, "%s %s\n", symbol, msg)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
