// Package parsing turns raw oracle answers into structured resume profiles.
package parsing

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jonathan/resume-intake/internal/schemas"
	"github.com/jonathan/resume-intake/internal/types"
	schemafiles "github.com/jonathan/resume-intake/schemas"
)

// Parser normalizes oracle answers. Schema violations are logged, not returned.
type Parser struct {
	logger zerolog.Logger
}

// NewParser creates a Parser that reports schema warnings to logger
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseProfile parses raw with a parser that discards warnings
func ParseProfile(raw string) (*types.Profile, error) {
	return NewParser(zerolog.Nop()).Parse(raw)
}

// Parse strips code fences, decodes the profile and fills defaults. Only
// undecodable JSON is an error.
func (p *Parser) Parse(raw string) (*types.Profile, error) {
	cleaned := CleanJSONBlock(raw)
	if cleaned == "" {
		return nil, &ParseError{Message: "empty response"}
	}

	var profile types.Profile
	if err := json.Unmarshal([]byte(cleaned), &profile); err != nil {
		return nil, &ParseError{Message: "response is not a JSON profile", Cause: err}
	}

	p.checkSchema(cleaned)
	postProcessProfile(&profile)
	return &profile, nil
}

func (p *Parser) checkSchema(doc string) {
	err := schemas.ValidateEmbedded(schemafiles.ResumeProfileFile, doc)
	if err == nil {
		return
	}

	var ve *schemas.ValidationError
	if errors.As(err, &ve) {
		fields := make([]string, 0, len(ve.Errors))
		for _, fe := range ve.Errors {
			fields = append(fields, fe.Field+": "+fe.Message)
		}
		p.logger.Warn().Strs("violations", fields).Msg("parsing.schema.mismatch")
		return
	}
	p.logger.Error().Err(err).Msg("parsing.schema.unavailable")
}

// postProcessProfile trims text, canonicalizes skills and fills defaults.
// Experience rows are never dropped so their count matches the document.
func postProcessProfile(profile *types.Profile) {
	profile.Name = strings.TrimSpace(profile.Name)
	profile.Email = strings.TrimSpace(profile.Email)
	profile.Mobile = strings.TrimSpace(profile.Mobile)
	profile.Skills = NormalizeSkills(profile.Skills)
	profile.Education = trimList(profile.Education)
	profile.ProfessionalExperience = trimList(profile.ProfessionalExperience)
	profile.Certifications = dedupe(trimList(profile.Certifications))

	for i := range profile.ExperienceData {
		e := &profile.ExperienceData[i]
		for _, f := range []*string{&e.Company, &e.StartDate, &e.EndDate, &e.Role, &e.ClientEngagement, &e.Program} {
			*f = strings.TrimSpace(*f)
		}
		e.Responsibilities = trimList(e.Responsibilities)
	}

	profile.ApplyDefaults()
}

func trimList(items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dedupe(items []string) []string {
	if items == nil {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, s := range items {
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
