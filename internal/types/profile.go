// Package types provides type definitions for structured data used throughout the resume-intake system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NotAvailable is the placeholder used for profile fields the document does not contain
const NotAvailable = "Not available"

// Profile is the structured resume extracted from an uploaded document
type Profile struct {
	Name                   string            `json:"name"`
	Email                  string            `json:"email"`
	Mobile                 string            `json:"mobile"`
	Skills                 SkillGroups       `json:"skills"`
	Education              []string          `json:"education"`
	ProfessionalExperience []string          `json:"professional_experience"`
	Certifications         []string          `json:"certifications"`
	ExperienceData         []ExperienceEntry `json:"experience_data"`
}

// ExperienceEntry is one engagement row of the candidate's experience table
type ExperienceEntry struct {
	Company          string   `json:"company"`
	StartDate        string   `json:"startDate"`
	EndDate          string   `json:"endDate"`
	Role             string   `json:"role"`
	ClientEngagement string   `json:"clientEngagement"`
	Program          string   `json:"program"`
	Responsibilities []string `json:"responsibilities"`
}

// SkillGroup maps one category to its skills
type SkillGroup struct {
	Category string
	Skills   []string
}

// SkillGroups is an ordered list of skill groupings, serialized as
// [{"Category": ["skill", ...]}, ...]
type SkillGroups []SkillGroup

// ApplyDefaults fills missing scalar fields with NotAvailable and replaces nil
// slices with empty ones so the JSON form never carries nulls.
func (p *Profile) ApplyDefaults() {
	for _, field := range []*string{&p.Name, &p.Email, &p.Mobile} {
		if strings.TrimSpace(*field) == "" {
			*field = NotAvailable
		}
	}
	if p.Skills == nil {
		p.Skills = SkillGroups{}
	}
	if p.Education == nil {
		p.Education = []string{}
	}
	if p.ProfessionalExperience == nil {
		p.ProfessionalExperience = []string{}
	}
	if p.Certifications == nil {
		p.Certifications = []string{}
	}
	if p.ExperienceData == nil {
		p.ExperienceData = []ExperienceEntry{}
	}
	for i := range p.ExperienceData {
		if p.ExperienceData[i].Responsibilities == nil {
			p.ExperienceData[i].Responsibilities = []string{}
		}
	}
}

// UnmarshalJSON decodes a profile leniently: scalars may arrive as numbers,
// lists may arrive as a single string, and "Not available" in a list slot
// decodes to an empty list. The document itself must be a JSON object.
func (p *Profile) UnmarshalJSON(data []byte) error {
	if !isObject(data) {
		return errNotObject
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if p.Name, err = looseString(raw["name"]); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if p.Email, err = looseString(raw["email"]); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	if p.Mobile, err = looseString(raw["mobile"]); err != nil {
		return fmt.Errorf("mobile: %w", err)
	}
	if p.Education, err = looseStringList(raw["education"]); err != nil {
		return fmt.Errorf("education: %w", err)
	}
	if p.ProfessionalExperience, err = looseStringList(raw["professional_experience"]); err != nil {
		return fmt.Errorf("professional_experience: %w", err)
	}
	if p.Certifications, err = looseStringList(raw["certifications"]); err != nil {
		return fmt.Errorf("certifications: %w", err)
	}

	p.Skills = nil
	if msg, ok := raw["skills"]; ok && !isNull(msg) {
		if err := json.Unmarshal(msg, &p.Skills); err != nil {
			return fmt.Errorf("skills: %w", err)
		}
	}

	if p.ExperienceData, err = looseExperience(raw["experience_data"]); err != nil {
		return fmt.Errorf("experience_data: %w", err)
	}
	return nil
}

// looseExperience accepts a list of rows or a single row object. A string
// row becomes an entry naming only the company; null and placeholder rows
// are dropped.
func looseExperience(msg json.RawMessage) ([]ExperienceEntry, error) {
	if len(msg) == 0 || isNull(msg) || isPlaceholder(msg) {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(msg)
	switch trimmed[0] {
	case '{':
		var e ExperienceEntry
		if err := json.Unmarshal(trimmed, &e); err != nil {
			return nil, err
		}
		return []ExperienceEntry{e}, nil
	case '"':
		trimmed = append(append([]byte{'['}, trimmed...), ']')
	case '[':
	default:
		return nil, fmt.Errorf("unexpected %s", kindOf(trimmed))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	out := make([]ExperienceEntry, 0, len(items))
	for i, item := range items {
		if isNull(item) || isPlaceholder(item) {
			continue
		}
		item = bytes.TrimSpace(item)
		if item[0] == '"' {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, ExperienceEntry{Company: s})
			}
			continue
		}
		var e ExperienceEntry
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// UnmarshalJSON decodes one experience row with the same leniency as Profile
func (e *ExperienceEntry) UnmarshalJSON(data []byte) error {
	if !isObject(data) {
		return errNotObject
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := []struct {
		key string
		dst *string
	}{
		{"company", &e.Company},
		{"startDate", &e.StartDate},
		{"endDate", &e.EndDate},
		{"role", &e.Role},
		{"clientEngagement", &e.ClientEngagement},
		{"program", &e.Program},
	}
	for _, f := range fields {
		v, err := looseString(raw[f.key])
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = v
	}

	resp, err := looseStringList(raw["responsibilities"])
	if err != nil {
		return fmt.Errorf("responsibilities: %w", err)
	}
	e.Responsibilities = resp
	return nil
}

// MarshalJSON writes each group as a single-key object, preserving order
func (g SkillGroups) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, group := range g {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(group.Category)
		if err != nil {
			return nil, err
		}
		skills := group.Skills
		if skills == nil {
			skills = []string{}
		}
		val, err := json.Marshal(skills)
		if err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a list of category objects, a single category object,
// or a flat list of skill names (collected under "General"). Key order inside
// each object is preserved.
func (g *SkillGroups) UnmarshalJSON(data []byte) error {
	*g = nil
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || isNull(trimmed) || isPlaceholder(trimmed) {
		return nil
	}

	switch trimmed[0] {
	case '{':
		groups, err := decodeSkillObject(trimmed)
		if err != nil {
			return err
		}
		*g = groups
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		var general []string
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) > 0 && item[0] == '{' {
				groups, err := decodeSkillObject(item)
				if err != nil {
					return err
				}
				*g = append(*g, groups...)
				continue
			}
			values, err := flattenJSON(item)
			if err != nil {
				return err
			}
			general = append(general, values...)
		}
		if len(general) > 0 {
			*g = append(*g, SkillGroup{Category: "General", Skills: general})
		}
		return nil
	default:
		values, err := flattenJSON(trimmed)
		if err != nil {
			return err
		}
		if len(values) > 0 {
			*g = SkillGroups{{Category: "General", Skills: values}}
		}
		return nil
	}
}

// decodeSkillObject walks an object token by token so categories keep their source order
func decodeSkillObject(data []byte) (SkillGroups, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var groups SkillGroups
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		category, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		skills, err := looseStringList(value)
		if err != nil {
			return nil, err
		}
		groups = append(groups, SkillGroup{Category: category, Skills: skills})
	}
	return groups, nil
}

// looseString converts any JSON scalar to its string form
func looseString(msg json.RawMessage) (string, error) {
	if len(msg) == 0 || isNull(msg) {
		return "", nil
	}
	values, err := flattenJSON(msg)
	if err != nil {
		return "", err
	}
	return strings.Join(values, ", "), nil
}

// looseStringList converts a JSON value to a list of strings
func looseStringList(msg json.RawMessage) ([]string, error) {
	if len(msg) == 0 || isNull(msg) || isPlaceholder(msg) {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(msg)
	if trimmed[0] != '[' {
		values, err := flattenJSON(trimmed)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, nil
		}
		return []string{strings.Join(values, ", ")}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		values, err := flattenJSON(item)
		if err != nil {
			return nil, err
		}
		if len(values) > 0 {
			out = append(out, strings.Join(values, ", "))
		}
	}
	return out, nil
}

// flattenJSON collects every scalar value of a JSON document in source order.
// Object keys are skipped.
func flattenJSON(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out []string
	if err := flattenValue(dec, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenValue(dec *json.Decoder, out *[]string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			for dec.More() {
				if _, err := dec.Token(); err != nil {
					return err
				}
				if err := flattenValue(dec, out); err != nil {
					return err
				}
			}
		case '[':
			for dec.More() {
				if err := flattenValue(dec, out); err != nil {
					return err
				}
			}
		}
		_, err := dec.Token()
		return err
	case string:
		if s := strings.TrimSpace(t); s != "" {
			*out = append(*out, s)
		}
	case json.Number:
		*out = append(*out, t.String())
	case bool:
		*out = append(*out, strconv.FormatBool(t))
	}
	return nil
}

func isNull(msg []byte) bool {
	return bytes.Equal(bytes.TrimSpace(msg), []byte("null"))
}

var errNotObject = errors.New("expected a JSON object")

// isObject reports whether data holds a JSON object rather than null, an
// array or a scalar
func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func kindOf(data []byte) string {
	switch data[0] {
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}

// isPlaceholder reports whether msg is the JSON string "Not available"
func isPlaceholder(msg []byte) bool {
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(s), NotAvailable)
}
