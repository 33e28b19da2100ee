package parsing

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-intake/internal/types"
)

const sampleAnswer = `{
	"name": " Jane Doe ",
	"email": "jane@example.com",
	"mobile": "+1 555 0100",
	"skills": [{"Languages": ["golang", "python"]}, {"Cloud": ["aws"]}],
	"education": ["B.Sc. Computer Science"],
	"professional_experience": ["Backend engineer", ""],
	"certifications": ["CKA", "cka", "AWS Solutions Architect"],
	"experience_data": [
		{"company": "Acme", "startDate": "2019", "endDate": "2021", "role": "Engineer", "clientEngagement": "", "program": "", "responsibilities": ["APIs"]},
		{"company": "Globex", "startDate": "2021", "endDate": "Present", "role": "Lead", "clientEngagement": "", "program": "", "responsibilities": []},
		{"company": "", "startDate": "", "endDate": "", "role": "", "clientEngagement": "", "program": "", "responsibilities": []}
	]
}`

func TestParseProfile(t *testing.T) {
	profile, err := ParseProfile(sampleAnswer)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", profile.Name)
	assert.Equal(t, types.SkillGroups{
		{Category: "Languages", Skills: []string{"Go", "Python"}},
		{Category: "Cloud", Skills: []string{"AWS"}},
	}, profile.Skills)
	assert.Equal(t, []string{"Backend engineer"}, profile.ProfessionalExperience)
	assert.Equal(t, []string{"CKA", "AWS Solutions Architect"}, profile.Certifications)
	// blank rows still count toward the experience table
	assert.Len(t, profile.ExperienceData, 3)
}

func TestParseProfile_FencedEqualsUnfenced(t *testing.T) {
	plain, err := ParseProfile(sampleAnswer)
	require.NoError(t, err)

	fenced, err := ParseProfile("```json\n" + sampleAnswer + "\n```")
	require.NoError(t, err)

	assert.Equal(t, plain, fenced)
}

func TestParseProfile_DefaultsMissingFields(t *testing.T) {
	profile, err := ParseProfile(`{"name": "Jane"}`)
	require.NoError(t, err)

	assert.Equal(t, "Jane", profile.Name)
	assert.Equal(t, types.NotAvailable, profile.Email)
	assert.Equal(t, types.NotAvailable, profile.Mobile)
	assert.NotNil(t, profile.Skills)
	assert.NotNil(t, profile.ExperienceData)
}

func TestParseProfile_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", "   "},
		{"prose", "I could not read this resume."},
		{"truncated", "```json\n{\"name\": \"Jane\", \"skills\": [\n```"},
		{"array", `["Jane"]`},
		{"null", `null`},
		{"fenced null", "```json\nnull\n```"},
		{"number", `42`},
		{"string", `"Jane Doe"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfile(tt.raw)
			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestParseProfile_SingleExperienceObject(t *testing.T) {
	profile, err := ParseProfile(`{"name": "Jane", "experience_data": {"company": "Acme", "responsibilities": "Owned billing"}}`)
	require.NoError(t, err)

	require.Len(t, profile.ExperienceData, 1)
	assert.Equal(t, "Acme", profile.ExperienceData[0].Company)
	assert.Equal(t, []string{"Owned billing"}, profile.ExperienceData[0].Responsibilities)
}

func TestParser_LogsSchemaMismatch(t *testing.T) {
	var buf bytes.Buffer
	p := NewParser(zerolog.New(&buf))

	profile, err := p.Parse(`{"name": "Jane", "skills": "Go"}`)
	require.NoError(t, err)
	assert.Equal(t, "Jane", profile.Name)

	assert.Contains(t, buf.String(), "parsing.schema.mismatch")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestParser_ConformingAnswerIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	p := NewParser(zerolog.New(&buf))

	_, err := p.Parse(sampleAnswer)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
