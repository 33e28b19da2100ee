package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/resume-intake/internal/types"
)

func TestNormalizeSkillName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Golang to Go", "Golang", "Go"},
		{"golang to Go", "golang", "Go"},
		{"GOLANG to Go", "GOLANG", "Go"},
		{"go lang to Go", "go lang", "Go"},
		{"JavaScript normalization", "javascript", "JavaScript"},
		{"JS to JavaScript uppercase", "JS", "JavaScript"},
		{"K8s to Kubernetes", "k8s", "Kubernetes"},
		{"reactjs to React", "reactjs", "React"},
		{"nodejs to Node.js", "nodejs", "Node.js"},
		{"postgres to PostgreSQL", "Postgres", "PostgreSQL"},
		{"aws stays an acronym", "aws", "AWS"},
		{"unknown acronym kept", "SAP", "SAP"},
		{"python to Python", "python", "Python"},
		{"Empty string", "", ""},
		{"Whitespace only", "   ", ""},
		{"Inner whitespace collapsed", "Distributed   Systems", "Distributed Systems"},
		{"Multi-word stays as-is", "machine learning", "machine learning"},
		{"Mixed case single word", "JavaScript", "JavaScript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeSkillName(tt.input))
		})
	}
}

func TestNormalizeSkills(t *testing.T) {
	input := types.SkillGroups{
		{Category: "Languages", Skills: []string{"golang", "Go", " python "}},
		{Category: " ", Skills: []string{"Jira"}},
		{Category: "Cloud", Skills: []string{"Not available"}},
		{Category: "languages", Skills: []string{"js"}},
		{Category: "Databases", Skills: []string{"postgres", "PostgreSQL", ""}},
	}

	got := NormalizeSkills(input)

	assert.Equal(t, types.SkillGroups{
		{Category: "Languages", Skills: []string{"Go", "Python", "JavaScript"}},
		{Category: "General", Skills: []string{"Jira"}},
		{Category: "Databases", Skills: []string{"PostgreSQL"}},
	}, got)
}

func TestNormalizeSkills_Empty(t *testing.T) {
	assert.Empty(t, NormalizeSkills(nil))
	assert.NotNil(t, NormalizeSkills(nil))
}
