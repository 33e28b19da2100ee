package parsing

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jonathan/resume-intake/internal/types"
)

// skillNormalizations maps common skill name variants to canonical names
var skillNormalizations = map[string]string{
	"golang":     "Go",
	"golanglang": "Go",
	"go lang":    "Go",
	"javascript": "JavaScript",
	"js":         "JavaScript",
	"typescript": "TypeScript",
	"ts":         "TypeScript",
	"k8s":        "Kubernetes",
	"kubernetes": "Kubernetes",
	"react.js":   "React",
	"reactjs":    "React",
	"vue.js":     "Vue",
	"vuejs":      "Vue",
	"node.js":    "Node.js",
	"nodejs":     "Node.js",
	"postgres":   "PostgreSQL",
	"postgresql": "PostgreSQL",
	"mongo":      "MongoDB",
	"mongodb":    "MongoDB",
	"aws":        "AWS",
	"gcp":        "GCP",
	"sql":        "SQL",
	"html":       "HTML",
	"css":        "CSS",
	"dotnet":     ".NET",
	".net":       ".NET",
}

// NormalizeSkillName normalizes a skill name to its canonical form.
// All-caps names are kept as acronyms.
func NormalizeSkillName(skillName string) string {
	normalized := strings.Join(strings.Fields(skillName), " ")
	if normalized == "" {
		return ""
	}

	lower := strings.ToLower(normalized)
	if canonical, ok := skillNormalizations[lower]; ok {
		return canonical
	}

	// If all lowercase and single word, capitalize first letter
	if normalized == lower && !strings.Contains(normalized, " ") {
		r, size := utf8.DecodeRuneInString(normalized)
		return string(unicode.ToUpper(r)) + normalized[size:]
	}

	return normalized
}

// NormalizeSkills canonicalizes skill names, drops duplicates within a
// category, merges repeated categories and removes empty groups. Category
// order follows first appearance.
func NormalizeSkills(groups types.SkillGroups) types.SkillGroups {
	out := make(types.SkillGroups, 0, len(groups))
	index := make(map[string]int)
	seen := make(map[int]map[string]bool)

	for _, g := range groups {
		category := strings.Join(strings.Fields(g.Category), " ")
		if category == "" {
			category = "General"
		}
		key := strings.ToLower(category)
		idx, ok := index[key]
		if !ok {
			out = append(out, types.SkillGroup{Category: category, Skills: []string{}})
			idx = len(out) - 1
			index[key] = idx
			seen[idx] = make(map[string]bool)
		}
		for _, s := range g.Skills {
			name := NormalizeSkillName(s)
			if name == "" || strings.EqualFold(name, types.NotAvailable) {
				continue
			}
			dedup := strings.ToLower(name)
			if seen[idx][dedup] {
				continue
			}
			seen[idx][dedup] = true
			out[idx].Skills = append(out[idx].Skills, name)
		}
	}

	kept := out[:0]
	for _, g := range out {
		if len(g.Skills) > 0 {
			kept = append(kept, g)
		}
	}
	return kept
}
