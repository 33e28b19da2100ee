package tasks

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-intake/internal/types"
)

// Status is the lifecycle state of a task
type Status string

// Status constants, in lifecycle order
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// rank orders statuses so transitions can be checked for monotonicity.
// Completed and Failed share a rank: neither may follow the other.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether the status is Completed or Failed
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage labels the pipeline step a task is in
type Stage string

// Stage constants
const (
	StageUpload           Stage = "upload"
	StageConversion       Stage = "conversion"
	StageVisualExtraction Stage = "visual_extraction"
	StageTextExtraction   Stage = "text_extraction"
	StageParsing          Stage = "parsing"
	StageCompletion       Stage = "completion"
)

// Strategy selects between page-image and flattened-text extraction
type Strategy string

// Strategy constants
const (
	StrategyVisual  Strategy = "visual"
	StrategyTextual Strategy = "textual"
)

// ParseStrategy maps user input to a Strategy, defaulting to visual
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case "", StrategyVisual:
		return StrategyVisual, true
	case StrategyTextual:
		return StrategyTextual, true
	default:
		return "", false
	}
}

// Metadata describes the submitted document
type Metadata struct {
	Filename     string     `json:"filename"`
	Size         int64      `json:"size"`
	Extension    string     `json:"extension"`
	MIMEType     string     `json:"mime_type"`
	DetectedMIME string     `json:"detected_mime,omitempty"`
	Checksum     string     `json:"checksum,omitempty"`
	Strategy     Strategy   `json:"strategy"`
	OwnerID      *uuid.UUID `json:"owner_id,omitempty"`
}

// Resources are the temporary files a task owns until it terminates
type Resources struct {
	InputPath     string `json:"-"`
	ConvertedPath string `json:"-"`
}

// Task is one submitted document's asynchronous processing job
type Task struct {
	ID         string         `json:"id"`
	Status     Status         `json:"status"`
	Stage      Stage          `json:"stage"`
	Progress   int            `json:"progress"`
	Method     Strategy       `json:"method,omitempty"`
	Result     *types.Profile `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Metadata   Metadata       `json:"metadata"`
	Resources  Resources      `json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

// clone returns a deep copy so snapshots never alias registry state
func (t *Task) clone() Task {
	c := *t
	if t.Result != nil {
		c.Result = cloneProfile(t.Result)
	}
	if t.Metadata.OwnerID != nil {
		id := *t.Metadata.OwnerID
		c.Metadata.OwnerID = &id
	}
	if t.FinishedAt != nil {
		ts := *t.FinishedAt
		c.FinishedAt = &ts
	}
	if t.ExpiresAt != nil {
		ts := *t.ExpiresAt
		c.ExpiresAt = &ts
	}
	return c
}

func cloneProfile(p *types.Profile) *types.Profile {
	c := *p
	if p.Skills != nil {
		c.Skills = make(types.SkillGroups, len(p.Skills))
		for i, g := range p.Skills {
			c.Skills[i] = types.SkillGroup{Category: g.Category, Skills: copyStrings(g.Skills)}
		}
	}
	c.Education = copyStrings(p.Education)
	c.ProfessionalExperience = copyStrings(p.ProfessionalExperience)
	c.Certifications = copyStrings(p.Certifications)
	if p.ExperienceData != nil {
		c.ExperienceData = make([]types.ExperienceEntry, len(p.ExperienceData))
		for i, e := range p.ExperienceData {
			e.Responsibilities = copyStrings(e.Responsibilities)
			c.ExperienceData[i] = e
		}
	}
	return &c
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}
