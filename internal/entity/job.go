package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/skills-audit/constants"
)

// SkillCounts holds the per-skill resource totals of one language/level cell row.
type SkillCounts map[constants.Skill]int

// AggregateTable maps language -> level -> skill -> resource total.
type AggregateTable map[string]map[constants.Level]SkillCounts

// AuditResult is the payload of a succeeded job.
type AuditResult struct {
	Data           AggregateTable `json:"data"`
	ReportArtifact string         `json:"report_artifact"`
}

// Job is a point-in-time snapshot of an audit job, suitable for polling.
type Job struct {
	ID           uuid.UUID           `json:"id"`
	Status       constants.JobStatus `json:"status"`
	Progress     int                 `json:"progress"`
	Message      string              `json:"message,omitempty"`
	Result       *AuditResult        `json:"result,omitempty"`
	ErrorCode    string              `json:"error_code,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}
