package models

import (
	"fmt"
	"time"
)

// AssessmentStatus represents the current state of a platform assessment
type AssessmentStatus string

const (
	StatusPending    AssessmentStatus = "Pending"
	StatusInProgress AssessmentStatus = "InProgress"
	StatusCompleted  AssessmentStatus = "Completed"
	StatusFailed     AssessmentStatus = "Failed"
)

// IsTerminal returns true if the status is a terminal state
func (s AssessmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProgressPercent maps a status to a bounded progress indicator
func (s AssessmentStatus) ProgressPercent() int {
	switch s {
	case StatusPending:
		return 10
	case StatusInProgress:
		return 50
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

// PhaseLabel maps a status to a human-readable phase
func (s AssessmentStatus) PhaseLabel() string {
	switch s {
	case StatusPending:
		return "queued"
	case StatusInProgress:
		return "analyzing"
	case StatusCompleted:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Assessment is the console's read-only projection of a platform assessment record.
// The console never mutates it, only re-fetches it.
type Assessment struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Type          int              `json:"type"`
	Status        AssessmentStatus `json:"status"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	OverallScore  *float64         `json:"overall_score,omitempty"`
	ResourceCount *int             `json:"resource_count,omitempty"`
}

// Elapsed returns the assessment run time: (completedAt ?? now) - startedAt.
// Recomputed per call since "now" advances while the run is live.
func (a *Assessment) Elapsed(now time.Time) time.Duration {
	end := now
	if a.CompletedAt != nil {
		end = *a.CompletedAt
	}
	d := end.Sub(a.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// FormatElapsed renders a duration in three bands: seconds under a minute,
// minutes+seconds under an hour, hours+minutes beyond that.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// CreateAssessmentRequest is the body of the platform's POST /assessments call
type CreateAssessmentRequest struct {
	EnvironmentID        string `json:"environmentId"`
	Name                 string `json:"name"`
	Type                 int    `json:"type"`
	UseClientPreferences bool   `json:"useClientPreferences"`
}

// Finding is a single flagged issue from a completed assessment
type Finding struct {
	ID             string `json:"id"`
	Severity       string `json:"severity"`
	ResourceName   string `json:"resource_name"`
	ResourceType   string `json:"resource_type,omitempty"`
	Category       string `json:"category,omitempty"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation,omitempty"`
}
