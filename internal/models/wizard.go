package models

import (
	"time"
)

// WizardStep identifies the wizard's linear steps
type WizardStep int

const (
	StepDetails     WizardStep = 1
	StepEnvironment WizardStep = 2
	StepReview      WizardStep = 3
)

// OpenWizardRequest opens a new wizard session, optionally with a preselected client
type OpenWizardRequest struct {
	Client *Client `json:"client,omitempty"`
}

// SelectClientRequest switches the wizard's client
type SelectClientRequest struct {
	Client Client `json:"client"`
}

// SetNameRequest sets the assessment name
type SetNameRequest struct {
	Name string `json:"name"`
}

// SelectEnvironmentRequest picks a target environment from the loaded list
type SelectEnvironmentRequest struct {
	EnvironmentID string `json:"environment_id"`
}

// SetPreferencesRequest toggles the client-preferences flag
type SetPreferencesRequest struct {
	UseClientPreferences bool `json:"use_client_preferences"`
}

// SubmitResponse reports the assessments created by a successful submit
type SubmitResponse struct {
	Created []*Assessment `json:"created"`
}

// SubmissionRecord is one audit entry for a creation request issued by submit().
// Recorded for every request, success or failure, so partially-created
// assessments stay reconstructable even when the submit as a whole is
// reported as failed.
type SubmissionRecord struct {
	WizardID      string    `json:"wizard_id"`
	ClientID      string    `json:"client_id"`
	EnvironmentID string    `json:"environment_id"`
	Name          string    `json:"name"`
	TypeID        int       `json:"type_id"`
	Succeeded     bool      `json:"succeeded"`
	AssessmentID  string    `json:"assessment_id,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
