// Package audit persists a record of every assessment-creation request the
// console issues, successful or not. The trail is operational: submits do not
// fail because auditing failed.
package audit

import (
	"context"

	"github.com/govlens/assessment-console/internal/models"
)

// Repository abstracts submission-record storage
type Repository interface {
	// RecordSubmission appends one audit entry
	RecordSubmission(ctx context.Context, rec *models.SubmissionRecord) error

	// ListByWizard returns the entries issued by one wizard session, oldest first
	ListByWizard(ctx context.Context, wizardID string) ([]*models.SubmissionRecord, error)

	// Recent returns the newest entries across all sessions, newest first
	Recent(ctx context.Context, limit int) ([]*models.SubmissionRecord, error)

	// Ping verifies connectivity
	Ping(ctx context.Context) error

	// Close releases the underlying connections
	Close()
}
