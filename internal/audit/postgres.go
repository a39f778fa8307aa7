package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/govlens/assessment-console/internal/models"
)

// PostgresRepository implements Repository backed by a pgx connection pool
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to the database and verifies connectivity
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	slog.Info("connected to audit database")
	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *PostgresRepository) RecordSubmission(ctx context.Context, rec *models.SubmissionRecord) error {
	query := `
		INSERT INTO submissions (wizard_id, client_id, environment_id, name, type_id, succeeded, assessment_id, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		rec.WizardID,
		rec.ClientID,
		rec.EnvironmentID,
		rec.Name,
		rec.TypeID,
		rec.Succeeded,
		nullString(rec.AssessmentID),
		nullString(rec.ErrorMessage),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting submission record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByWizard(ctx context.Context, wizardID string) ([]*models.SubmissionRecord, error) {
	query := `
		SELECT wizard_id, client_id, environment_id, name, type_id, succeeded, assessment_id, error_message, created_at
		FROM submissions
		WHERE wizard_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, wizardID)
	if err != nil {
		return nil, fmt.Errorf("querying submissions by wizard: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]*models.SubmissionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT wizard_id, client_id, environment_id, name, type_id, succeeded, assessment_id, error_message, created_at
		FROM submissions
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent submissions: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows rowScanner) ([]*models.SubmissionRecord, error) {
	var records []*models.SubmissionRecord
	for rows.Next() {
		var rec models.SubmissionRecord
		var assessmentID, errorMessage sql.NullString
		if err := rows.Scan(
			&rec.WizardID,
			&rec.ClientID,
			&rec.EnvironmentID,
			&rec.Name,
			&rec.TypeID,
			&rec.Succeeded,
			&assessmentID,
			&errorMessage,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning submission record: %w", err)
		}
		rec.AssessmentID = assessmentID.String
		rec.ErrorMessage = errorMessage.String
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating submission records: %w", err)
	}
	return records, nil
}

// nullString maps empty strings to SQL NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
