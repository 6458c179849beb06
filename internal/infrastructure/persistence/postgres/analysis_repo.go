package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYSIS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AnalysisRepository implements analysis.Repository for PostgreSQL.
type AnalysisRepository struct {
	db Querier
}

// NewAnalysisRepository creates a new AnalysisRepository.
func NewAnalysisRepository(db Querier) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

var _ analysis.Repository = (*AnalysisRepository)(nil)

const analysisColumns = `student_id, fingerprint, model, success, decline, weak_subjects, created_at`

// Get returns the record for a student fingerprint.
func (r *AnalysisRepository) Get(ctx context.Context, studentID, fingerprint string) (*analysis.Record, error) {
	query := `SELECT ` + analysisColumns + `
		FROM analyses
		WHERE student_id = $1 AND fingerprint = $2`

	rec, err := scanRecord(r.db.QueryRow(ctx, query, studentID, fingerprint))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.WrapError("postgres", "AnalysisRepository.Get", shared.ErrNotFound,
				"analysis not found", err)
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return rec, nil
}

// Save upserts a record. A second save for the same fingerprint replaces
// the text but keeps the row.
func (r *AnalysisRepository) Save(ctx context.Context, rec *analysis.Record) error {
	query := `
		INSERT INTO analyses (` + analysisColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (student_id, fingerprint) DO UPDATE SET
			model = EXCLUDED.model,
			success = EXCLUDED.success,
			decline = EXCLUDED.decline,
			weak_subjects = EXCLUDED.weak_subjects,
			created_at = EXCLUDED.created_at
	`

	_, err := r.db.Exec(ctx, query,
		rec.StudentID,
		rec.Fingerprint,
		rec.Model,
		rec.Analysis.Success,
		rec.Analysis.Decline,
		rec.Analysis.WeakSubjects,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// History returns past records for a student, newest first.
func (r *AnalysisRepository) History(ctx context.Context, studentID string, limit int) ([]*analysis.Record, error) {
	query := `SELECT ` + analysisColumns + `
		FROM analyses
		WHERE student_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	out := make([]*analysis.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*analysis.Record, error) {
	var rec analysis.Record
	err := row.Scan(
		&rec.StudentID,
		&rec.Fingerprint,
		&rec.Model,
		&rec.Analysis.Success,
		&rec.Analysis.Decline,
		&rec.Analysis.WeakSubjects,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
