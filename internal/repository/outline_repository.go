package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/capstone-api/internal/models"
)

const outlineColumns = `id, proposal_id, introduction, objectives, methodology, expected_results, file_ref, status, created_at, updated_at`

// OutlineRepository persists proposal outlines.
type OutlineRepository struct {
	db *sqlx.DB
}

// NewOutlineRepository constructs the repository.
func NewOutlineRepository(db *sqlx.DB) *OutlineRepository {
	return &OutlineRepository{db: db}
}

// FindByProposal returns the outline attached to a proposal.
func (r *OutlineRepository) FindByProposal(ctx context.Context, proposalID string) (*models.Outline, error) {
	query := `SELECT ` + outlineColumns + ` FROM outlines WHERE proposal_id = $1`
	var outline models.Outline
	if err := r.db.GetContext(ctx, &outline, query, proposalID); err != nil {
		return nil, err
	}
	return &outline, nil
}

// Upsert creates the outline or replaces its content, keyed by proposal.
func (r *OutlineRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, outline *models.Outline) error {
	if outline.ID == "" {
		outline.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if outline.CreatedAt.IsZero() {
		outline.CreatedAt = now
	}
	outline.UpdatedAt = now

	const query = `INSERT INTO outlines (` + outlineColumns + `)
		VALUES (:id, :proposal_id, :introduction, :objectives, :methodology, :expected_results, :file_ref, :status, :created_at, :updated_at)
		ON CONFLICT (proposal_id) DO UPDATE
		SET introduction = EXCLUDED.introduction,
		    objectives = EXCLUDED.objectives,
		    methodology = EXCLUDED.methodology,
		    expected_results = EXCLUDED.expected_results,
		    file_ref = EXCLUDED.file_ref,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, outline); err != nil {
		return fmt.Errorf("upsert outline: %w", err)
	}
	return nil
}

// UpdateStatus sets the review status of a proposal's outline.
func (r *OutlineRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, proposalID string, status models.OutlineStatus) error {
	const query = `UPDATE outlines SET status = $2, updated_at = $3 WHERE proposal_id = $1`
	result, err := exec.ExecContext(ctx, query, proposalID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update outline status: %w", err)
	}
	return expectOneRow(result)
}
