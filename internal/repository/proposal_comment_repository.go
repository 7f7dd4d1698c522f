package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/capstone-api/internal/models"
)

// ProposalCommentRepository stores the review log of proposals.
type ProposalCommentRepository struct {
	db *sqlx.DB
}

// NewProposalCommentRepository constructs the repository.
func NewProposalCommentRepository(db *sqlx.DB) *ProposalCommentRepository {
	return &ProposalCommentRepository{db: db}
}

// Append adds a comment to the log.
func (r *ProposalCommentRepository) Append(ctx context.Context, comment *models.ProposalComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO proposal_comments (id, proposal_id, author_id, body, status_from, status_to, created_at)
	VALUES (:id, :proposal_id, :author_id, :body, :status_from, :status_to, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("append proposal comment: %w", err)
	}
	return nil
}

// ListByProposal returns comments most recent first.
func (r *ProposalCommentRepository) ListByProposal(ctx context.Context, proposalID string) ([]models.ProposalComment, error) {
	const query = `SELECT id, proposal_id, author_id, body, status_from, status_to, created_at
	FROM proposal_comments WHERE proposal_id = $1 ORDER BY created_at DESC, id DESC`
	var comments []models.ProposalComment
	if err := r.db.SelectContext(ctx, &comments, query, proposalID); err != nil {
		return nil, fmt.Errorf("list proposal comments: %w", err)
	}
	return comments, nil
}
