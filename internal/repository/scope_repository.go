package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/capstone-api/internal/models"
)

// ScopeRepository reads the organisational directory of lecturers and students.
type ScopeRepository struct {
	db *sqlx.DB
}

// NewScopeRepository constructs the repository.
func NewScopeRepository(db *sqlx.DB) *ScopeRepository {
	return &ScopeRepository{db: db}
}

// LecturerScope returns the division and faculty a lecturer belongs to.
func (r *ScopeRepository) LecturerScope(ctx context.Context, lecturerID string) (*models.Scope, error) {
	const query = `SELECT division_id, faculty_id FROM lecturer_scopes WHERE lecturer_id = $1`
	var scope models.Scope
	if err := r.db.GetContext(ctx, &scope, query, lecturerID); err != nil {
		return nil, err
	}
	return &scope, nil
}

// StudentScope returns the division and faculty a student belongs to.
func (r *ScopeRepository) StudentScope(ctx context.Context, studentID string) (*models.Scope, error) {
	const query = `SELECT division_id, faculty_id FROM student_scopes WHERE student_id = $1`
	var scope models.Scope
	if err := r.db.GetContext(ctx, &scope, query, studentID); err != nil {
		return nil, err
	}
	return &scope, nil
}
