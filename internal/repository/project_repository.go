package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/capstone-api/internal/models"
)

// ProjectRepository persists official projects.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// FindByProposal returns the project created from a proposal together with its members.
func (r *ProjectRepository) FindByProposal(ctx context.Context, proposalID string) (*models.OfficialProject, error) {
	const query = `SELECT id, proposal_id, title, description, division_id, approved_by, created_at
	FROM official_projects WHERE proposal_id = $1`
	var project models.OfficialProject
	if err := r.db.GetContext(ctx, &project, query, proposalID); err != nil {
		return nil, err
	}
	const memberQuery = `SELECT id, project_id, student_id, lecturer_id, role, created_at
	FROM project_members WHERE project_id = $1 ORDER BY created_at ASC, id ASC`
	if err := r.db.SelectContext(ctx, &project.Members, memberQuery, project.ID); err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	return &project, nil
}

// Create inserts the project and its members using exec.
func (r *ProjectRepository) Create(ctx context.Context, exec sqlx.ExtContext, project *models.OfficialProject) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	project.CreatedAt = now

	const query = `INSERT INTO official_projects (id, proposal_id, title, description, division_id, approved_by, created_at)
	VALUES (:id, :proposal_id, :title, :description, :division_id, :approved_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, project); err != nil {
		return fmt.Errorf("create official project: %w", translateError(err))
	}

	const memberQuery = `INSERT INTO project_members (id, project_id, student_id, lecturer_id, role, created_at)
	VALUES (:id, :project_id, :student_id, :lecturer_id, :role, :created_at)`
	for i := range project.Members {
		member := &project.Members[i]
		if member.ID == "" {
			member.ID = uuid.NewString()
		}
		member.ProjectID = project.ID
		member.CreatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, exec, memberQuery, member); err != nil {
			return fmt.Errorf("create project member: %w", err)
		}
	}
	return nil
}
