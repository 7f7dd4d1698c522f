package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/internal/repository"
)

type projectStore interface {
	FindByProposal(ctx context.Context, proposalID string) (*models.OfficialProject, error)
	Create(ctx context.Context, exec sqlx.ExtContext, project *models.OfficialProject) error
}

type projectProposalSource interface {
	FindByID(ctx context.Context, id string) (*models.Proposal, error)
	ListMembers(ctx context.Context, proposalID string) ([]models.ProposalMember, error)
	SetOfficialProject(ctx context.Context, exec sqlx.ExtContext, id, projectID string) (bool, error)
}

type lecturerScopeReader interface {
	LecturerScope(ctx context.Context, lecturerID string) (*models.Scope, error)
}

// ProjectMaterializer creates the official project for a head-approved proposal exactly once.
type ProjectMaterializer struct {
	projects  projectStore
	proposals projectProposalSource
	scopes    lecturerScopeReader
	tx        txProvider
	logger    *zap.Logger
}

// NewProjectMaterializer wires the materializer.
func NewProjectMaterializer(projects projectStore, proposals projectProposalSource, scopes lecturerScopeReader, tx txProvider, logger *zap.Logger) *ProjectMaterializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectMaterializer{projects: projects, proposals: proposals, scopes: scopes, tx: tx, logger: logger}
}

// Materialize returns the proposal's official project, creating it when none is linked yet.
// The boolean reports whether this call created it.
func (m *ProjectMaterializer) Materialize(ctx context.Context, proposalID, approverID string) (*models.OfficialProject, bool, error) {
	proposal, err := m.proposals.FindByID(ctx, proposalID)
	if err != nil {
		return nil, false, fmt.Errorf("load proposal: %w", err)
	}
	if proposal.Status != models.ProposalStatusApprovedByHead {
		return nil, false, fmt.Errorf("proposal %s is %s, not %s", proposal.ID, proposal.Status, models.ProposalStatusApprovedByHead)
	}
	if proposal.OfficialProjectID != nil {
		existing, err := m.projects.FindByProposal(ctx, proposal.ID)
		if err != nil {
			return nil, false, fmt.Errorf("load existing project: %w", err)
		}
		return existing, false, nil
	}

	members, err := m.proposals.ListMembers(ctx, proposal.ID)
	if err != nil {
		return nil, false, fmt.Errorf("load proposal members: %w", err)
	}

	project := &models.OfficialProject{
		ProposalID:  proposal.ID,
		Title:       proposal.Title,
		Description: proposal.Description,
		ApprovedBy:  approverID,
	}
	scope, err := m.scopes.LecturerScope(ctx, approverID)
	switch {
	case err == nil && scope.DivisionID != "":
		division := scope.DivisionID
		project.DivisionID = &division
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("resolve approver division: %w", err)
	}
	for _, member := range members {
		if member.Status != models.MemberStatusActive {
			continue
		}
		if member.Role != models.MemberRoleStudent && member.Role != models.MemberRoleAdvisor {
			continue
		}
		project.Members = append(project.Members, models.ProjectMember{
			StudentID:  member.StudentID,
			LecturerID: member.LecturerID,
			Role:       member.Role,
		})
	}

	tx, err := m.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin project tx: %w", err)
	}
	if err := m.projects.Create(ctx, tx, project); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, repository.ErrUniqueViolation) {
			return m.existing(ctx, proposal.ID)
		}
		return nil, false, fmt.Errorf("create project: %w", err)
	}
	linked, err := m.proposals.SetOfficialProject(ctx, tx, proposal.ID, project.ID)
	if err != nil {
		_ = tx.Rollback()
		return nil, false, err
	}
	if !linked {
		_ = tx.Rollback()
		return m.existing(ctx, proposal.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit project: %w", err)
	}
	m.logger.Info("official project created",
		zap.String("proposal_id", proposal.ID),
		zap.String("project_id", project.ID),
		zap.Int("members", len(project.Members)),
	)
	return project, true, nil
}

func (m *ProjectMaterializer) existing(ctx context.Context, proposalID string) (*models.OfficialProject, bool, error) {
	project, err := m.projects.FindByProposal(ctx, proposalID)
	if err != nil {
		return nil, false, fmt.Errorf("load existing project: %w", err)
	}
	m.logger.Info("official project already exists", zap.String("proposal_id", proposalID), zap.String("project_id", project.ID))
	return project, false, nil
}
