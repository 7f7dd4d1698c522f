package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/capstone-api/internal/models"
)

const proposalColumns = `id, allocation_id, title, description, status, approved_by, approved_at, official_project_id, pending_side_effect, side_effect_error, created_at, updated_at`

const proposalMemberColumns = `id, proposal_id, student_id, lecturer_id, role, status, created_at`

// ProposalRepository persists proposals and their members.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository constructs the repository.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create inserts the proposal and its members using exec.
func (r *ProposalRepository) Create(ctx context.Context, exec sqlx.ExtContext, proposal *models.Proposal, members []models.ProposalMember) error {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.Status == "" {
		proposal.Status = models.ProposalStatusTopicSubmissionPending
	}
	now := time.Now().UTC()
	proposal.CreatedAt = now
	proposal.UpdatedAt = now

	const query = `INSERT INTO proposals (` + proposalColumns + `)
	VALUES (:id, :allocation_id, :title, :description, :status, :approved_by, :approved_at, :official_project_id, :pending_side_effect, :side_effect_error, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, proposal); err != nil {
		return fmt.Errorf("create proposal: %w", translateError(err))
	}

	const memberQuery = `INSERT INTO proposal_members (` + proposalMemberColumns + `)
	VALUES (:id, :proposal_id, :student_id, :lecturer_id, :role, :status, :created_at)`
	for i := range members {
		member := &members[i]
		if member.ID == "" {
			member.ID = uuid.NewString()
		}
		member.ProposalID = proposal.ID
		if member.Status == "" {
			member.Status = models.MemberStatusActive
		}
		member.CreatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, exec, memberQuery, member); err != nil {
			return fmt.Errorf("create proposal member: %w", translateError(err))
		}
	}
	return nil
}

// FindByID returns a proposal.
func (r *ProposalRepository) FindByID(ctx context.Context, id string) (*models.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1`
	var proposal models.Proposal
	if err := r.db.GetContext(ctx, &proposal, query, id); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// LockForUpdate reads the proposal and holds its row lock until exec's transaction ends.
func (r *ProposalRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1 FOR UPDATE`
	var proposal models.Proposal
	if err := sqlx.GetContext(ctx, exec, &proposal, query, id); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// ListMembers returns every member row of a proposal.
func (r *ProposalRepository) ListMembers(ctx context.Context, proposalID string) ([]models.ProposalMember, error) {
	query := `SELECT ` + proposalMemberColumns + ` FROM proposal_members WHERE proposal_id = $1 ORDER BY created_at ASC, id ASC`
	var members []models.ProposalMember
	if err := r.db.SelectContext(ctx, &members, query, proposalID); err != nil {
		return nil, fmt.Errorf("list proposal members: %w", err)
	}
	return members, nil
}

type advisorScopeRow struct {
	LecturerID string `db:"lecturer_id"`
	DivisionID string `db:"division_id"`
	FacultyID  string `db:"faculty_id"`
}

// GetAuthContexts loads the proposals, their members and the advisor's scope in three queries.
// Ids that do not exist are absent from the returned map.
func (r *ProposalRepository) GetAuthContexts(ctx context.Context, ids []string) (map[string]*models.ProposalAuthContext, error) {
	result := make(map[string]*models.ProposalAuthContext, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = ANY($1)`
	var proposals []models.Proposal
	if err := r.db.SelectContext(ctx, &proposals, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("load proposals: %w", err)
	}
	if len(proposals) == 0 {
		return result, nil
	}
	found := make([]string, 0, len(proposals))
	for _, proposal := range proposals {
		result[proposal.ID] = &models.ProposalAuthContext{Proposal: proposal}
		found = append(found, proposal.ID)
	}

	memberQuery := `SELECT ` + proposalMemberColumns + ` FROM proposal_members WHERE proposal_id = ANY($1) ORDER BY created_at ASC, id ASC`
	var members []models.ProposalMember
	if err := r.db.SelectContext(ctx, &members, memberQuery, pq.Array(found)); err != nil {
		return nil, fmt.Errorf("load proposal members: %w", err)
	}
	advisorIDs := make([]string, 0, len(proposals))
	for _, member := range members {
		authCtx := result[member.ProposalID]
		if authCtx == nil {
			continue
		}
		authCtx.Members = append(authCtx.Members, member)
		if member.Role == models.MemberRoleAdvisor && member.Status == models.MemberStatusActive && member.LecturerID != nil && authCtx.AdvisorID == "" {
			authCtx.AdvisorID = *member.LecturerID
			advisorIDs = append(advisorIDs, *member.LecturerID)
		}
	}
	if len(advisorIDs) == 0 {
		return result, nil
	}

	const scopeQuery = `SELECT lecturer_id, division_id, faculty_id FROM lecturer_scopes WHERE lecturer_id = ANY($1)`
	var scopes []advisorScopeRow
	if err := r.db.SelectContext(ctx, &scopes, scopeQuery, pq.Array(advisorIDs)); err != nil {
		return nil, fmt.Errorf("load advisor scopes: %w", err)
	}
	byLecturer := make(map[string]models.Scope, len(scopes))
	for _, row := range scopes {
		byLecturer[row.LecturerID] = models.Scope{DivisionID: row.DivisionID, FacultyID: row.FacultyID}
	}
	for _, authCtx := range result {
		authCtx.AdvisorScope = byLecturer[authCtx.AdvisorID]
	}
	return result, nil
}

// List returns proposals matching the filter, most recently updated first.
func (r *ProposalRepository) List(ctx context.Context, filter models.ProposalFilter) ([]models.Proposal, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("p.status = ANY($%d)", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf(`EXISTS (SELECT 1 FROM proposal_members m
		WHERE m.proposal_id = p.id AND m.role = 'STUDENT' AND m.status = 'ACTIVE' AND m.student_id = $%d)`, len(args)))
	}
	if filter.AdvisorID != "" {
		args = append(args, filter.AdvisorID)
		conditions = append(conditions, fmt.Sprintf(`EXISTS (SELECT 1 FROM proposal_members m
		WHERE m.proposal_id = p.id AND m.role = 'ADVISOR' AND m.status = 'ACTIVE' AND m.lecturer_id = $%d)`, len(args)))
	}
	if filter.DivisionID != "" {
		args = append(args, filter.DivisionID)
		conditions = append(conditions, fmt.Sprintf(`EXISTS (SELECT 1 FROM proposal_members m
		JOIN lecturer_scopes s ON s.lecturer_id = m.lecturer_id
		WHERE m.proposal_id = p.id AND m.role = 'ADVISOR' AND m.status = 'ACTIVE' AND s.division_id = $%d)`, len(args)))
	}
	if filter.FacultyID != "" {
		args = append(args, filter.FacultyID)
		conditions = append(conditions, fmt.Sprintf(`EXISTS (SELECT 1 FROM proposal_members m
		JOIN lecturer_scopes s ON s.lecturer_id = m.lecturer_id
		WHERE m.proposal_id = p.id AND m.role = 'ADVISOR' AND m.status = 'ACTIVE' AND s.faculty_id = $%d)`, len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`SELECT p.id, p.allocation_id, p.title, p.description, p.status, p.approved_by, p.approved_at,
       p.official_project_id, p.pending_side_effect, p.side_effect_error, p.created_at, p.updated_at
	FROM proposals p WHERE %s ORDER BY p.updated_at DESC, p.id ASC LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), len(args)-1, len(args))
	var proposals []models.Proposal
	if err := r.db.SelectContext(ctx, &proposals, query, args...); err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return proposals, nil
}

// StatusUpdate describes a compare-and-set status change.
type StatusUpdate struct {
	ID         string
	Expected   models.ProposalStatus
	Next       models.ProposalStatus
	ApprovedBy *string
	ApprovedAt *time.Time
}

// UpdateStatus applies the change only while the proposal is still in the expected status.
func (r *ProposalRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, update StatusUpdate) error {
	const query = `UPDATE proposals
	SET status = $3, approved_by = COALESCE($4, approved_by), approved_at = COALESCE($5, approved_at), updated_at = $6
	WHERE id = $1 AND status = $2`
	result, err := exec.ExecContext(ctx, query, update.ID, update.Expected, update.Next, update.ApprovedBy, update.ApprovedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update proposal status: %w", err)
	}
	return expectStatusRow(result)
}

// UpdateContent rewrites title and description and moves expected to next in one statement.
func (r *ProposalRepository) UpdateContent(ctx context.Context, id, title, description string, expected, next models.ProposalStatus) error {
	const query = `UPDATE proposals SET title = $3, description = $4, status = $5, updated_at = $6
	WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, expected, title, description, next, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update proposal content: %w", err)
	}
	return expectStatusRow(result)
}

// MarkSideEffect records a failed follow-up action for the retry sweep.
func (r *ProposalRepository) MarkSideEffect(ctx context.Context, id string, effect models.SideEffect, cause string) error {
	const query = `UPDATE proposals SET pending_side_effect = $2, side_effect_error = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, effect, cause, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark proposal side effect: %w", err)
	}
	return nil
}

// ClearSideEffect removes the retry flag once the follow-up action succeeded.
func (r *ProposalRepository) ClearSideEffect(ctx context.Context, id string) error {
	const query = `UPDATE proposals SET pending_side_effect = NULL, side_effect_error = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear proposal side effect: %w", err)
	}
	return nil
}

// ResolveSideEffect clears the retry flag only while it still names effect.
func (r *ProposalRepository) ResolveSideEffect(ctx context.Context, exec sqlx.ExtContext, id string, effect models.SideEffect) error {
	const query = `UPDATE proposals SET pending_side_effect = NULL, side_effect_error = NULL, updated_at = $3
	WHERE id = $1 AND pending_side_effect = $2`
	if _, err := exec.ExecContext(ctx, query, id, effect, time.Now().UTC()); err != nil {
		return fmt.Errorf("resolve proposal side effect: %w", err)
	}
	return nil
}

// ListPendingSideEffects returns proposals flagged for retry, oldest first.
func (r *ProposalRepository) ListPendingSideEffects(ctx context.Context, limit int) ([]models.Proposal, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE pending_side_effect IS NOT NULL ORDER BY updated_at ASC LIMIT $1`
	var proposals []models.Proposal
	if err := r.db.SelectContext(ctx, &proposals, query, limit); err != nil {
		return nil, fmt.Errorf("list pending side effects: %w", err)
	}
	return proposals, nil
}

// SetOfficialProject links the proposal to its project unless a link already exists.
// It reports whether this call made the link.
func (r *ProposalRepository) SetOfficialProject(ctx context.Context, exec sqlx.ExtContext, id, projectID string) (bool, error) {
	const query = `UPDATE proposals SET official_project_id = $2, updated_at = $3 WHERE id = $1 AND official_project_id IS NULL`
	result, err := exec.ExecContext(ctx, query, id, projectID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("link official project: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link official project: %w", err)
	}
	return rows == 1, nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func expectStatusRow(result rowsAffected) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrStaleStatus
	}
	return nil
}
