package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capstone-api/internal/models"
)

var proposalRowColumns = []string{"id", "allocation_id", "title", "description", "status", "approved_by", "approved_at", "official_project_id", "pending_side_effect", "side_effect_error", "created_at", "updated_at"}

var memberRowColumns = []string{"id", "proposal_id", "student_id", "lecturer_id", "role", "status", "created_at"}

func TestProposalRepositoryCreateWithMembers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProposalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO proposals").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO proposal_members").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO proposal_members").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	proposal := &models.Proposal{AllocationID: "alloc-1", Title: "Vision"}
	members := []models.ProposalMember{
		{StudentID: strPtr("stu-1"), Role: models.MemberRoleStudent},
		{LecturerID: strPtr("lec-1"), Role: models.MemberRoleAdvisor},
	}
	require.NoError(t, repo.Create(context.Background(), tx, proposal, members))
	require.NoError(t, tx.Commit())

	assert.Equal(t, models.ProposalStatusTopicSubmissionPending, proposal.Status)
	assert.Equal(t, proposal.ID, members[1].ProposalID)
	assert.Equal(t, models.MemberStatusActive, members[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryGetAuthContexts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProposalRepository(db)

	now := time.Now()
	mock.ExpectQuery("FROM proposals WHERE id = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(proposalRowColumns).
			AddRow("p-1", "alloc-1", "Vision", "", "PENDING_HEAD", nil, nil, nil, nil, nil, now, now))
	mock.ExpectQuery("FROM proposal_members WHERE proposal_id = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(memberRowColumns).
			AddRow("m-1", "p-1", "stu-1", nil, "STUDENT", "ACTIVE", now).
			AddRow("m-2", "p-1", nil, "lec-1", "ADVISOR", "ACTIVE", now))
	mock.ExpectQuery("FROM lecturer_scopes WHERE lecturer_id = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"lecturer_id", "division_id", "faculty_id"}).AddRow("lec-1", "div-1", "fac-1"))

	contexts, err := repo.GetAuthContexts(context.Background(), []string{"p-1", "p-missing"})
	require.NoError(t, err)
	require.Len(t, contexts, 1)
	authCtx := contexts["p-1"]
	require.NotNil(t, authCtx)
	assert.Equal(t, "lec-1", authCtx.AdvisorID)
	assert.Equal(t, models.Scope{DivisionID: "div-1", FacultyID: "fac-1"}, authCtx.AdvisorScope)
	student, ok := authCtx.ActiveMember(models.MemberRoleStudent)
	require.True(t, ok)
	assert.Equal(t, "stu-1", student.SubjectID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryUpdateStatusLostRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProposalRepository(db)

	mock.ExpectExec("UPDATE proposals").
		WithArgs("p-1", "PENDING_HEAD", "APPROVED_BY_HEAD", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), db, StatusUpdate{
		ID:       "p-1",
		Expected: models.ProposalStatusPendingHead,
		Next:     models.ProposalStatusApprovedByHead,
	})
	assert.ErrorIs(t, err, ErrStaleStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositorySetOfficialProjectOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProposalRepository(db)

	mock.ExpectExec("official_project_id IS NULL").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("official_project_id IS NULL").WillReturnResult(sqlmock.NewResult(0, 0))

	linked, err := repo.SetOfficialProject(context.Background(), db, "p-1", "proj-1")
	require.NoError(t, err)
	assert.True(t, linked)

	linked, err = repo.SetOfficialProject(context.Background(), db, "p-1", "proj-2")
	require.NoError(t, err)
	assert.False(t, linked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryListScopesByDivision(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProposalRepository(db)

	now := time.Now()
	mock.ExpectQuery("s.division_id = \\$2\\) ORDER BY p.updated_at DESC, p.id ASC LIMIT \\$3 OFFSET \\$4").
		WithArgs(sqlmock.AnyArg(), "div-1", 50, 0).
		WillReturnRows(sqlmock.NewRows(proposalRowColumns).
			AddRow("p-1", "alloc-1", "Vision", "", "PENDING_HEAD", nil, nil, nil, nil, nil, now, now))

	proposals, err := repo.List(context.Background(), models.ProposalFilter{
		Status:     []models.ProposalStatus{models.ProposalStatusPendingHead},
		DivisionID: "div-1",
	})
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryPendingSideEffects(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProposalRepository(db)

	now := time.Now()
	mock.ExpectQuery("WHERE pending_side_effect IS NOT NULL").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(proposalRowColumns).
			AddRow("p-1", "alloc-1", "Vision", "", "APPROVED_BY_HEAD", "head-1", now, nil, "MATERIALIZE_PROJECT", "db down", now, now))
	mock.ExpectExec("SET pending_side_effect = NULL").
		WithArgs("p-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	pending, err := repo.ListPendingSideEffects(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].PendingSideEffect)
	assert.Equal(t, models.SideEffectMaterializeProject, *pending[0].PendingSideEffect)

	require.NoError(t, repo.ClearSideEffect(context.Background(), "p-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryLockAndResolveOutlineSync(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProposalRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM proposals WHERE id = \\$1 FOR UPDATE").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows(proposalRowColumns).
			AddRow("p-1", "alloc-1", "Vision", "", "OUTLINE_REQUESTED_CHANGES", nil, nil, nil, "SYNC_OUTLINE", "timeout", now, now))
	mock.ExpectExec("WHERE id = \\$1 AND pending_side_effect = \\$2").
		WithArgs("p-1", "SYNC_OUTLINE", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	locked, err := repo.LockForUpdate(context.Background(), tx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusOutlineRequestedChanges, locked.Status)
	require.NotNil(t, locked.PendingSideEffect)
	require.NoError(t, repo.ResolveSideEffect(context.Background(), tx, "p-1", models.SideEffectSyncOutline))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}
