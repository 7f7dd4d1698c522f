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

func TestProjectRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO official_projects").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO project_members").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	project := &models.OfficialProject{
		ProposalID: "p-1",
		Title:      "Vision",
		ApprovedBy: "head-1",
		Members:    []models.ProjectMember{{StudentID: strPtr("stu-1"), Role: models.MemberRoleStudent}},
	}
	require.NoError(t, repo.Create(context.Background(), tx, project))
	require.NoError(t, tx.Commit())
	assert.Equal(t, project.ID, project.Members[0].ProjectID)

	now := time.Now()
	mock.ExpectQuery("FROM official_projects WHERE proposal_id = \\$1").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "proposal_id", "title", "description", "division_id", "approved_by", "created_at"}).
			AddRow("proj-1", "p-1", "Vision", "", "div-1", "head-1", now))
	mock.ExpectQuery("FROM project_members WHERE project_id = \\$1").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "student_id", "lecturer_id", "role", "created_at"}).
			AddRow("pm-1", "proj-1", "stu-1", nil, "STUDENT", now).
			AddRow("pm-2", "proj-1", nil, "lec-1", "ADVISOR", now))

	found, err := repo.FindByProposal(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", found.ID)
	assert.Len(t, found.Members, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
