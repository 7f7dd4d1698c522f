package repository

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capstone-api/internal/models"
)

func TestOutlineRepositoryUpsertAndStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOutlineRepository(db)

	mock.ExpectExec("INSERT INTO outlines").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE outlines SET status").
		WithArgs("p-1", "APPROVED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outlines SET status").
		WithArgs("p-2", "APPROVED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	outline := &models.Outline{ProposalID: "p-1", Introduction: "intro", Status: models.OutlineStatusPendingReview}
	require.NoError(t, repo.Upsert(context.Background(), db, outline))
	assert.NotEmpty(t, outline.ID)

	require.NoError(t, repo.UpdateStatus(context.Background(), db, "p-1", models.OutlineStatusApproved))
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), db, "p-2", models.OutlineStatusApproved), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
