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

func TestProposalCommentRepositoryAppendAndList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProposalCommentRepository(db)

	mock.ExpectExec("INSERT INTO proposal_comments").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Append(context.Background(), &models.ProposalComment{ProposalID: "p-1", AuthorID: "lec-1", Body: "fix scope"}))

	later := time.Now()
	earlier := later.Add(-time.Hour)
	mock.ExpectQuery("FROM proposal_comments WHERE proposal_id = \\$1 ORDER BY created_at DESC").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "proposal_id", "author_id", "body", "status_from", "status_to", "created_at"}).
			AddRow("c-2", "p-1", "lec-1", "fix scope", "TOPIC_PENDING_ADVISOR", "TOPIC_REQUESTED_CHANGES", later).
			AddRow("c-1", "p-1", "stu-1", "submitted", nil, nil, earlier))

	comments, err := repo.ListByProposal(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "c-2", comments[0].ID)
	assert.Equal(t, models.ProposalStatusTopicRequestedChanges, *comments[0].StatusTo)
	assert.NoError(t, mock.ExpectationsWereMet())
}
