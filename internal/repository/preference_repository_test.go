package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capstone-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func strPtr(v string) *string { return &v }

func TestPreferenceRepositoryCreateTranslatesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	mock.ExpectExec("INSERT INTO student_preferences").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.StudentPreference{StudentID: "stu-1", Priority: 1, LecturerID: strPtr("lec-1")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUniqueViolation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepositoryCreateDefaultsPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	mock.ExpectExec("INSERT INTO student_preferences").
		WillReturnResult(sqlmock.NewResult(1, 1))

	pref := &models.StudentPreference{StudentID: "stu-1", Priority: 2, TopicPoolID: strPtr("pool-1")}
	require.NoError(t, repo.Create(context.Background(), pref))
	assert.NotEmpty(t, pref.ID)
	assert.Equal(t, models.PreferenceStatusPending, pref.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepositoryUpdateRequiresPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	mock.ExpectExec("UPDATE student_preferences").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.StudentPreference{ID: "pref-1", Priority: 1})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	mock.ExpectExec("UPDATE student_preferences SET deleted_at").
		WithArgs("pref-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), "pref-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepositoryListPendingCandidates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "priority", "lecturer_id", "topic_pool_id", "topic_title", "status", "deleted_at", "created_at", "updated_at", "student_division_id", "student_faculty_id"}).
		AddRow("pref-1", "stu-1", 1, "lec-1", nil, nil, "PENDING", nil, now, now, "div-1", "fac-1").
		AddRow("pref-2", "stu-1", 2, nil, "pool-1", "AI", "PENDING", nil, now, now, "div-1", "fac-1")
	mock.ExpectQuery("FROM student_preferences p\\s+LEFT JOIN student_scopes").WillReturnRows(rows)

	candidates, err := repo.ListPendingCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "lec-1", *candidates[0].LecturerID)
	assert.Nil(t, candidates[0].TopicPoolID)
	assert.Equal(t, "div-1", candidates[1].StudentDivisionID)
	assert.Equal(t, "pool-1", *candidates[1].TopicPoolID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepositoryResolveForStudentUsesExecutor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE student_preferences").
		WithArgs("stu-1", "lec-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.ResolveForStudent(context.Background(), tx, "stu-1", "lec-1", nil))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}
