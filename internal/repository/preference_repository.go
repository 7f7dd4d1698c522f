package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/capstone-api/internal/models"
)

const preferenceColumns = `id, student_id, priority, lecturer_id, topic_pool_id, topic_title, status, deleted_at, created_at, updated_at`

// PreferenceRepository persists student preferences.
type PreferenceRepository struct {
	db *sqlx.DB
}

// NewPreferenceRepository constructs the repository.
func NewPreferenceRepository(db *sqlx.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Create inserts a pending preference.
func (r *PreferenceRepository) Create(ctx context.Context, pref *models.StudentPreference) error {
	if pref.ID == "" {
		pref.ID = uuid.NewString()
	}
	if pref.Status == "" {
		pref.Status = models.PreferenceStatusPending
	}
	now := time.Now().UTC()
	pref.CreatedAt = now
	pref.UpdatedAt = now
	const query = `INSERT INTO student_preferences (` + preferenceColumns + `)
	VALUES (:id, :student_id, :priority, :lecturer_id, :topic_pool_id, :topic_title, :status, :deleted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pref); err != nil {
		return fmt.Errorf("create preference: %w", translateError(err))
	}
	return nil
}

// FindByID returns a non-deleted preference.
func (r *PreferenceRepository) FindByID(ctx context.Context, id string) (*models.StudentPreference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM student_preferences WHERE id = $1 AND deleted_at IS NULL`
	var pref models.StudentPreference
	if err := r.db.GetContext(ctx, &pref, query, id); err != nil {
		return nil, err
	}
	return &pref, nil
}

// ListByStudent returns the student's non-deleted preferences ordered by priority.
func (r *PreferenceRepository) ListByStudent(ctx context.Context, studentID string) ([]models.StudentPreference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM student_preferences WHERE student_id = $1 AND deleted_at IS NULL ORDER BY priority ASC`
	var prefs []models.StudentPreference
	if err := r.db.SelectContext(ctx, &prefs, query, studentID); err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	return prefs, nil
}

// PriorityTaken reports whether another live preference of the student uses the priority.
func (r *PreferenceRepository) PriorityTaken(ctx context.Context, studentID string, priority int, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM student_preferences
	WHERE student_id = $1 AND priority = $2 AND deleted_at IS NULL AND id <> $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, priority, excludeID); err != nil {
		return false, fmt.Errorf("check preference priority: %w", err)
	}
	return exists, nil
}

// Update rewrites the editable fields while the preference is still pending.
func (r *PreferenceRepository) Update(ctx context.Context, pref *models.StudentPreference) error {
	pref.UpdatedAt = time.Now().UTC()
	const query = `UPDATE student_preferences
	SET priority = :priority, lecturer_id = :lecturer_id, topic_pool_id = :topic_pool_id, topic_title = :topic_title, updated_at = :updated_at
	WHERE id = :id AND status = 'PENDING' AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, pref)
	if err != nil {
		return fmt.Errorf("update preference: %w", translateError(err))
	}
	return expectOneRow(result)
}

// SoftDelete flags a pending preference as deleted.
func (r *PreferenceRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE student_preferences SET deleted_at = $2, updated_at = $2
	WHERE id = $1 AND status = 'PENDING' AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	return expectOneRow(result)
}

// ListPendingCandidates returns every pending preference joined with the student's scope.
func (r *PreferenceRepository) ListPendingCandidates(ctx context.Context) ([]models.PreferenceCandidate, error) {
	const query = `SELECT p.id, p.student_id, p.priority, p.lecturer_id, p.topic_pool_id, p.topic_title, p.status,
       p.deleted_at, p.created_at, p.updated_at,
       COALESCE(s.division_id, '') AS student_division_id, COALESCE(s.faculty_id, '') AS student_faculty_id
	FROM student_preferences p
	LEFT JOIN student_scopes s ON s.student_id = p.student_id
	WHERE p.status = 'PENDING' AND p.deleted_at IS NULL
	ORDER BY p.student_id ASC, p.priority ASC`
	var candidates []models.PreferenceCandidate
	if err := r.db.SelectContext(ctx, &candidates, query); err != nil {
		return nil, fmt.Errorf("list pending preferences: %w", err)
	}
	return candidates, nil
}

// ResolveForStudent closes the student's pending preferences once an allocation is approved.
// Preferences naming the allocated lecturer, or only the allocated topic pool, are approved; the rest are rejected.
func (r *PreferenceRepository) ResolveForStudent(ctx context.Context, exec sqlx.ExtContext, studentID, lecturerID string, topicPoolID *string) error {
	const query = `UPDATE student_preferences
	SET status = CASE
	        WHEN lecturer_id = $2 THEN 'APPROVED'
	        WHEN lecturer_id IS NULL AND topic_pool_id = $3 THEN 'APPROVED'
	        ELSE 'REJECTED' END,
	    updated_at = $4
	WHERE student_id = $1 AND status = 'PENDING' AND deleted_at IS NULL`
	if _, err := exec.ExecContext(ctx, query, studentID, lecturerID, topicPoolID, time.Now().UTC()); err != nil {
		return fmt.Errorf("resolve preferences: %w", err)
	}
	return nil
}

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
