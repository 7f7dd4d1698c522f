package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/capstone-api/internal/models"
)

const allocationColumns = `id, student_id, lecturer_id, offer_id, topic_title, status, created_by, allocated_at, deleted_at`

// AllocationRepository persists student to lecturer allocations.
type AllocationRepository struct {
	db *sqlx.DB
}

// NewAllocationRepository constructs the repository.
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// Create inserts the allocation using exec, which may be a transaction.
func (r *AllocationRepository) Create(ctx context.Context, exec sqlx.ExtContext, allocation *models.Allocation) error {
	if allocation.ID == "" {
		allocation.ID = uuid.NewString()
	}
	if allocation.AllocatedAt.IsZero() {
		allocation.AllocatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO allocations (` + allocationColumns + `)
	VALUES (:id, :student_id, :lecturer_id, :offer_id, :topic_title, :status, :created_by, :allocated_at, :deleted_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, allocation); err != nil {
		return fmt.Errorf("create allocation: %w", translateError(err))
	}
	return nil
}

// FindByID returns a non-deleted allocation.
func (r *AllocationRepository) FindByID(ctx context.Context, id string) (*models.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations WHERE id = $1 AND deleted_at IS NULL`
	var allocation models.Allocation
	if err := r.db.GetContext(ctx, &allocation, query, id); err != nil {
		return nil, err
	}
	return &allocation, nil
}

// ActiveStudentIDs returns which of the given students already hold a non-deleted allocation.
func (r *AllocationRepository) ActiveStudentIDs(ctx context.Context, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT DISTINCT student_id FROM allocations WHERE student_id = ANY($1) AND deleted_at IS NULL ORDER BY student_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list allocated students: %w", err)
	}
	return ids, nil
}

// UpdateStatus moves the allocation from expected to next. A concurrent change yields ErrStaleStatus.
// A rejected allocation is soft-deleted so the student can be allocated again.
func (r *AllocationRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, expected, next models.AllocationStatus) error {
	const query = `UPDATE allocations SET status = $3,
		deleted_at = CASE WHEN $3 = 'REJECTED' THEN NOW() ELSE deleted_at END
	WHERE id = $1 AND status = $2 AND deleted_at IS NULL`
	result, err := exec.ExecContext(ctx, query, id, expected, string(next))
	if err != nil {
		return fmt.Errorf("update allocation status: %w", err)
	}
	return expectAllocationRow(result)
}

// Approve marks a pending allocation approved and records the offer whose seat it took.
func (r *AllocationRepository) Approve(ctx context.Context, exec sqlx.ExtContext, id, offerID string) error {
	const query = `UPDATE allocations SET status = 'APPROVED', offer_id = $2
	WHERE id = $1 AND status = 'PENDING' AND deleted_at IS NULL`
	result, err := exec.ExecContext(ctx, query, id, offerID)
	if err != nil {
		return fmt.Errorf("approve allocation: %w", err)
	}
	return expectAllocationRow(result)
}

func expectAllocationRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("allocation rows affected: %w", err)
	}
	if rows == 0 {
		return ErrStaleStatus
	}
	return nil
}
