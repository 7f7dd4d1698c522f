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

const offerColumns = `id, lecturer_id, topic_pool_id, topic_title, capacity, current_capacity, status, active, deleted_at, created_at, updated_at`

// OfferRepository persists lecturer supervision offers.
type OfferRepository struct {
	db *sqlx.DB
}

// NewOfferRepository constructs the repository.
func NewOfferRepository(db *sqlx.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// Create inserts a new offer awaiting administrator approval.
func (r *OfferRepository) Create(ctx context.Context, offer *models.LecturerOffer) error {
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	if offer.Status == "" {
		offer.Status = models.OfferStatusPending
	}
	now := time.Now().UTC()
	offer.CreatedAt = now
	offer.UpdatedAt = now
	const query = `INSERT INTO lecturer_offers (` + offerColumns + `)
	VALUES (:id, :lecturer_id, :topic_pool_id, :topic_title, :capacity, :current_capacity, :status, :active, :deleted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, offer); err != nil {
		return fmt.Errorf("create offer: %w", translateError(err))
	}
	return nil
}

// FindByID returns a non-deleted offer.
func (r *OfferRepository) FindByID(ctx context.Context, id string) (*models.LecturerOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM lecturer_offers WHERE id = $1 AND deleted_at IS NULL`
	var offer models.LecturerOffer
	if err := r.db.GetContext(ctx, &offer, query, id); err != nil {
		return nil, err
	}
	return &offer, nil
}

// List returns offers matching the filter ordered by lecturer.
func (r *OfferRepository) List(ctx context.Context, filter models.OfferFilter) ([]models.LecturerOffer, error) {
	conditions := []string{"deleted_at IS NULL"}
	args := []interface{}{}
	if filter.LecturerID != "" {
		args = append(args, filter.LecturerID)
		conditions = append(conditions, fmt.Sprintf("lecturer_id = $%d", len(args)))
	}
	if filter.TopicPoolID != "" {
		args = append(args, filter.TopicPoolID)
		conditions = append(conditions, fmt.Sprintf("topic_pool_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "active = TRUE")
	}
	query := `SELECT ` + offerColumns + ` FROM lecturer_offers WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY lecturer_id ASC, created_at ASC`
	var offers []models.LecturerOffer
	if err := r.db.SelectContext(ctx, &offers, query, args...); err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	return offers, nil
}

// Update rewrites the owner-editable fields. Capacity may never drop below the seats already taken.
func (r *OfferRepository) Update(ctx context.Context, offer *models.LecturerOffer) error {
	offer.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lecturer_offers
	SET topic_pool_id = :topic_pool_id, topic_title = :topic_title, capacity = :capacity, active = :active, updated_at = :updated_at
	WHERE id = :id AND deleted_at IS NULL AND current_capacity <= :capacity`
	result, err := r.db.NamedExecContext(ctx, query, offer)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	if rows == 0 {
		return ErrCapacityExhausted
	}
	return nil
}

// UpdateStatus sets the administrative review status.
func (r *OfferRepository) UpdateStatus(ctx context.Context, id string, status models.OfferStatus) error {
	const query = `UPDATE lecturer_offers SET status = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update offer status: %w", err)
	}
	return expectOneRow(result)
}

// ListAvailableCandidates returns approved active offers with free seats joined with the lecturer's scope.
func (r *OfferRepository) ListAvailableCandidates(ctx context.Context) ([]models.OfferCandidate, error) {
	const query = `SELECT o.id, o.lecturer_id, o.topic_pool_id, o.topic_title, o.capacity, o.current_capacity, o.status,
       o.active, o.deleted_at, o.created_at, o.updated_at,
       COALESCE(s.division_id, '') AS lecturer_division_id, COALESCE(s.faculty_id, '') AS lecturer_faculty_id
	FROM lecturer_offers o
	LEFT JOIN lecturer_scopes s ON s.lecturer_id = o.lecturer_id
	WHERE o.status = 'APPROVED' AND o.active = TRUE AND o.deleted_at IS NULL AND o.current_capacity < o.capacity
	ORDER BY o.lecturer_id ASC, o.created_at ASC, o.id ASC`
	var candidates []models.OfferCandidate
	if err := r.db.SelectContext(ctx, &candidates, query); err != nil {
		return nil, fmt.Errorf("list available offers: %w", err)
	}
	return candidates, nil
}

// FindAvailableForLecturer returns the lecturer's first approved active offer that still has a free seat.
func (r *OfferRepository) FindAvailableForLecturer(ctx context.Context, exec sqlx.ExtContext, lecturerID string) (*models.LecturerOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM lecturer_offers
	WHERE lecturer_id = $1 AND status = 'APPROVED' AND active = TRUE AND deleted_at IS NULL AND current_capacity < capacity
	ORDER BY created_at ASC, id ASC LIMIT 1`
	var offer models.LecturerOffer
	if err := sqlx.GetContext(ctx, exec, &offer, query, lecturerID); err != nil {
		return nil, err
	}
	return &offer, nil
}

// IncrementCapacity takes one seat on the offer. It only succeeds while a seat is free, so
// concurrent approvals can never push current_capacity past capacity.
func (r *OfferRepository) IncrementCapacity(ctx context.Context, exec sqlx.ExtContext, offerID string) error {
	const query = `UPDATE lecturer_offers SET current_capacity = current_capacity + 1, updated_at = $2
	WHERE id = $1 AND status = 'APPROVED' AND active = TRUE AND deleted_at IS NULL AND current_capacity < capacity`
	result, err := exec.ExecContext(ctx, query, offerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment offer capacity: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment offer capacity: %w", err)
	}
	if rows == 0 {
		return ErrCapacityExhausted
	}
	return nil
}
