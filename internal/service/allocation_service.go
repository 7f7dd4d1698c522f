package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/internal/repository"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type allocationStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, allocation *models.Allocation) error
	FindByID(ctx context.Context, id string) (*models.Allocation, error)
	ActiveStudentIDs(ctx context.Context, studentIDs []string) ([]string, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, expected, next models.AllocationStatus) error
	Approve(ctx context.Context, exec sqlx.ExtContext, id, offerID string) error
}

type allocationOfferStore interface {
	FindByID(ctx context.Context, id string) (*models.LecturerOffer, error)
	FindAvailableForLecturer(ctx context.Context, exec sqlx.ExtContext, lecturerID string) (*models.LecturerOffer, error)
	IncrementCapacity(ctx context.Context, exec sqlx.ExtContext, offerID string) error
}

type preferenceResolver interface {
	ResolveForStudent(ctx context.Context, exec sqlx.ExtContext, studentID, lecturerID string, topicPoolID *string) error
}

type proposalCreator interface {
	Create(ctx context.Context, exec sqlx.ExtContext, proposal *models.Proposal, members []models.ProposalMember) error
}

// AllocationService creates allocations and cascades approval into capacity, preferences and proposals.
type AllocationService struct {
	allocations allocationStore
	offers      allocationOfferStore
	prefs       preferenceResolver
	proposals   proposalCreator
	tx          txProvider
	metrics     *MetricsService
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewAllocationService wires allocation dependencies.
func NewAllocationService(
	allocations allocationStore,
	offers allocationOfferStore,
	prefs preferenceResolver,
	proposals proposalCreator,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *AllocationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{
		allocations: allocations,
		offers:      offers,
		prefs:       prefs,
		proposals:   proposals,
		tx:          tx,
		metrics:     metrics,
		validate:    validate,
		logger:      logger,
	}
}

// Create records a single allocation. Lecturers may only allocate students to themselves.
func (s *AllocationService) Create(ctx context.Context, actor *models.Identity, req dto.CreateAllocationRequest) (*dto.AllocationResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid allocation payload")
	}
	switch {
	case actor.HasRole(models.RoleAdmin):
	case actor.HasRole(models.RoleLecturer):
		if req.LecturerID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "lecturers may only allocate students to themselves")
		}
	default:
		return nil, appErrors.ErrForbidden
	}
	if err := s.ensureUnallocated(ctx, []string{req.StudentID}); err != nil {
		return nil, err
	}

	allocation := &models.Allocation{
		StudentID:  req.StudentID,
		LecturerID: req.LecturerID,
		OfferID:    req.OfferID,
		TopicTitle: strings.TrimSpace(req.TopicTitle),
		Status:     models.AllocationStatusPending,
		CreatedBy:  actor.UserID,
	}

	result := &dto.AllocationResult{}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.allocations.Create(ctx, tx, allocation); err != nil {
			return err
		}
		if !req.Approve {
			return nil
		}
		proposal, err := s.approve(ctx, tx, allocation)
		if err != nil {
			return err
		}
		result.Proposal = proposal
		return nil
	})
	if err != nil {
		return nil, s.translate(err, allocation.StudentID, "failed to create allocation")
	}
	result.Allocation = *allocation
	s.recordAllocation(allocation)
	s.logger.Info("allocation created",
		zap.String("allocation_id", allocation.ID),
		zap.String("student_id", allocation.StudentID),
		zap.String("lecturer_id", allocation.LecturerID),
		zap.String("status", string(allocation.Status)),
	)
	return result, nil
}

// Materialize turns selected recommendation items into approved allocations in one transaction.
func (s *AllocationService) Materialize(ctx context.Context, actor *models.Identity, req dto.MaterializeAllocationsRequest) ([]dto.AllocationResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasRole(models.RoleAdmin) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid materialize payload")
	}

	seen := make(map[string]struct{}, len(req.Items))
	var repeated []string
	studentIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if _, dup := seen[item.StudentID]; dup {
			repeated = append(repeated, item.StudentID)
			continue
		}
		seen[item.StudentID] = struct{}{}
		studentIDs = append(studentIDs, item.StudentID)
	}
	if len(repeated) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrDuplicate, "students appear more than once in the batch", repeated)
	}
	if err := s.ensureUnallocated(ctx, studentIDs); err != nil {
		return nil, err
	}

	results := make([]dto.AllocationResult, 0, len(req.Items))
	current := ""
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, item := range req.Items {
			current = item.StudentID
			allocation := &models.Allocation{
				StudentID:  item.StudentID,
				LecturerID: item.LecturerID,
				OfferID:    item.OfferID,
				TopicTitle: strings.TrimSpace(item.TopicTitle),
				Status:     models.AllocationStatusPending,
				CreatedBy:  actor.UserID,
			}
			if err := s.allocations.Create(ctx, tx, allocation); err != nil {
				return err
			}
			proposal, err := s.approve(ctx, tx, allocation)
			if err != nil {
				return err
			}
			results = append(results, dto.AllocationResult{Allocation: *allocation, Proposal: proposal})
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err, current, "failed to materialize allocations")
	}
	for i := range results {
		s.recordAllocation(&results[i].Allocation)
	}
	s.logger.Info("allocations materialized", zap.Int("count", len(results)), zap.String("actor", actor.UserID))
	return results, nil
}

// Review approves or rejects a pending allocation.
func (s *AllocationService) Review(ctx context.Context, actor *models.Identity, id string, req dto.ReviewAllocationRequest) (*dto.AllocationResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	allocation, err := s.allocations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "allocation not found")
		}
		return nil, appErrors.Internal(err, "failed to load allocation")
	}
	if !actor.HasRole(models.RoleAdmin) && !(actor.HasRole(models.RoleLecturer) && allocation.LecturerID == actor.UserID) {
		return nil, appErrors.ErrForbidden
	}
	if allocation.Status != models.AllocationStatusPending {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidTransition, "allocation already reviewed", map[string]string{
			"currentStatus": string(allocation.Status),
		})
	}

	next := models.AllocationStatus(req.Status)
	result := &dto.AllocationResult{}
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if next == models.AllocationStatusRejected {
			return s.allocations.UpdateStatus(ctx, tx, allocation.ID, models.AllocationStatusPending, models.AllocationStatusRejected)
		}
		proposal, err := s.approve(ctx, tx, allocation)
		if err != nil {
			return err
		}
		result.Proposal = proposal
		return nil
	})
	if err != nil {
		return nil, s.translate(err, allocation.StudentID, "failed to review allocation")
	}
	allocation.Status = next
	result.Allocation = *allocation
	s.recordAllocation(allocation)
	return result, nil
}

// approve takes a seat on the lecturer's offer, marks the allocation approved, resolves the
// student's pending preferences and opens the first-stage proposal, all on tx.
func (s *AllocationService) approve(ctx context.Context, tx sqlx.ExtContext, allocation *models.Allocation) (*models.Proposal, error) {
	var offer *models.LecturerOffer
	var err error
	if allocation.OfferID != nil && *allocation.OfferID != "" {
		offer, err = s.offers.FindByID(ctx, *allocation.OfferID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "offer not found")
			}
			return nil, err
		}
		if offer.LecturerID != allocation.LecturerID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "offer belongs to a different lecturer")
		}
	} else {
		offer, err = s.offers.FindAvailableForLecturer(ctx, tx, allocation.LecturerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, repository.ErrCapacityExhausted
			}
			return nil, err
		}
	}
	if err := s.offers.IncrementCapacity(ctx, tx, offer.ID); err != nil {
		return nil, err
	}
	if err := s.allocations.Approve(ctx, tx, allocation.ID, offer.ID); err != nil {
		return nil, err
	}
	if err := s.prefs.ResolveForStudent(ctx, tx, allocation.StudentID, allocation.LecturerID, offer.TopicPoolID); err != nil {
		return nil, err
	}

	title := allocation.TopicTitle
	if title == "" && offer.TopicTitle != nil {
		title = *offer.TopicTitle
	}
	studentID := allocation.StudentID
	lecturerID := allocation.LecturerID
	proposal := &models.Proposal{
		AllocationID: allocation.ID,
		Title:        title,
		Status:       models.ProposalStatusTopicSubmissionPending,
	}
	members := []models.ProposalMember{
		{StudentID: &studentID, Role: models.MemberRoleStudent},
		{LecturerID: &lecturerID, Role: models.MemberRoleAdvisor},
	}
	if err := s.proposals.Create(ctx, tx, proposal, members); err != nil {
		return nil, err
	}

	offerID := offer.ID
	allocation.OfferID = &offerID
	allocation.Status = models.AllocationStatusApproved
	if allocation.TopicTitle == "" {
		allocation.TopicTitle = title
	}
	return proposal, nil
}

func (s *AllocationService) ensureUnallocated(ctx context.Context, studentIDs []string) error {
	taken, err := s.allocations.ActiveStudentIDs(ctx, studentIDs)
	if err != nil {
		return appErrors.Internal(err, "failed to check existing allocations")
	}
	if len(taken) > 0 {
		return appErrors.WithDetails(appErrors.ErrDuplicate, "students already hold an allocation", taken)
	}
	return nil
}

func (s *AllocationService) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return inTx(ctx, s.tx, fn)
}

// inTx runs fn in a transaction that commits only when fn succeeds.
func inTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *AllocationService) translate(err error, studentID, message string) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrCapacityExhausted):
		return appErrors.WithDetails(appErrors.ErrCapacityExceeded, "lecturer has no remaining capacity", []string{studentID})
	case errors.Is(err, repository.ErrUniqueViolation):
		return appErrors.WithDetails(appErrors.ErrDuplicate, fmt.Sprintf("student %s already holds an allocation", studentID), []string{studentID})
	case errors.Is(err, repository.ErrStaleStatus):
		return appErrors.Clone(appErrors.ErrConflict, "allocation was reviewed concurrently")
	default:
		s.logger.Error(message, zap.String("student_id", studentID), zap.Error(err))
		return appErrors.Internal(err, message)
	}
}

func (s *AllocationService) recordAllocation(allocation *models.Allocation) {
	if s.metrics != nil {
		s.metrics.RecordAllocation(string(allocation.Status))
	}
}
