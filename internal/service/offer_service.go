package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/internal/repository"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

type offerStore interface {
	Create(ctx context.Context, offer *models.LecturerOffer) error
	FindByID(ctx context.Context, id string) (*models.LecturerOffer, error)
	List(ctx context.Context, filter models.OfferFilter) ([]models.LecturerOffer, error)
	Update(ctx context.Context, offer *models.LecturerOffer) error
	UpdateStatus(ctx context.Context, id string, status models.OfferStatus) error
}

// OfferService manages lecturer supervision offers and their administrative review.
type OfferService struct {
	repo     offerStore
	validate *validator.Validate
	logger   *zap.Logger
}

// NewOfferService constructs the service.
func NewOfferService(repo offerStore, validate *validator.Validate, logger *zap.Logger) *OfferService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfferService{repo: repo, validate: validate, logger: logger}
}

// Create declares capacity for the calling lecturer. New offers wait for an administrator.
func (s *OfferService) Create(ctx context.Context, actor *models.Identity, req dto.CreateOfferRequest) (*models.LecturerOffer, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasRole(models.RoleLecturer) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only lecturers publish offers")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid offer payload")
	}
	offer := &models.LecturerOffer{
		LecturerID:  actor.UserID,
		TopicPoolID: req.TopicPoolID,
		TopicTitle:  req.TopicTitle,
		Capacity:    req.Capacity,
		Status:      models.OfferStatusPending,
		Active:      true,
	}
	if err := s.repo.Create(ctx, offer); err != nil {
		return nil, appErrors.Internal(err, "failed to create offer")
	}
	s.logger.Info("offer created", zap.String("offer_id", offer.ID), zap.String("lecturer_id", offer.LecturerID), zap.Int("capacity", offer.Capacity))
	return offer, nil
}

// List returns offers. Students only ever see approved, active offers.
func (s *OfferService) List(ctx context.Context, actor *models.Identity, query dto.OfferQuery) ([]models.LecturerOffer, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid offer query")
	}
	filter := models.OfferFilter{
		LecturerID:  query.LecturerID,
		TopicPoolID: query.TopicPoolID,
		ActiveOnly:  query.ActiveOnly,
	}
	if query.Status != "" {
		filter.Status = []models.OfferStatus{models.OfferStatus(query.Status)}
	}
	if !actor.HasAnyRole(models.RoleAdmin, models.RoleLecturer, models.RoleDivisionHead, models.RoleDean) {
		filter.Status = []models.OfferStatus{models.OfferStatusApproved}
		filter.ActiveOnly = true
	}
	offers, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list offers")
	}
	if offers == nil {
		offers = []models.LecturerOffer{}
	}
	return offers, nil
}

// Update edits an offer. Capacity may not drop below the seats already taken.
func (s *OfferService) Update(ctx context.Context, actor *models.Identity, id string, req dto.UpdateOfferRequest) (*models.LecturerOffer, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid offer payload")
	}
	offer, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.HasRole(models.RoleAdmin) && offer.LecturerID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if req.TopicPoolID != nil {
		offer.TopicPoolID = req.TopicPoolID
	}
	if req.TopicTitle != nil {
		offer.TopicTitle = req.TopicTitle
	}
	if req.Capacity != nil {
		if *req.Capacity < offer.CurrentCapacity {
			return nil, capacityBelowTaken(offer)
		}
		offer.Capacity = *req.Capacity
	}
	if req.Active != nil {
		offer.Active = *req.Active
	}
	if err := s.repo.Update(ctx, offer); err != nil {
		if errors.Is(err, repository.ErrCapacityExhausted) {
			return nil, capacityBelowTaken(offer)
		}
		return nil, appErrors.Internal(err, "failed to update offer")
	}
	return offer, nil
}

// UpdateStatus records the administrator's review of an offer.
func (s *OfferService) UpdateStatus(ctx context.Context, actor *models.Identity, id string, req dto.UpdateOfferStatusRequest) (*models.LecturerOffer, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasRole(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators review offers")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid offer status")
	}
	offer, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	status := models.OfferStatus(req.Status)
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "offer not found")
		}
		return nil, appErrors.Internal(err, "failed to update offer status")
	}
	offer.Status = status
	s.logger.Info("offer reviewed", zap.String("offer_id", id), zap.String("status", req.Status), zap.String("admin", actor.UserID))
	return offer, nil
}

func (s *OfferService) load(ctx context.Context, id string) (*models.LecturerOffer, error) {
	offer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "offer not found")
		}
		return nil, appErrors.Internal(err, "failed to load offer")
	}
	return offer, nil
}

func capacityBelowTaken(offer *models.LecturerOffer) error {
	return appErrors.WithDetails(appErrors.ErrCapacityExceeded, "capacity cannot be lower than the seats already taken", map[string]int{
		"currentCapacity": offer.CurrentCapacity,
	})
}
