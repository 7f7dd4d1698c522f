package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

type offerStoreStub struct {
	items  map[string]*models.LecturerOffer
	filter models.OfferFilter
}

func (s *offerStoreStub) Create(ctx context.Context, offer *models.LecturerOffer) error {
	offer.ID = "offer-new"
	cp := *offer
	s.items[offer.ID] = &cp
	return nil
}

func (s *offerStoreStub) FindByID(ctx context.Context, id string) (*models.LecturerOffer, error) {
	offer, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *offer
	return &cp, nil
}

func (s *offerStoreStub) List(ctx context.Context, filter models.OfferFilter) ([]models.LecturerOffer, error) {
	s.filter = filter
	return nil, nil
}

func (s *offerStoreStub) Update(ctx context.Context, offer *models.LecturerOffer) error {
	cp := *offer
	s.items[offer.ID] = &cp
	return nil
}

func (s *offerStoreStub) UpdateStatus(ctx context.Context, id string, status models.OfferStatus) error {
	offer, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	offer.Status = status
	return nil
}

func TestOfferServiceCreatePending(t *testing.T) {
	repo := &offerStoreStub{items: map[string]*models.LecturerOffer{}}
	svc := NewOfferService(repo, validator.New(), zap.NewNop())

	offer, err := svc.Create(context.Background(), advisorX, dto.CreateOfferRequest{Capacity: 3, TopicTitle: ptr("Compilers")})
	require.NoError(t, err)
	assert.Equal(t, "lec-x", offer.LecturerID)
	assert.Equal(t, models.OfferStatusPending, offer.Status)
	assert.True(t, offer.Active)

	_, err = svc.Create(context.Background(), studentA, dto.CreateOfferRequest{Capacity: 3})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Create(context.Background(), advisorX, dto.CreateOfferRequest{Capacity: 0})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestOfferServiceStudentsSeeApprovedOnly(t *testing.T) {
	repo := &offerStoreStub{items: map[string]*models.LecturerOffer{}}
	svc := NewOfferService(repo, validator.New(), zap.NewNop())

	offers, err := svc.List(context.Background(), studentA, dto.OfferQuery{Status: "PENDING"})
	require.NoError(t, err)
	assert.NotNil(t, offers)
	assert.Equal(t, []models.OfferStatus{models.OfferStatusApproved}, repo.filter.Status)
	assert.True(t, repo.filter.ActiveOnly)

	_, err = svc.List(context.Background(), adminActor, dto.OfferQuery{Status: "PENDING"})
	require.NoError(t, err)
	assert.Equal(t, []models.OfferStatus{models.OfferStatusPending}, repo.filter.Status)
	assert.False(t, repo.filter.ActiveOnly)
}

func TestOfferServiceCapacityBelowTaken(t *testing.T) {
	repo := &offerStoreStub{items: map[string]*models.LecturerOffer{
		"o-x": {ID: "o-x", LecturerID: "lec-x", Capacity: 3, CurrentCapacity: 2, Status: models.OfferStatusApproved, Active: true},
	}}
	svc := NewOfferService(repo, validator.New(), zap.NewNop())
	one := 1

	_, err := svc.Update(context.Background(), advisorX, "o-x", dto.UpdateOfferRequest{Capacity: &one})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErr.Code)
	assert.Equal(t, map[string]int{"currentCapacity": 2}, appErr.Details)

	stranger := &models.Identity{UserID: "lec-y", Roles: []models.ActorRole{models.RoleLecturer}}
	five := 5
	_, err = svc.Update(context.Background(), stranger, "o-x", dto.UpdateOfferRequest{Capacity: &five})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	updated, err := svc.Update(context.Background(), adminActor, "o-x", dto.UpdateOfferRequest{Capacity: &five})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Capacity)
}

func TestOfferServiceUpdateStatusAdminOnly(t *testing.T) {
	repo := &offerStoreStub{items: map[string]*models.LecturerOffer{
		"o-x": {ID: "o-x", LecturerID: "lec-x", Capacity: 3, Status: models.OfferStatusPending, Active: true},
	}}
	svc := NewOfferService(repo, validator.New(), zap.NewNop())

	_, err := svc.UpdateStatus(context.Background(), advisorX, "o-x", dto.UpdateOfferStatusRequest{Status: "APPROVED"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	offer, err := svc.UpdateStatus(context.Background(), adminActor, "o-x", dto.UpdateOfferStatusRequest{Status: "APPROVED"})
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusApproved, offer.Status)

	_, err = svc.UpdateStatus(context.Background(), adminActor, "o-missing", dto.UpdateOfferStatusRequest{Status: "REJECTED"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
