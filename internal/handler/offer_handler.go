package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
	"github.com/noah-isme/capstone-api/pkg/response"
)

type offerService interface {
	Create(ctx context.Context, actor *models.Identity, req dto.CreateOfferRequest) (*models.LecturerOffer, error)
	List(ctx context.Context, actor *models.Identity, query dto.OfferQuery) ([]models.LecturerOffer, error)
	Update(ctx context.Context, actor *models.Identity, id string, req dto.UpdateOfferRequest) (*models.LecturerOffer, error)
	UpdateStatus(ctx context.Context, actor *models.Identity, id string, req dto.UpdateOfferStatusRequest) (*models.LecturerOffer, error)
}

// OfferHandler exposes lecturer supervision offers.
type OfferHandler struct {
	service offerService
}

// NewOfferHandler constructs the handler.
func NewOfferHandler(service offerService) *OfferHandler {
	return &OfferHandler{service: service}
}

// Create godoc
// @Summary Publish a supervision offer
// @Tags Offers
// @Accept json
// @Produce json
// @Param payload body dto.CreateOfferRequest true "Offer payload"
// @Success 201 {object} response.Envelope
// @Router /offers [post]
func (h *OfferHandler) Create(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.CreateOfferRequest
	if !bindJSON(c, &req) {
		return
	}
	offer, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, offer)
}

// List godoc
// @Summary List supervision offers
// @Tags Offers
// @Produce json
// @Param lecturerId query string false "Lecturer ID"
// @Param topicPoolId query string false "Topic pool ID"
// @Param status query string false "Offer status"
// @Param activeOnly query bool false "Only active offers"
// @Success 200 {object} response.Envelope
// @Router /offers [get]
func (h *OfferHandler) List(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var query dto.OfferQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	offers, err := h.service.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offers, nil)
}

// Update godoc
// @Summary Update an offer
// @Tags Offers
// @Accept json
// @Produce json
// @Param id path string true "Offer ID"
// @Param payload body dto.UpdateOfferRequest true "Offer payload"
// @Success 200 {object} response.Envelope
// @Router /offers/{id} [patch]
func (h *OfferHandler) Update(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.UpdateOfferRequest
	if !bindJSON(c, &req) {
		return
	}
	offer, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, offer)
}

// UpdateStatus godoc
// @Summary Review an offer
// @Tags Offers
// @Accept json
// @Produce json
// @Param id path string true "Offer ID"
// @Param payload body dto.UpdateOfferStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /offers/{id}/status [patch]
func (h *OfferHandler) UpdateStatus(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.UpdateOfferStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	offer, err := h.service.UpdateStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, offer)
}
