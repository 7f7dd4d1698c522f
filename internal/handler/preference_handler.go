package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/pkg/response"
)

type preferenceService interface {
	Create(ctx context.Context, actor *models.Identity, req dto.CreatePreferenceRequest) (*models.StudentPreference, error)
	ListMine(ctx context.Context, actor *models.Identity) ([]models.StudentPreference, error)
	Update(ctx context.Context, actor *models.Identity, id string, req dto.UpdatePreferenceRequest) (*models.StudentPreference, error)
	Delete(ctx context.Context, actor *models.Identity, id string) error
}

// PreferenceHandler exposes the student's ranked supervisor choices.
type PreferenceHandler struct {
	service preferenceService
}

// NewPreferenceHandler constructs the handler.
func NewPreferenceHandler(service preferenceService) *PreferenceHandler {
	return &PreferenceHandler{service: service}
}

// Create godoc
// @Summary Register a supervisor preference
// @Tags Preferences
// @Accept json
// @Produce json
// @Param payload body dto.CreatePreferenceRequest true "Preference payload"
// @Success 201 {object} response.Envelope
// @Router /preferences [post]
func (h *PreferenceHandler) Create(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.CreatePreferenceRequest
	if !bindJSON(c, &req) {
		return
	}
	pref, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pref)
}

// ListMine godoc
// @Summary List the caller's preferences
// @Tags Preferences
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /preferences/me [get]
func (h *PreferenceHandler) ListMine(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	prefs, err := h.service.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prefs, nil)
}

// Update godoc
// @Summary Update a pending preference
// @Tags Preferences
// @Accept json
// @Produce json
// @Param id path string true "Preference ID"
// @Param payload body dto.UpdatePreferenceRequest true "Preference payload"
// @Success 200 {object} response.Envelope
// @Router /preferences/{id} [put]
func (h *PreferenceHandler) Update(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.UpdatePreferenceRequest
	if !bindJSON(c, &req) {
		return
	}
	pref, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pref)
}

// Delete godoc
// @Summary Delete a pending preference
// @Tags Preferences
// @Param id path string true "Preference ID"
// @Success 204
// @Router /preferences/{id} [delete]
func (h *PreferenceHandler) Delete(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
