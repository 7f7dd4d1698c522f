package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/internal/service"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
	"github.com/noah-isme/capstone-api/pkg/response"
)

type recommendationService interface {
	Generate(ctx context.Context, req dto.RecommendationRequest) (*dto.RecommendationResponse, error)
	Get(ctx context.Context, id string) (*dto.RecommendationResponse, error)
	Export(ctx context.Context, id string, req dto.ExportRecommendationRequest) (*dto.ExportRecommendationResponse, error)
}

type exportOpener interface {
	Open(ctx context.Context, token string) (*service.ExportFile, error)
}

type allocationService interface {
	Create(ctx context.Context, actor *models.Identity, req dto.CreateAllocationRequest) (*dto.AllocationResult, error)
	Materialize(ctx context.Context, actor *models.Identity, req dto.MaterializeAllocationsRequest) ([]dto.AllocationResult, error)
	Review(ctx context.Context, actor *models.Identity, id string, req dto.ReviewAllocationRequest) (*dto.AllocationResult, error)
}

// AllocationHandler exposes recommendation runs, their exports and allocation writes.
type AllocationHandler struct {
	recommendations recommendationService
	exports         exportOpener
	allocations     allocationService
}

// NewAllocationHandler constructs the handler.
func NewAllocationHandler(recommendations recommendationService, exports exportOpener, allocations allocationService) *AllocationHandler {
	return &AllocationHandler{recommendations: recommendations, exports: exports, allocations: allocations}
}

// Recommend godoc
// @Summary Generate allocation recommendations
// @Tags Allocations
// @Accept json
// @Produce json
// @Param payload body dto.RecommendationRequest false "Scope filter"
// @Success 200 {object} response.Envelope
// @Router /allocations/recommendations [post]
func (h *AllocationHandler) Recommend(c *gin.Context) {
	var req dto.RecommendationRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req) {
			return
		}
	}
	req.ScopeFilter = strings.ToUpper(strings.TrimSpace(req.ScopeFilter))
	result, err := h.recommendations.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// GetRecommendation godoc
// @Summary Fetch a stored recommendation run
// @Tags Allocations
// @Produce json
// @Param id path string true "Recommendation ID"
// @Success 200 {object} response.Envelope
// @Router /allocations/recommendations/{id} [get]
func (h *AllocationHandler) GetRecommendation(c *gin.Context) {
	result, err := h.recommendations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// ExportRecommendation godoc
// @Summary Export a recommendation run
// @Tags Allocations
// @Accept json
// @Produce json
// @Param id path string true "Recommendation ID"
// @Param payload body dto.ExportRecommendationRequest true "Export format"
// @Success 201 {object} response.Envelope
// @Router /allocations/recommendations/{id}/export [post]
func (h *AllocationHandler) ExportRecommendation(c *gin.Context) {
	var req dto.ExportRecommendationRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	link, err := h.recommendations.Export(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// DownloadExport godoc
// @Summary Download an exported recommendation
// @Tags Allocations
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Router /allocations/exports/{token} [get]
func (h *AllocationHandler) DownloadExport(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are not configured"))
		return
	}
	file, err := h.exports.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Body.Close() //nolint:errcheck

	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, -1, file.ContentType, file.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=\"%s\"", file.Filename),
	})
}

// Create godoc
// @Summary Allocate a student to a lecturer
// @Tags Allocations
// @Accept json
// @Produce json
// @Param payload body dto.CreateAllocationRequest true "Allocation payload"
// @Success 201 {object} response.Envelope
// @Router /allocations [post]
func (h *AllocationHandler) Create(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.CreateAllocationRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.allocations.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Materialize godoc
// @Summary Persist selected recommendations as approved allocations
// @Tags Allocations
// @Accept json
// @Produce json
// @Param payload body dto.MaterializeAllocationsRequest true "Selected pairings"
// @Success 201 {object} response.Envelope
// @Router /allocations/materialize [post]
func (h *AllocationHandler) Materialize(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.MaterializeAllocationsRequest
	if !bindJSON(c, &req) {
		return
	}
	results, err := h.allocations.Materialize(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, results, nil, map[string]interface{}{"count": len(results)})
}

// Review godoc
// @Summary Approve or reject a pending allocation
// @Tags Allocations
// @Accept json
// @Produce json
// @Param id path string true "Allocation ID"
// @Param payload body dto.ReviewAllocationRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /allocations/{id}/review [patch]
func (h *AllocationHandler) Review(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.ReviewAllocationRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	result, err := h.allocations.Review(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
