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

type proposalService interface {
	Get(ctx context.Context, actor *models.Identity, id string) (*dto.ProposalDetail, error)
	ListForActor(ctx context.Context, actor *models.Identity, query dto.ProposalQuery) ([]models.Proposal, error)
	ListComments(ctx context.Context, actor *models.Identity, id string) ([]models.ProposalComment, error)
	UpdateContent(ctx context.Context, actor *models.Identity, id string, req dto.UpdateProposalRequest) (*models.Proposal, error)
	SubmitOutline(ctx context.Context, actor *models.Identity, id string, req dto.SubmitOutlineRequest) (*dto.ProposalDetail, error)
	AdvisorReview(ctx context.Context, actor *models.Identity, id string, req dto.ReviewProposalRequest) (*dto.TransitionResult, error)
	HeadReview(ctx context.Context, actor *models.Identity, id string, req dto.ReviewProposalRequest) (*dto.TransitionResult, error)
	BulkTransition(ctx context.Context, actor *models.Identity, req dto.BulkTransitionRequest) (*dto.BulkTransitionResult, error)
	RetrySideEffect(ctx context.Context, actor *models.Identity, id string) (*dto.TransitionResult, error)
}

// ProposalHandler exposes the proposal review workflow.
type ProposalHandler struct {
	service proposalService
}

// NewProposalHandler constructs the handler.
func NewProposalHandler(service proposalService) *ProposalHandler {
	return &ProposalHandler{service: service}
}

// List godoc
// @Summary List proposals visible to the caller
// @Tags Proposals
// @Produce json
// @Param status query []string false "Status filter, repeatable or comma separated"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /proposals [get]
func (h *ProposalHandler) List(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var query dto.ProposalQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	proposals, err := h.service.ListForActor(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposals, &response.Page{Limit: query.Limit, Offset: query.Offset, Count: len(proposals)})
}

// Get godoc
// @Summary Proposal detail
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Router /proposals/{id} [get]
func (h *ProposalHandler) Get(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Comments godoc
// @Summary Proposal review log, most recent first
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Router /proposals/{id}/comments [get]
func (h *ProposalHandler) Comments(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	comments, err := h.service.ListComments(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, comments)
}

// Update godoc
// @Summary Edit or submit the topic
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param payload body dto.UpdateProposalRequest true "Topic payload"
// @Success 200 {object} response.Envelope
// @Router /proposals/{id} [patch]
func (h *ProposalHandler) Update(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.UpdateProposalRequest
	if !bindJSON(c, &req) {
		return
	}
	proposal, err := h.service.UpdateContent(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, proposal)
}

// SubmitOutline godoc
// @Summary Save or submit the outline
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param payload body dto.SubmitOutlineRequest true "Outline payload"
// @Success 200 {object} response.Envelope
// @Router /proposals/{id}/outline [put]
func (h *ProposalHandler) SubmitOutline(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.SubmitOutlineRequest
	if !bindJSON(c, &req) {
		return
	}
	detail, err := h.service.SubmitOutline(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// AdvisorReview godoc
// @Summary Advisor decision on topic or outline
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param payload body dto.ReviewProposalRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /proposals/{id}/advisor-review [post]
func (h *ProposalHandler) AdvisorReview(c *gin.Context) {
	h.review(c, h.service.AdvisorReview)
}

// HeadReview godoc
// @Summary Division head or dean decision
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param payload body dto.ReviewProposalRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /proposals/{id}/head-review [post]
func (h *ProposalHandler) HeadReview(c *gin.Context) {
	h.review(c, h.service.HeadReview)
}

type reviewFunc func(ctx context.Context, actor *models.Identity, id string, req dto.ReviewProposalRequest) (*dto.TransitionResult, error)

func (h *ProposalHandler) review(c *gin.Context, fn reviewFunc) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.ReviewProposalRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := fn(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// BulkTransition godoc
// @Summary Apply one decision to many proposals
// @Tags Proposals
// @Accept json
// @Produce json
// @Param payload body dto.BulkTransitionRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /proposals/bulk-transition [post]
func (h *ProposalHandler) BulkTransition(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	var req dto.BulkTransitionRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.BulkTransition(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// RetrySideEffect godoc
// @Summary Re-run a failed follow-up action
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Router /proposals/{id}/retry-side-effect [post]
func (h *ProposalHandler) RetrySideEffect(c *gin.Context) {
	actor := requireIdentity(c)
	if actor == nil {
		return
	}
	result, err := h.service.RetrySideEffect(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
