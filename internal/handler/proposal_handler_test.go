package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/middleware"
	"github.com/noah-isme/capstone-api/internal/models"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

type proposalServiceMock struct {
	bulkReq    dto.BulkTransitionRequest
	bulkResult *dto.BulkTransitionResult
	bulkErr    error
	reviewed   string
	reviewErr  error
	listQuery  dto.ProposalQuery
}

func (m *proposalServiceMock) Get(ctx context.Context, actor *models.Identity, id string) (*dto.ProposalDetail, error) {
	return &dto.ProposalDetail{Proposal: models.Proposal{ID: id}}, nil
}

func (m *proposalServiceMock) ListForActor(ctx context.Context, actor *models.Identity, query dto.ProposalQuery) ([]models.Proposal, error) {
	m.listQuery = query
	return []models.Proposal{{ID: "prop-1"}}, nil
}

func (m *proposalServiceMock) ListComments(ctx context.Context, actor *models.Identity, id string) ([]models.ProposalComment, error) {
	return []models.ProposalComment{}, nil
}

func (m *proposalServiceMock) UpdateContent(ctx context.Context, actor *models.Identity, id string, req dto.UpdateProposalRequest) (*models.Proposal, error) {
	return &models.Proposal{ID: id}, nil
}

func (m *proposalServiceMock) SubmitOutline(ctx context.Context, actor *models.Identity, id string, req dto.SubmitOutlineRequest) (*dto.ProposalDetail, error) {
	return &dto.ProposalDetail{Proposal: models.Proposal{ID: id}}, nil
}

func (m *proposalServiceMock) AdvisorReview(ctx context.Context, actor *models.Identity, id string, req dto.ReviewProposalRequest) (*dto.TransitionResult, error) {
	m.reviewed = "advisor:" + req.Status
	if m.reviewErr != nil {
		return nil, m.reviewErr
	}
	return &dto.TransitionResult{Proposal: models.Proposal{ID: id, Status: models.ProposalStatus(req.Status)}}, nil
}

func (m *proposalServiceMock) HeadReview(ctx context.Context, actor *models.Identity, id string, req dto.ReviewProposalRequest) (*dto.TransitionResult, error) {
	m.reviewed = "head:" + req.Status
	return &dto.TransitionResult{Proposal: models.Proposal{ID: id, Status: models.ProposalStatus(req.Status)}}, nil
}

func (m *proposalServiceMock) BulkTransition(ctx context.Context, actor *models.Identity, req dto.BulkTransitionRequest) (*dto.BulkTransitionResult, error) {
	m.bulkReq = req
	return m.bulkResult, m.bulkErr
}

func (m *proposalServiceMock) RetrySideEffect(ctx context.Context, actor *models.Identity, id string) (*dto.TransitionResult, error) {
	return &dto.TransitionResult{Proposal: models.Proposal{ID: id}}, nil
}

func newJSONContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withIdentity(c *gin.Context, roles ...models.ActorRole) {
	c.Set(middleware.ContextIdentityKey, &models.Identity{UserID: "user-1", Roles: roles, DivisionID: "div-1"})
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestProposalHandlerBulkTransitionForbiddenDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &proposalServiceMock{bulkErr: appErrors.WithDetails(appErrors.ErrForbidden, "not yours", []string{"prop-3"})}
	handler := NewProposalHandler(svc)

	payload, _ := json.Marshal(dto.BulkTransitionRequest{ProposalIDs: []string{"prop-1", "prop-3"}, Status: "APPROVED_BY_HEAD", Role: "DIVISION_HEAD"})
	c, w := newJSONContext(http.MethodPost, "/proposals/bulk-transition", payload)
	withIdentity(c, models.RoleDivisionHead)

	handler.BulkTransition(c)

	require.Equal(t, http.StatusForbidden, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
	assert.JSONEq(t, `["prop-3"]`, string(env.Error.Details))
	assert.Equal(t, []string{"prop-1", "prop-3"}, svc.bulkReq.ProposalIDs)
}

func TestProposalHandlerBulkTransitionSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &proposalServiceMock{bulkResult: &dto.BulkTransitionResult{Processed: 1, Total: 1}}
	handler := NewProposalHandler(svc)

	payload, _ := json.Marshal(dto.BulkTransitionRequest{ProposalIDs: []string{"prop-1"}, Status: "TOPIC_APPROVED", Role: "ADVISOR"})
	c, w := newJSONContext(http.MethodPost, "/proposals/bulk-transition", payload)
	withIdentity(c, models.RoleLecturer)

	handler.BulkTransition(c)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Contains(t, string(env.Data), `"processed":1`)
}

func TestProposalHandlerRequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewProposalHandler(&proposalServiceMock{})

	c, w := newJSONContext(http.MethodGet, "/proposals/prop-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "prop-1"}}
	handler.Get(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProposalHandlerReviewRoutesToRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &proposalServiceMock{}
	handler := NewProposalHandler(svc)

	c, w := newJSONContext(http.MethodPost, "/proposals/prop-1/head-review", []byte(`{"status":"APPROVED_BY_HEAD"}`))
	c.Params = gin.Params{{Key: "id", Value: "prop-1"}}
	withIdentity(c, models.RoleDivisionHead)
	handler.HeadReview(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "head:APPROVED_BY_HEAD", svc.reviewed)

	svc.reviewErr = appErrors.Clone(appErrors.ErrInvalidTransition, "nope")
	c, w = newJSONContext(http.MethodPost, "/proposals/prop-1/advisor-review", []byte(`{"status":"TOPIC_APPROVED"}`))
	c.Params = gin.Params{{Key: "id", Value: "prop-1"}}
	withIdentity(c, models.RoleLecturer)
	handler.AdvisorReview(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "advisor:TOPIC_APPROVED", svc.reviewed)
}

func TestProposalHandlerListBindsStatusQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &proposalServiceMock{}
	handler := NewProposalHandler(svc)

	c, w := newJSONContext(http.MethodGet, "/proposals?status=PENDING_HEAD&status=APPROVED_BY_HEAD&limit=5", nil)
	withIdentity(c, models.RoleAdmin)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"PENDING_HEAD", "APPROVED_BY_HEAD"}, svc.listQuery.Status)
	assert.Equal(t, 5, svc.listQuery.Limit)
}

func TestProposalHandlerRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewProposalHandler(&proposalServiceMock{})

	c, w := newJSONContext(http.MethodPatch, "/proposals/prop-1", []byte(`{"title":`))
	withIdentity(c, models.RoleStudent)
	handler.Update(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
