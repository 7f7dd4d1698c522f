package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/internal/repository"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

type proposalStorage interface {
	FindByID(ctx context.Context, id string) (*models.Proposal, error)
	ListMembers(ctx context.Context, proposalID string) ([]models.ProposalMember, error)
	GetAuthContexts(ctx context.Context, ids []string) (map[string]*models.ProposalAuthContext, error)
	List(ctx context.Context, filter models.ProposalFilter) ([]models.Proposal, error)
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Proposal, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, update repository.StatusUpdate) error
	UpdateContent(ctx context.Context, id, title, description string, expected, next models.ProposalStatus) error
	MarkSideEffect(ctx context.Context, id string, effect models.SideEffect, cause string) error
	ClearSideEffect(ctx context.Context, id string) error
	ResolveSideEffect(ctx context.Context, exec sqlx.ExtContext, id string, effect models.SideEffect) error
	ListPendingSideEffects(ctx context.Context, limit int) ([]models.Proposal, error)
}

type outlineStore interface {
	FindByProposal(ctx context.Context, proposalID string) (*models.Outline, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, outline *models.Outline) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, proposalID string, status models.OutlineStatus) error
}

type commentLog interface {
	Append(ctx context.Context, comment *models.ProposalComment) error
	ListByProposal(ctx context.Context, proposalID string) ([]models.ProposalComment, error)
}

type projectFinder interface {
	FindByProposal(ctx context.Context, proposalID string) (*models.OfficialProject, error)
}

// proposalDB runs single statements and opens transactions. *sqlx.DB satisfies it.
type proposalDB interface {
	sqlx.ExtContext
	txProvider
}

type projectMaterializer interface {
	Materialize(ctx context.Context, proposalID, approverID string) (*models.OfficialProject, bool, error)
}

// ProposalService drives the proposal lifecycle for students, advisors, division heads and deans.
type ProposalService struct {
	proposals    proposalStorage
	outlines     outlineStore
	comments     commentLog
	projects     projectFinder
	materializer projectMaterializer
	db           proposalDB
	metrics      *MetricsService
	validate     *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewProposalService wires proposal dependencies.
func NewProposalService(
	proposals proposalStorage,
	outlines outlineStore,
	comments commentLog,
	projects projectFinder,
	materializer projectMaterializer,
	db proposalDB,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ProposalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProposalService{
		proposals:    proposals,
		outlines:     outlines,
		comments:     comments,
		projects:     projects,
		materializer: materializer,
		db:           db,
		metrics:      metrics,
		validate:     validate,
		logger:       logger,
		now:          time.Now,
	}
}

// Get returns the proposal with members, outline and project when the actor may see it.
func (s *ProposalService) Get(ctx context.Context, actor *models.Identity, id string) (*dto.ProposalDetail, error) {
	authCtx, err := s.authContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, authCtx) {
		return nil, appErrors.ErrForbidden
	}
	detail := &dto.ProposalDetail{Proposal: authCtx.Proposal, Members: authCtx.Members}
	if detail.Members == nil {
		detail.Members = []models.ProposalMember{}
	}
	outline, err := s.outlines.FindByProposal(ctx, id)
	switch {
	case err == nil:
		detail.Outline = outline
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Internal(err, "failed to load outline")
	}
	if authCtx.Proposal.OfficialProjectID != nil {
		project, err := s.projects.FindByProposal(ctx, id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to load official project")
		}
		detail.Project = project
	}
	return detail, nil
}

// ListForActor returns the proposals visible to the actor.
func (s *ProposalService) ListForActor(ctx context.Context, actor *models.Identity, query dto.ProposalQuery) ([]models.Proposal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid proposal query")
	}
	filter := models.ProposalFilter{Limit: query.Limit, Offset: query.Offset}
	for _, raw := range query.Status {
		for _, part := range strings.Split(raw, ",") {
			status := models.ProposalStatus(strings.ToUpper(strings.TrimSpace(part)))
			if status == "" {
				continue
			}
			if !status.Valid() {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown proposal status %q", part))
			}
			filter.Status = append(filter.Status, status)
		}
	}
	switch {
	case actor.HasRole(models.RoleAdmin):
	case actor.HasRole(models.RoleDivisionHead) && actor.DivisionID != "":
		filter.DivisionID = actor.DivisionID
	case actor.HasRole(models.RoleDean) && actor.FacultyID != "":
		filter.FacultyID = actor.FacultyID
	case actor.HasRole(models.RoleLecturer):
		filter.AdvisorID = actor.UserID
	case actor.HasRole(models.RoleStudent):
		filter.StudentID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}
	proposals, err := s.proposals.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list proposals")
	}
	if proposals == nil {
		proposals = []models.Proposal{}
	}
	return proposals, nil
}

// ListComments returns the review log, most recent first.
func (s *ProposalService) ListComments(ctx context.Context, actor *models.Identity, id string) ([]models.ProposalComment, error) {
	authCtx, err := s.authContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, authCtx) {
		return nil, appErrors.ErrForbidden
	}
	comments, err := s.comments.ListByProposal(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load comments")
	}
	if comments == nil {
		comments = []models.ProposalComment{}
	}
	return comments, nil
}

// UpdateContent lets the student edit the topic and optionally submit it to the advisor.
func (s *ProposalService) UpdateContent(ctx context.Context, actor *models.Identity, id string, req dto.UpdateProposalRequest) (*models.Proposal, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid proposal payload")
	}
	authCtx, err := s.authContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isStudentMember(actor, authCtx) {
		return nil, appErrors.Clone(appErrors.ErrForbiddenTransition, "only the proposal's student may edit it")
	}
	proposal := authCtx.Proposal
	if !editableTopicStatuses[proposal.Status] {
		return nil, appErrors.WithDetails(appErrors.ErrImmutableState, "topic can no longer be edited", map[string]string{
			"currentStatus": string(proposal.Status),
		})
	}

	title := proposal.Title
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
	}
	description := proposal.Description
	if req.Description != nil {
		description = *req.Description
	}
	next := proposal.Status
	if req.Submit {
		if title == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "title is required before submitting")
		}
		next = models.ProposalStatusTopicPendingAdvisor
	}
	if err := s.proposals.UpdateContent(ctx, id, title, description, proposal.Status, next); err != nil {
		return nil, s.statusWriteError(err, "failed to update proposal")
	}
	if next != proposal.Status {
		s.appendComment(ctx, id, actor.UserID, "", proposal.Status, next)
	}
	proposal.Title = title
	proposal.Description = description
	proposal.Status = next
	proposal.UpdatedAt = s.now().UTC()
	return &proposal, nil
}

// SubmitOutline stores the student's outline and moves the proposal into outline review.
func (s *ProposalService) SubmitOutline(ctx context.Context, actor *models.Identity, id string, req dto.SubmitOutlineRequest) (*dto.ProposalDetail, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid outline payload")
	}
	authCtx, err := s.authContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isStudentMember(actor, authCtx) {
		return nil, appErrors.Clone(appErrors.ErrForbiddenTransition, "only the proposal's student may submit the outline")
	}
	proposal := authCtx.Proposal
	if !outlineSubmissionStatuses[proposal.Status] {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidTransition, "outline cannot be submitted in the current status", map[string]string{
			"currentStatus": string(proposal.Status),
		})
	}

	outline := &models.Outline{
		ProposalID:      id,
		Introduction:    req.Introduction,
		Objectives:      req.Objectives,
		Methodology:     req.Methodology,
		ExpectedResults: req.ExpectedResults,
		FileRef:         req.FileRef,
		Status:          models.OutlineStatusPendingReview,
	}
	next := proposal.Status
	switch {
	case req.Draft:
		outline.Status = models.OutlineStatusDraft
		if proposal.Status == models.ProposalStatusTopicApproved {
			next = models.ProposalStatusOutlinePendingSubmit
		}
	case proposal.Status != models.ProposalStatusOutlineApproved:
		next = models.ProposalStatusOutlinePendingAdvisor
	}
	// The status write doubles as the compare-and-set guard for the outline, and a fresh
	// outline supersedes any outline sync still waiting for retry.
	err = inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.proposals.UpdateStatus(ctx, tx, repository.StatusUpdate{ID: id, Expected: proposal.Status, Next: next}); err != nil {
			return s.statusWriteError(err, "failed to advance proposal")
		}
		if err := s.outlines.Upsert(ctx, tx, outline); err != nil {
			return appErrors.Internal(err, "failed to save outline")
		}
		if err := s.proposals.ResolveSideEffect(ctx, tx, id, models.SideEffectSyncOutline); err != nil {
			return appErrors.Internal(err, "failed to save outline")
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Internal(err, "failed to save outline")
	}
	if proposal.PendingSideEffect != nil && *proposal.PendingSideEffect == models.SideEffectSyncOutline {
		proposal.PendingSideEffect = nil
		proposal.SideEffectError = nil
	}
	if next != proposal.Status {
		s.appendComment(ctx, id, actor.UserID, "", proposal.Status, next)
		proposal.Status = next
		proposal.UpdatedAt = s.now().UTC()
	}
	return &dto.ProposalDetail{Proposal: proposal, Members: authCtx.Members, Outline: outline}, nil
}

// AdvisorReview applies the advisor's decision on the topic or the outline.
func (s *ProposalService) AdvisorReview(ctx context.Context, actor *models.Identity, id string, req dto.ReviewProposalRequest) (*dto.TransitionResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	authCtx, err := s.authContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authorizeReviewer(actor, ReviewerAdvisor, authCtx) {
		s.recordTransition(ReviewerAdvisor, req.Status, appErrors.ErrForbiddenTransition)
		return nil, appErrors.Clone(appErrors.ErrForbiddenTransition, "only the proposal's advisor may review it")
	}
	return s.transition(ctx, actor, ReviewerAdvisor, authCtx, models.ProposalStatus(strings.ToUpper(req.Status)), req.Comment)
}

// HeadReview applies a division head or dean decision on a proposal awaiting the head.
func (s *ProposalService) HeadReview(ctx context.Context, actor *models.Identity, id string, req dto.ReviewProposalRequest) (*dto.TransitionResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	authCtx, err := s.authContext(ctx, id)
	if err != nil {
		return nil, err
	}
	role, ok := headRoleFor(actor, authCtx)
	if !ok {
		s.recordTransition(ReviewerDivisionHead, req.Status, appErrors.ErrForbiddenTransition)
		return nil, appErrors.Clone(appErrors.ErrForbiddenTransition, "advisor is outside the caller's division or faculty")
	}
	return s.transition(ctx, actor, role, authCtx, models.ProposalStatus(strings.ToUpper(req.Status)), req.Comment)
}

// RetrySideEffect re-runs a recorded follow-up action on demand.
func (s *ProposalService) RetrySideEffect(ctx context.Context, actor *models.Identity, id string) (*dto.TransitionResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasRole(models.RoleAdmin) {
		return nil, appErrors.ErrForbidden
	}
	proposal, err := s.proposals.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Internal(err, "failed to load proposal")
	}
	if proposal.PendingSideEffect == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "proposal has no pending side effect")
	}
	result := &dto.TransitionResult{}
	project, err := s.RetryPending(ctx, proposal)
	if err != nil {
		result.SideEffectError = err.Error()
	} else {
		proposal.PendingSideEffect = nil
		proposal.SideEffectError = nil
	}
	if project != nil {
		proposal.OfficialProjectID = &project.ID
	}
	result.Proposal = *proposal
	result.Project = project
	return result, nil
}

// RetryPending re-runs the side effect recorded on proposal. The row is read again first, so a
// flag that was resolved or replaced since proposal was listed is left alone.
func (s *ProposalService) RetryPending(ctx context.Context, proposal *models.Proposal) (*models.OfficialProject, error) {
	if proposal == nil || proposal.PendingSideEffect == nil {
		return nil, nil
	}
	effect := *proposal.PendingSideEffect
	current, err := s.proposals.FindByID(ctx, proposal.ID)
	if err != nil {
		return nil, fmt.Errorf("reload proposal: %w", err)
	}
	if current.PendingSideEffect == nil || *current.PendingSideEffect != effect {
		s.logger.Debug("side effect already resolved", zap.String("proposal_id", proposal.ID), zap.String("side_effect", string(effect)))
		return nil, nil
	}

	var project *models.OfficialProject
	switch effect {
	case models.SideEffectSyncOutline:
		err = s.retryOutlineSync(ctx, proposal.ID)
	case models.SideEffectMaterializeProject:
		approver, lookupErr := s.headApprover(ctx, proposal.ID)
		if lookupErr != nil {
			err = lookupErr
			break
		}
		project, _, err = s.materializer.Materialize(ctx, proposal.ID, approver)
		if err == nil {
			if clearErr := s.proposals.ClearSideEffect(ctx, proposal.ID); clearErr != nil {
				s.logger.Error("failed to clear side effect", zap.String("proposal_id", proposal.ID), zap.Error(clearErr))
			}
		}
	default:
		err = fmt.Errorf("unknown side effect %s", effect)
	}
	s.recordSideEffect(effect, err)
	if err != nil {
		s.logger.Warn("side effect retry failed", zap.String("proposal_id", proposal.ID), zap.String("side_effect", string(effect)), zap.Error(err))
		if markErr := s.proposals.MarkSideEffect(ctx, proposal.ID, effect, err.Error()); markErr != nil {
			s.logger.Error("failed to record side effect", zap.String("proposal_id", proposal.ID), zap.Error(markErr))
		}
		return project, err
	}
	s.logger.Info("side effect retried", zap.String("proposal_id", proposal.ID), zap.String("side_effect", string(effect)))
	return project, nil
}

// retryOutlineSync applies the outline status implied by the proposal's current status while
// holding the proposal row, then clears the flag in the same transaction. A status that no
// longer implies an outline status means a newer submission replaced the outline.
func (s *ProposalService) retryOutlineSync(ctx context.Context, id string) error {
	return inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		current, err := s.proposals.LockForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("lock proposal: %w", err)
		}
		if current.PendingSideEffect == nil || *current.PendingSideEffect != models.SideEffectSyncOutline {
			return nil
		}
		if status, ok := outlineStatusForStored(current.Status); ok {
			if err := s.outlines.UpdateStatus(ctx, tx, id, status); err != nil {
				return err
			}
		}
		return s.proposals.ResolveSideEffect(ctx, tx, id, models.SideEffectSyncOutline)
	})
}

// PendingSideEffects lists proposals flagged for retry, oldest first.
func (s *ProposalService) PendingSideEffects(ctx context.Context, limit int) ([]models.Proposal, error) {
	return s.proposals.ListPendingSideEffects(ctx, limit)
}

// transition moves one authorized proposal to target. The status write commits first; follow-up
// actions run afterwards and are flagged for retry when they fail.
func (s *ProposalService) transition(ctx context.Context, actor *models.Identity, role ReviewerRole, authCtx *models.ProposalAuthContext, target models.ProposalStatus, comment string) (*dto.TransitionResult, error) {
	proposal := authCtx.Proposal
	from := proposal.Status
	if !target.Valid() || !transitionsFor(role).allows(from, target) {
		err := appErrors.WithDetails(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move proposal from %s to %s", from, target),
			dto.BulkInvalidItem{ID: proposal.ID, Title: proposal.Title, CurrentStatus: string(from)})
		s.recordTransition(role, string(target), err)
		return nil, err
	}

	next := storedStatus(target)
	update := repository.StatusUpdate{ID: proposal.ID, Expected: from, Next: next}
	now := s.now().UTC()
	if target == models.ProposalStatusOutlineApproved {
		update.ApprovedBy = &actor.UserID
		update.ApprovedAt = &now
	}
	if err := s.proposals.UpdateStatus(ctx, s.db, update); err != nil {
		appErr := s.statusWriteError(err, "failed to update proposal status")
		s.recordTransition(role, string(target), appErr)
		return nil, appErr
	}
	s.recordTransition(role, string(target), nil)
	proposal.Status = next
	proposal.UpdatedAt = now
	if update.ApprovedBy != nil {
		approver := actor.UserID
		proposal.ApprovedBy = &approver
		proposal.ApprovedAt = &now
	}
	s.appendComment(ctx, proposal.ID, actor.UserID, comment, from, next)

	result := &dto.TransitionResult{Proposal: proposal}
	effect, ok := sideEffectFor(target)
	if !ok {
		return result, nil
	}
	var err error
	switch effect {
	case models.SideEffectSyncOutline:
		status, _ := outlineStatusFor(target)
		err = s.outlines.UpdateStatus(ctx, s.db, proposal.ID, status)
		if err == nil && proposal.PendingSideEffect != nil && *proposal.PendingSideEffect == models.SideEffectSyncOutline {
			if err = s.proposals.ResolveSideEffect(ctx, s.db, proposal.ID, models.SideEffectSyncOutline); err == nil {
				result.Proposal.PendingSideEffect = nil
				result.Proposal.SideEffectError = nil
			}
		}
	case models.SideEffectMaterializeProject:
		var project *models.OfficialProject
		project, _, err = s.materializer.Materialize(ctx, proposal.ID, actor.UserID)
		if err == nil && project != nil {
			result.Project = project
			result.Proposal.OfficialProjectID = &project.ID
		}
	}
	s.recordSideEffect(effect, err)
	if err != nil {
		s.logger.Error("proposal side effect failed",
			zap.String("proposal_id", proposal.ID),
			zap.String("side_effect", string(effect)),
			zap.Error(err),
		)
		cause := err.Error()
		if markErr := s.proposals.MarkSideEffect(ctx, proposal.ID, effect, cause); markErr != nil {
			s.logger.Error("failed to record side effect", zap.String("proposal_id", proposal.ID), zap.Error(markErr))
		}
		result.SideEffectError = cause
		result.Proposal.PendingSideEffect = &effect
		result.Proposal.SideEffectError = &cause
	}
	return result, nil
}

// headApprover finds who moved the proposal to APPROVED_BY_HEAD from the review log.
func (s *ProposalService) headApprover(ctx context.Context, proposalID string) (string, error) {
	comments, err := s.comments.ListByProposal(ctx, proposalID)
	if err != nil {
		return "", fmt.Errorf("load review log: %w", err)
	}
	for _, comment := range comments {
		if comment.StatusTo != nil && *comment.StatusTo == models.ProposalStatusApprovedByHead {
			return comment.AuthorID, nil
		}
	}
	return "", fmt.Errorf("no head approval recorded for proposal %s", proposalID)
}

func (s *ProposalService) authContext(ctx context.Context, id string) (*models.ProposalAuthContext, error) {
	contexts, err := s.proposals.GetAuthContexts(ctx, []string{id})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load proposal")
	}
	authCtx, ok := contexts[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
	}
	return authCtx, nil
}

// appendComment records the transition in the review log. The status change has already
// committed, so a failure here is only logged.
func (s *ProposalService) appendComment(ctx context.Context, proposalID, authorID, body string, from, to models.ProposalStatus) {
	entry := &models.ProposalComment{
		ProposalID: proposalID,
		AuthorID:   authorID,
		Body:       strings.TrimSpace(body),
		StatusFrom: &from,
		StatusTo:   &to,
	}
	if err := s.comments.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to append proposal comment", zap.String("proposal_id", proposalID), zap.Error(err))
	}
}

func (s *ProposalService) statusWriteError(err error, message string) error {
	if errors.Is(err, repository.ErrStaleStatus) {
		return appErrors.Clone(appErrors.ErrConflict, "proposal status changed concurrently")
	}
	return appErrors.Internal(err, message)
}

func (s *ProposalService) recordTransition(role ReviewerRole, target string, err error) {
	if s.metrics != nil {
		s.metrics.RecordTransition(string(role), target, err)
	}
}

func (s *ProposalService) recordSideEffect(effect models.SideEffect, err error) {
	if s.metrics != nil {
		s.metrics.RecordSideEffect(string(effect), err)
	}
}
