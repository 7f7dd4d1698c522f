package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

// BulkTransition applies one target status to many proposals in the caller's reviewer role.
//
// Authorization is all-or-nothing: one proposal outside the caller's reach rejects the batch.
// Proposals whose status does not allow the target are skipped and listed under Invalid; the
// call only fails on them when nothing else is left to process. Valid proposals are updated one
// by one, so partial success is reported per item.
func (s *ProposalService) BulkTransition(ctx context.Context, actor *models.Identity, req dto.BulkTransitionRequest) (*dto.BulkTransitionResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk transition payload")
	}
	role, ok := ParseReviewerRole(req.Role)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown reviewer role")
	}
	if !actor.HasRole(requiredActorRole(role)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller does not hold the requested reviewer role")
	}
	target := models.ProposalStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown target status")
	}

	ids := uniqueIDs(req.ProposalIDs)
	contexts, err := s.proposals.GetAuthContexts(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load proposals")
	}
	var missing []string
	for _, id := range ids {
		if _, ok := contexts[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrNotFound, "proposals not found", missing)
	}

	var forbidden []string
	for _, id := range ids {
		if !authorizeReviewer(actor, role, contexts[id]) {
			forbidden = append(forbidden, id)
		}
	}
	if len(forbidden) > 0 {
		s.logger.Warn("bulk transition rejected",
			zap.String("actor", actor.UserID),
			zap.String("role", string(role)),
			zap.Strings("forbidden_ids", forbidden),
		)
		return nil, appErrors.WithDetails(appErrors.ErrForbidden, "caller may not transition every requested proposal", forbidden)
	}

	table := transitionsFor(role)
	result := &dto.BulkTransitionResult{
		Total:   len(ids),
		Items:   []dto.BulkTransitionItem{},
		Invalid: []dto.BulkInvalidItem{},
	}
	var valid []*models.ProposalAuthContext
	for _, id := range ids {
		authCtx := contexts[id]
		if table.allows(authCtx.Proposal.Status, target) {
			valid = append(valid, authCtx)
			continue
		}
		result.Invalid = append(result.Invalid, dto.BulkInvalidItem{
			ID:            authCtx.Proposal.ID,
			Title:         authCtx.Proposal.Title,
			CurrentStatus: string(authCtx.Proposal.Status),
		})
	}
	if len(valid) == 0 {
		if s.metrics != nil {
			s.metrics.RecordBulkResult(0, 0, len(result.Invalid))
		}
		return nil, appErrors.WithDetails(appErrors.ErrInvalidTransition, "no requested proposal can move to "+string(target), result.Invalid)
	}

	failed := 0
	for _, authCtx := range valid {
		item := dto.BulkTransitionItem{
			ID:             authCtx.Proposal.ID,
			Title:          authCtx.Proposal.Title,
			PreviousStatus: string(authCtx.Proposal.Status),
			NewStatus:      string(authCtx.Proposal.Status),
		}
		outcome, err := s.transition(ctx, actor, role, authCtx, target, req.Comment)
		if err != nil {
			failed++
			item.Error = appErrors.FromError(err).Message
		} else {
			item.Success = true
			item.NewStatus = string(outcome.Proposal.Status)
			item.SideEffectError = outcome.SideEffectError
			result.Processed++
		}
		result.Items = append(result.Items, item)
	}

	if s.metrics != nil {
		s.metrics.RecordBulkResult(result.Processed, failed, len(result.Invalid))
	}
	s.logger.Info("bulk transition completed",
		zap.String("actor", actor.UserID),
		zap.String("role", string(role)),
		zap.String("target", string(target)),
		zap.Int("processed", result.Processed),
		zap.Int("failed", failed),
		zap.Int("invalid", len(result.Invalid)),
	)
	return result, nil
}

func requiredActorRole(role ReviewerRole) models.ActorRole {
	switch role {
	case ReviewerDivisionHead:
		return models.RoleDivisionHead
	case ReviewerDean:
		return models.RoleDean
	}
	return models.RoleLecturer
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
