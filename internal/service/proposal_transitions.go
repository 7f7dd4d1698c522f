package service

import (
	"strings"

	"github.com/noah-isme/capstone-api/internal/models"
)

// ReviewerRole is the capacity in which a faculty member moves a proposal.
type ReviewerRole string

const (
	ReviewerAdvisor      ReviewerRole = "ADVISOR"
	ReviewerDivisionHead ReviewerRole = "DIVISION_HEAD"
	ReviewerDean         ReviewerRole = "DEAN"
)

// ParseReviewerRole maps request values onto a reviewer role. LECTURER acts as the advisor.
func ParseReviewerRole(raw string) (ReviewerRole, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ADVISOR", string(models.RoleLecturer):
		return ReviewerAdvisor, true
	case string(ReviewerDivisionHead):
		return ReviewerDivisionHead, true
	case string(ReviewerDean):
		return ReviewerDean, true
	}
	return "", false
}

type transitionTable map[models.ProposalStatus][]models.ProposalStatus

var advisorTransitions = transitionTable{
	models.ProposalStatusTopicPendingAdvisor: {
		models.ProposalStatusTopicApproved,
		models.ProposalStatusTopicRequestedChanges,
	},
	models.ProposalStatusOutlinePendingAdvisor: {
		models.ProposalStatusOutlineApproved,
		models.ProposalStatusOutlineRequestedChanges,
		models.ProposalStatusOutlineRejected,
	},
	models.ProposalStatusRequestedChangesHead: {
		models.ProposalStatusPendingHead,
	},
}

var headTransitions = transitionTable{
	models.ProposalStatusPendingHead: {
		models.ProposalStatusApprovedByHead,
		models.ProposalStatusRequestedChangesHead,
		models.ProposalStatusRejectedByHead,
	},
}

// editableTopicStatuses are the states in which a student may still change title and description.
var editableTopicStatuses = map[models.ProposalStatus]bool{
	models.ProposalStatusTopicSubmissionPending: true,
	models.ProposalStatusTopicRequestedChanges:  true,
}

// outlineSubmissionStatuses are the states that accept an outline from the student.
var outlineSubmissionStatuses = map[models.ProposalStatus]bool{
	models.ProposalStatusTopicApproved:           true,
	models.ProposalStatusOutlinePendingSubmit:    true,
	models.ProposalStatusOutlineRequestedChanges: true,
	models.ProposalStatusOutlineApproved:         true,
}

func (t transitionTable) allows(from, to models.ProposalStatus) bool {
	for _, target := range t[from] {
		if target == to {
			return true
		}
	}
	return false
}

func transitionsFor(role ReviewerRole) transitionTable {
	if role == ReviewerAdvisor {
		return advisorTransitions
	}
	return headTransitions
}

// storedStatus is the status actually written for a requested target. An approved outline
// goes straight to the head queue.
func storedStatus(target models.ProposalStatus) models.ProposalStatus {
	if target == models.ProposalStatusOutlineApproved {
		return models.ProposalStatusPendingHead
	}
	return target
}

// outlineStatusFor returns the outline status implied by an advisor outline decision.
func outlineStatusFor(target models.ProposalStatus) (models.OutlineStatus, bool) {
	switch target {
	case models.ProposalStatusOutlineApproved:
		return models.OutlineStatusApproved, true
	case models.ProposalStatusOutlineRequestedChanges:
		return models.OutlineStatusDraft, true
	case models.ProposalStatusOutlineRejected:
		return models.OutlineStatusRejected, true
	}
	return "", false
}

// outlineStatusForStored recovers the outline status from a proposal status read back for a retry.
func outlineStatusForStored(status models.ProposalStatus) (models.OutlineStatus, bool) {
	switch status {
	case models.ProposalStatusPendingHead, models.ProposalStatusApprovedByHead,
		models.ProposalStatusRequestedChangesHead, models.ProposalStatusRejectedByHead:
		return models.OutlineStatusApproved, true
	}
	return outlineStatusFor(status)
}

// sideEffectFor names the follow-up action a committed transition requires, if any.
func sideEffectFor(target models.ProposalStatus) (models.SideEffect, bool) {
	if _, ok := outlineStatusFor(target); ok {
		return models.SideEffectSyncOutline, true
	}
	if target == models.ProposalStatusApprovedByHead {
		return models.SideEffectMaterializeProject, true
	}
	return "", false
}

// authorizeReviewer checks the caller's relationship to the proposal for the role.
func authorizeReviewer(actor *models.Identity, role ReviewerRole, authCtx *models.ProposalAuthContext) bool {
	if actor == nil || authCtx == nil {
		return false
	}
	switch role {
	case ReviewerAdvisor:
		return authCtx.AdvisorID != "" && authCtx.AdvisorID == actor.UserID
	case ReviewerDivisionHead:
		return actor.HasRole(models.RoleDivisionHead) && actor.DivisionID != "" &&
			actor.DivisionID == authCtx.AdvisorScope.DivisionID
	case ReviewerDean:
		return actor.HasRole(models.RoleDean) && actor.FacultyID != "" &&
			actor.FacultyID == authCtx.AdvisorScope.FacultyID
	}
	return false
}

// headRoleFor picks the head capacity in which the actor may review the proposal.
func headRoleFor(actor *models.Identity, authCtx *models.ProposalAuthContext) (ReviewerRole, bool) {
	for _, role := range []ReviewerRole{ReviewerDivisionHead, ReviewerDean} {
		if authorizeReviewer(actor, role, authCtx) {
			return role, true
		}
	}
	return "", false
}

// isStudentMember reports whether the actor is the proposal's active student.
func isStudentMember(actor *models.Identity, authCtx *models.ProposalAuthContext) bool {
	if actor == nil || authCtx == nil {
		return false
	}
	for _, member := range authCtx.Members {
		if member.Role == models.MemberRoleStudent && member.Status == models.MemberStatusActive &&
			member.StudentID != nil && *member.StudentID == actor.UserID {
			return true
		}
	}
	return false
}

// canView reports whether the actor may read the proposal.
func canView(actor *models.Identity, authCtx *models.ProposalAuthContext) bool {
	if actor == nil {
		return false
	}
	if actor.HasRole(models.RoleAdmin) || isStudentMember(actor, authCtx) {
		return true
	}
	for _, role := range []ReviewerRole{ReviewerAdvisor, ReviewerDivisionHead, ReviewerDean} {
		if authorizeReviewer(actor, role, authCtx) {
			return true
		}
	}
	return false
}
