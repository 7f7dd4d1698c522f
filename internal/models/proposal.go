package models

import "time"

// ProposalStatus enumerates every stage of the proposal lifecycle.
type ProposalStatus string

const (
	ProposalStatusTopicSubmissionPending  ProposalStatus = "TOPIC_SUBMISSION_PENDING"
	ProposalStatusTopicPendingAdvisor     ProposalStatus = "TOPIC_PENDING_ADVISOR"
	ProposalStatusTopicApproved           ProposalStatus = "TOPIC_APPROVED"
	ProposalStatusTopicRequestedChanges   ProposalStatus = "TOPIC_REQUESTED_CHANGES"
	ProposalStatusOutlinePendingSubmit    ProposalStatus = "OUTLINE_PENDING_SUBMISSION"
	ProposalStatusOutlinePendingAdvisor   ProposalStatus = "OUTLINE_PENDING_ADVISOR"
	ProposalStatusOutlineApproved         ProposalStatus = "OUTLINE_APPROVED"
	ProposalStatusOutlineRequestedChanges ProposalStatus = "OUTLINE_REQUESTED_CHANGES"
	ProposalStatusOutlineRejected         ProposalStatus = "OUTLINE_REJECTED"
	ProposalStatusPendingHead             ProposalStatus = "PENDING_HEAD"
	ProposalStatusApprovedByHead          ProposalStatus = "APPROVED_BY_HEAD"
	ProposalStatusRequestedChangesHead    ProposalStatus = "REQUESTED_CHANGES_HEAD"
	ProposalStatusRejectedByHead          ProposalStatus = "REJECTED_BY_HEAD"
)

// ProposalStatuses lists every status in lifecycle order.
var ProposalStatuses = []ProposalStatus{
	ProposalStatusTopicSubmissionPending,
	ProposalStatusTopicPendingAdvisor,
	ProposalStatusTopicApproved,
	ProposalStatusTopicRequestedChanges,
	ProposalStatusOutlinePendingSubmit,
	ProposalStatusOutlinePendingAdvisor,
	ProposalStatusOutlineApproved,
	ProposalStatusOutlineRequestedChanges,
	ProposalStatusOutlineRejected,
	ProposalStatusPendingHead,
	ProposalStatusApprovedByHead,
	ProposalStatusRequestedChangesHead,
	ProposalStatusRejectedByHead,
}

// Valid reports whether the status is part of the lifecycle.
func (s ProposalStatus) Valid() bool {
	for _, status := range ProposalStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave the status.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case ProposalStatusOutlineRejected, ProposalStatusApprovedByHead, ProposalStatusRejectedByHead:
		return true
	}
	return false
}

// SideEffect names a follow-up action recorded for the retry sweep.
type SideEffect string

const (
	SideEffectMaterializeProject SideEffect = "MATERIALIZE_PROJECT"
	SideEffectSyncOutline        SideEffect = "SYNC_OUTLINE"
)

// Proposal is the reviewable draft derived from an allocation.
type Proposal struct {
	ID                string         `db:"id" json:"id"`
	AllocationID      string         `db:"allocation_id" json:"allocationId"`
	Title             string         `db:"title" json:"title"`
	Description       string         `db:"description" json:"description"`
	Status            ProposalStatus `db:"status" json:"status"`
	ApprovedBy        *string        `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time     `db:"approved_at" json:"approvedAt,omitempty"`
	OfficialProjectID *string        `db:"official_project_id" json:"officialProjectId,omitempty"`
	PendingSideEffect *SideEffect    `db:"pending_side_effect" json:"pendingSideEffect,omitempty"`
	SideEffectError   *string        `db:"side_effect_error" json:"sideEffectError,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
}

// MemberStatus marks whether a membership row still counts.
type MemberStatus string

const (
	MemberStatusActive  MemberStatus = "ACTIVE"
	MemberStatusRemoved MemberStatus = "REMOVED"
)

// ProposalMember links a student or a lecturer to a proposal.
type ProposalMember struct {
	ID         string       `db:"id" json:"id"`
	ProposalID string       `db:"proposal_id" json:"proposalId"`
	StudentID  *string      `db:"student_id" json:"studentId,omitempty"`
	LecturerID *string      `db:"lecturer_id" json:"lecturerId,omitempty"`
	Role       MemberRole   `db:"role" json:"role"`
	Status     MemberStatus `db:"status" json:"status"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
}

// SubjectID returns whichever identifier the member row carries.
func (m ProposalMember) SubjectID() string {
	if m.StudentID != nil {
		return *m.StudentID
	}
	if m.LecturerID != nil {
		return *m.LecturerID
	}
	return ""
}

// ProposalComment is an entry in the review log.
type ProposalComment struct {
	ID         string          `db:"id" json:"id"`
	ProposalID string          `db:"proposal_id" json:"proposalId"`
	AuthorID   string          `db:"author_id" json:"authorId"`
	Body       string          `db:"body" json:"body"`
	StatusFrom *ProposalStatus `db:"status_from" json:"statusFrom,omitempty"`
	StatusTo   *ProposalStatus `db:"status_to" json:"statusTo,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// ProposalFilter constrains proposal listings.
type ProposalFilter struct {
	Status     []ProposalStatus
	StudentID  string
	AdvisorID  string
	DivisionID string
	FacultyID  string
	Limit      int
	Offset     int
}

// ProposalAuthContext bundles what is needed to authorise a transition on one proposal.
type ProposalAuthContext struct {
	Proposal     Proposal
	Members      []ProposalMember
	AdvisorID    string
	AdvisorScope Scope
}

// ActiveMember returns the active member holding the role, if any.
func (c *ProposalAuthContext) ActiveMember(role MemberRole) (ProposalMember, bool) {
	for _, member := range c.Members {
		if member.Role == role && member.Status == MemberStatusActive {
			return member, true
		}
	}
	return ProposalMember{}, false
}
