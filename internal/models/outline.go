package models

import "time"

// OutlineStatus is reviewed independently of the proposal status.
type OutlineStatus string

const (
	OutlineStatusDraft         OutlineStatus = "DRAFT"
	OutlineStatusPendingReview OutlineStatus = "PENDING_REVIEW"
	OutlineStatusApproved      OutlineStatus = "APPROVED"
	OutlineStatusRejected      OutlineStatus = "REJECTED"
)

// Outline is the methodology document attached to a proposal.
type Outline struct {
	ID              string        `db:"id" json:"id"`
	ProposalID      string        `db:"proposal_id" json:"proposalId"`
	Introduction    string        `db:"introduction" json:"introduction"`
	Objectives      string        `db:"objectives" json:"objectives"`
	Methodology     string        `db:"methodology" json:"methodology"`
	ExpectedResults string        `db:"expected_results" json:"expectedResults"`
	FileRef         *string       `db:"file_ref" json:"fileRef,omitempty"`
	Status          OutlineStatus `db:"status" json:"status"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}
