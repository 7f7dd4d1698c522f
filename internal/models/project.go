package models

import "time"

// OfficialProject is the durable record created once a proposal is approved by the head.
type OfficialProject struct {
	ID          string          `db:"id" json:"id"`
	ProposalID  string          `db:"proposal_id" json:"proposalId"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	DivisionID  *string         `db:"division_id" json:"divisionId,omitempty"`
	ApprovedBy  string          `db:"approved_by" json:"approvedBy"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	Members     []ProjectMember `db:"-" json:"members,omitempty"`
}

// ProjectMember is copied from an active proposal member.
type ProjectMember struct {
	ID         string     `db:"id" json:"id"`
	ProjectID  string     `db:"project_id" json:"projectId"`
	StudentID  *string    `db:"student_id" json:"studentId,omitempty"`
	LecturerID *string    `db:"lecturer_id" json:"lecturerId,omitempty"`
	Role       MemberRole `db:"role" json:"role"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}
