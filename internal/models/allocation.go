package models

import "time"

// AllocationStatus drives the cascade into proposal creation.
type AllocationStatus string

const (
	AllocationStatusPending  AllocationStatus = "PENDING"
	AllocationStatusApproved AllocationStatus = "APPROVED"
	AllocationStatusRejected AllocationStatus = "REJECTED"
)

// Allocation pairs a student with a supervising lecturer.
type Allocation struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"studentId"`
	LecturerID  string           `db:"lecturer_id" json:"lecturerId"`
	OfferID     *string          `db:"offer_id" json:"offerId,omitempty"`
	TopicTitle  string           `db:"topic_title" json:"topicTitle"`
	Status      AllocationStatus `db:"status" json:"status"`
	CreatedBy   string           `db:"created_by" json:"createdBy"`
	AllocatedAt time.Time        `db:"allocated_at" json:"allocatedAt"`
	DeletedAt   *time.Time       `db:"deleted_at" json:"-"`
}
