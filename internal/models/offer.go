package models

import "time"

// OfferStatus is set by administrators only.
type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "PENDING"
	OfferStatusApproved OfferStatus = "APPROVED"
	OfferStatusRejected OfferStatus = "REJECTED"
)

// LecturerOffer declares how many students a lecturer can supervise.
type LecturerOffer struct {
	ID              string      `db:"id" json:"id"`
	LecturerID      string      `db:"lecturer_id" json:"lecturerId"`
	TopicPoolID     *string     `db:"topic_pool_id" json:"topicPoolId,omitempty"`
	TopicTitle      *string     `db:"topic_title" json:"topicTitle,omitempty"`
	Capacity        int         `db:"capacity" json:"capacity"`
	CurrentCapacity int         `db:"current_capacity" json:"currentCapacity"`
	Status          OfferStatus `db:"status" json:"status"`
	Active          bool        `db:"active" json:"active"`
	DeletedAt       *time.Time  `db:"deleted_at" json:"-"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

// Remaining returns the seats still available on the offer.
func (o *LecturerOffer) Remaining() int {
	if o.CurrentCapacity >= o.Capacity {
		return 0
	}
	return o.Capacity - o.CurrentCapacity
}

// OfferCandidate is an approved active offer joined with the lecturer's scope.
type OfferCandidate struct {
	LecturerOffer
	LecturerDivisionID string `db:"lecturer_division_id" json:"lecturerDivisionId"`
	LecturerFacultyID  string `db:"lecturer_faculty_id" json:"lecturerFacultyId"`
}

// OfferFilter constrains offer listings.
type OfferFilter struct {
	LecturerID  string
	TopicPoolID string
	Status      []OfferStatus
	ActiveOnly  bool
}
