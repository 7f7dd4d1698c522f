package models

import "time"

// PreferenceStatus captures the review state of a student preference.
type PreferenceStatus string

const (
	PreferenceStatusPending  PreferenceStatus = "PENDING"
	PreferenceStatusApproved PreferenceStatus = "APPROVED"
	PreferenceStatusRejected PreferenceStatus = "REJECTED"
)

// StudentPreference is one ranked choice of a student.
type StudentPreference struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"studentId"`
	Priority    int              `db:"priority" json:"priority"`
	LecturerID  *string          `db:"lecturer_id" json:"lecturerId,omitempty"`
	TopicPoolID *string          `db:"topic_pool_id" json:"topicPoolId,omitempty"`
	TopicTitle  *string          `db:"topic_title" json:"topicTitle,omitempty"`
	Status      PreferenceStatus `db:"status" json:"status"`
	DeletedAt   *time.Time       `db:"deleted_at" json:"-"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updatedAt"`
}

// Editable reports whether the owner may still change the preference.
func (p *StudentPreference) Editable() bool {
	return p.Status == PreferenceStatusPending && p.DeletedAt == nil
}

// PreferenceCandidate is a pending preference joined with the student's scope.
type PreferenceCandidate struct {
	StudentPreference
	StudentDivisionID string `db:"student_division_id" json:"studentDivisionId"`
	StudentFacultyID  string `db:"student_faculty_id" json:"studentFacultyId"`
}
