package dto

// CreateOfferRequest declares supervision capacity for the calling lecturer.
type CreateOfferRequest struct {
	TopicPoolID *string `json:"topicPoolId" validate:"omitempty,min=1"`
	TopicTitle  *string `json:"topicTitle" validate:"omitempty,max=255"`
	Capacity    int     `json:"capacity" validate:"required,min=1"`
}

// UpdateOfferRequest changes owner-editable fields. Nil fields are left untouched.
type UpdateOfferRequest struct {
	TopicPoolID *string `json:"topicPoolId" validate:"omitempty,min=1"`
	TopicTitle  *string `json:"topicTitle" validate:"omitempty,max=255"`
	Capacity    *int    `json:"capacity" validate:"omitempty,min=1"`
	Active      *bool   `json:"active"`
}

// UpdateOfferStatusRequest is the administrator review of an offer.
type UpdateOfferStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING APPROVED REJECTED"`
}

// OfferQuery filters offer listings.
type OfferQuery struct {
	LecturerID  string `form:"lecturerId"`
	TopicPoolID string `form:"topicPoolId"`
	Status      string `form:"status" validate:"omitempty,oneof=PENDING APPROVED REJECTED"`
	ActiveOnly  bool   `form:"activeOnly"`
}
