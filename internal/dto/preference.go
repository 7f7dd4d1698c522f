package dto

// CreatePreferenceRequest registers a ranked supervisor or topic choice.
type CreatePreferenceRequest struct {
	Priority    int     `json:"priority" validate:"required,min=1"`
	LecturerID  *string `json:"lecturerId" validate:"omitempty,min=1"`
	TopicPoolID *string `json:"topicPoolId" validate:"omitempty,min=1"`
	TopicTitle  *string `json:"topicTitle" validate:"omitempty,max=255"`
}

// UpdatePreferenceRequest replaces the editable fields of a pending preference.
type UpdatePreferenceRequest struct {
	Priority    int     `json:"priority" validate:"required,min=1"`
	LecturerID  *string `json:"lecturerId" validate:"omitempty,min=1"`
	TopicPoolID *string `json:"topicPoolId" validate:"omitempty,min=1"`
	TopicTitle  *string `json:"topicTitle" validate:"omitempty,max=255"`
}
