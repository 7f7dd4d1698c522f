package dto

import "github.com/noah-isme/capstone-api/internal/models"

// UpdateProposalRequest is the student edit of topic fields with an optional submit.
type UpdateProposalRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	Submit      bool    `json:"submit"`
}

// SubmitOutlineRequest creates or replaces the outline.
type SubmitOutlineRequest struct {
	Introduction    string  `json:"introduction" validate:"required_without=Draft"`
	Objectives      string  `json:"objectives" validate:"required_without=Draft"`
	Methodology     string  `json:"methodology" validate:"required_without=Draft"`
	ExpectedResults string  `json:"expectedResults"`
	FileRef         *string `json:"fileRef" validate:"omitempty,max=512"`
	Draft           bool    `json:"draft"`
}

// ReviewProposalRequest carries an advisor or head decision.
type ReviewProposalRequest struct {
	Status  string `json:"status" validate:"required"`
	Comment string `json:"comment" validate:"omitempty,max=4000"`
}

// BulkTransitionRequest applies one target status to many proposals.
type BulkTransitionRequest struct {
	ProposalIDs []string `json:"proposalIds" validate:"required,min=1,dive,required"`
	Status      string   `json:"status" validate:"required"`
	Comment     string   `json:"comment" validate:"omitempty,max=4000"`
	Role        string   `json:"role" validate:"required,oneof=ADVISOR LECTURER DIVISION_HEAD DEAN"`
}

// BulkTransitionItem reports the outcome for one processed proposal.
type BulkTransitionItem struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	PreviousStatus  string `json:"previousStatus"`
	NewStatus       string `json:"newStatus"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	SideEffectError string `json:"sideEffectError,omitempty"`
}

// BulkInvalidItem is a proposal whose status does not allow the requested target.
type BulkInvalidItem struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	CurrentStatus string `json:"currentStatus"`
}

// BulkTransitionResult summarises a bulk call.
type BulkTransitionResult struct {
	Processed int                  `json:"processed"`
	Total     int                  `json:"total"`
	Items     []BulkTransitionItem `json:"items"`
	Invalid   []BulkInvalidItem    `json:"invalid"`
}

// ProposalQuery filters proposal listings.
type ProposalQuery struct {
	Status []string `form:"status"`
	Limit  int      `form:"limit" validate:"omitempty,min=1,max=200"`
	Offset int      `form:"offset" validate:"omitempty,min=0"`
}

// TransitionResult is returned after a single status change. SideEffectError is set when the
// status committed but a follow-up action failed and was queued for retry.
type TransitionResult struct {
	Proposal        models.Proposal         `json:"proposal"`
	Project         *models.OfficialProject `json:"project,omitempty"`
	SideEffectError string                  `json:"sideEffectError,omitempty"`
}

// ProposalDetail bundles a proposal with its members and attachments.
type ProposalDetail struct {
	models.Proposal
	Members []models.ProposalMember `json:"members"`
	Outline *models.Outline         `json:"outline,omitempty"`
	Project *models.OfficialProject `json:"project,omitempty"`
}
