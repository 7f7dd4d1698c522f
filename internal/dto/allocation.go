package dto

import (
	"time"

	"github.com/noah-isme/capstone-api/internal/models"
)

// Recommendation sources.
const (
	RecommendationSourcePreference = "PREFERENCE"
	RecommendationSourceFallback   = "FALLBACK"
)

// RecommendationRequest asks the engine for a fresh set of pairings.
type RecommendationRequest struct {
	ScopeFilter string `json:"scopeFilter" validate:"omitempty,oneof=NONE DIVISION FACULTY"`
}

// RecommendationItem is one suggested student to lecturer pairing.
type RecommendationItem struct {
	StudentID  string `json:"studentId"`
	LecturerID string `json:"lecturerId"`
	OfferID    string `json:"offerId"`
	TopicTitle string `json:"topicTitle"`
	Source     string `json:"source"`
	Priority   int    `json:"priority,omitempty"`
}

// RecommendationResponse is the engine output kept for later export or materialization.
type RecommendationResponse struct {
	ID          string               `json:"id"`
	ScopeFilter string               `json:"scopeFilter"`
	Items       []RecommendationItem `json:"items"`
	Unallocated []string             `json:"unallocated"`
	GeneratedAt time.Time            `json:"generatedAt"`
	ExpiresAt   time.Time            `json:"expiresAt"`
}

// ExportRecommendationRequest selects the report format.
type ExportRecommendationRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf xlsx"`
}

// ExportRecommendationResponse returns the signed download location.
type ExportRecommendationResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateAllocationRequest pairs a student with a lecturer manually.
type CreateAllocationRequest struct {
	StudentID  string  `json:"studentId" validate:"required"`
	LecturerID string  `json:"lecturerId" validate:"required"`
	OfferID    *string `json:"offerId" validate:"omitempty,min=1"`
	TopicTitle string  `json:"topicTitle" validate:"omitempty,max=255"`
	Approve    bool    `json:"approve"`
}

// MaterializeAllocationItem is one selected recommendation triple.
type MaterializeAllocationItem struct {
	StudentID  string  `json:"studentId" validate:"required"`
	LecturerID string  `json:"lecturerId" validate:"required"`
	OfferID    *string `json:"offerId" validate:"omitempty,min=1"`
	TopicTitle string  `json:"topicTitle" validate:"omitempty,max=255"`
}

// MaterializeAllocationsRequest bulk-creates approved allocations.
type MaterializeAllocationsRequest struct {
	Items []MaterializeAllocationItem `json:"items" validate:"required,min=1,dive"`
}

// ReviewAllocationRequest approves or rejects a pending allocation.
type ReviewAllocationRequest struct {
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
}

// AllocationResult returns an allocation and, once approved, its first-stage proposal.
type AllocationResult struct {
	Allocation models.Allocation `json:"allocation"`
	Proposal   *models.Proposal  `json:"proposal,omitempty"`
}
