package dto

import "github.com/noah-isme/transcript-review-api/internal/models"

// AnnotateRequest is submitted by annotators via /saveFile.
type AnnotateRequest struct {
	RateID        string  `json:"contentId" form:"contentId" validate:"required,uuid"`
	Rating        int     `json:"rating" form:"rating" validate:"required,min=1,max=10"`
	Transcription *string `json:"transcription" form:"transcription" validate:"omitempty,max=20000"`
}

// ReviewRequest is submitted by reviewers to resolve a rated item.
type ReviewRequest struct {
	RateID       string            `json:"rateId" form:"rateId" validate:"required,uuid"`
	Status       models.RateStatus `json:"status" form:"status" validate:"required,oneof=APPROVED REJECTED"`
	ReviewedByID string            `json:"reviewedById" form:"reviewedById" validate:"omitempty,uuid"`
}

// ReleaseRequest drops a claim on a work item.
type ReleaseRequest struct {
	RateID string `json:"rateId" form:"rateId" validate:"required,uuid"`
}

// WorkScreenResponse is returned by the annotator and reviewer screens.
type WorkScreenResponse struct {
	User    models.User  `json:"user"`
	Content *models.Rate `json:"content,omitempty"`
	Rate    *models.Rate `json:"rate,omitempty"`
	Message string       `json:"message"`
}

// WorkActionResponse acknowledges an annotation, review or release.
type WorkActionResponse struct {
	Success bool         `json:"success"`
	Rate    *models.Rate `json:"rate,omitempty"`
}
