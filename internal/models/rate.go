package models

import "time"

// RateStatus captures the review outcome of a work item.
type RateStatus string

const (
	RateStatusPending  RateStatus = "PENDING"
	RateStatusApproved RateStatus = "APPROVED"
	RateStatusRejected RateStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s RateStatus) Valid() bool {
	switch s {
	case RateStatusPending, RateStatusApproved, RateStatusRejected:
		return true
	default:
		return false
	}
}

// IsDecision reports whether s resolves a work item.
func (s RateStatus) IsDecision() bool {
	return s == RateStatusApproved || s == RateStatusRejected
}

// WorkStage names the queue a pending work item sits in.
type WorkStage string

const (
	StageAnnotation WorkStage = "ANNOTATION"
	StageReview     WorkStage = "REVIEW"
	StageResolved   WorkStage = "RESOLVED"
)

// Rate is a single image and transcript pair moving through annotation and review.
type Rate struct {
	ID                  string     `db:"id" json:"id"`
	ImageURL            string     `db:"image_url" json:"imageUrl"`
	Transcript          string     `db:"transcript" json:"transcript"`
	AnnotatedTranscript *string    `db:"annotated_transcript" json:"annotatedTranscript,omitempty"`
	Rating              *int       `db:"rating" json:"rating"`
	Status              RateStatus `db:"status" json:"status"`
	FileName            string     `db:"file_name" json:"fileName"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updatedAt"`
	ModifiedByID        *string    `db:"modified_by_id" json:"modifiedById,omitempty"`
	AnnotatedAt         *time.Time `db:"annotated_at" json:"annotatedAt,omitempty"`
	ReviewedByID        *string    `db:"reviewed_by_id" json:"reviewedById,omitempty"`
	ReviewedAt          *time.Time `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ClaimedByID         *string    `db:"claimed_by_id" json:"claimedById,omitempty"`
	ClaimExpiresAt      *time.Time `db:"claim_expires_at" json:"claimExpiresAt,omitempty"`
}

// Stage derives the lifecycle stage from status and rating.
func (r *Rate) Stage() WorkStage {
	if r.Status.IsDecision() {
		return StageResolved
	}
	if r.Rating == nil {
		return StageAnnotation
	}
	return StageReview
}

// ClaimedByOther reports whether someone other than userID holds a live claim at now.
func (r *Rate) ClaimedByOther(userID string, now time.Time) bool {
	if r.ClaimedByID == nil || *r.ClaimedByID == userID {
		return false
	}
	return r.ClaimExpiresAt != nil && r.ClaimExpiresAt.After(now)
}

// RateAnnotation carries the fields written when an annotator rates an item.
type RateAnnotation struct {
	RateID              string
	AnnotatorID         string
	Rating              int
	AnnotatedTranscript *string
	AnnotatedAt         time.Time
}

// RateReview carries the fields written when a reviewer resolves an item.
type RateReview struct {
	RateID            string
	ReviewerID        string
	Status            RateStatus
	ReviewedAt        time.Time
	ExcludeModifiedBy bool
}

// HistoryEntry is a work item joined with the usernames that touched it.
type HistoryEntry struct {
	Rate
	ModifiedByUsername *string `db:"modified_by_username" json:"modifiedByUsername,omitempty"`
	ReviewedByUsername *string `db:"reviewed_by_username" json:"reviewedByUsername,omitempty"`
}

// HistoryFilter scopes history queries to one user.
type HistoryFilter struct {
	UserID       string
	ReviewerView bool
	Limit        int
	Offset       int
}

// QueueStats summarises work item counts per stage.
type QueueStats struct {
	AwaitingAnnotation int `db:"awaiting_annotation" json:"awaitingAnnotation"`
	AwaitingReview     int `db:"awaiting_review" json:"awaitingReview"`
	Approved           int `db:"approved" json:"approved"`
	Rejected           int `db:"rejected" json:"rejected"`
	Claimed            int `db:"claimed" json:"claimed"`
	Total              int `db:"total" json:"total"`
}
