package dto

import "github.com/noah-isme/transcript-review-api/internal/models"

// HistoryResponse lists work items the caller touched.
type HistoryResponse struct {
	Ratings []models.HistoryEntry `json:"ratings"`
}
