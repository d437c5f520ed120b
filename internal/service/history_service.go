package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/transcript-review-api/internal/models"
	appErrors "github.com/noah-isme/transcript-review-api/pkg/errors"
	"github.com/noah-isme/transcript-review-api/pkg/export"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	exportHistoryLimit  = 1000
)

var historyExportHeaders = []string{"id", "fileName", "imageUrl", "transcript", "rating", "status", "annotatedBy", "reviewedBy", "createdAt"}

type historyRepository interface {
	History(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, int, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Name        string
	ContentType string
	Body        []byte
}

// HistoryService lists the work items a user annotated or reviewed.
type HistoryService struct {
	repo   historyRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewHistoryService constructs the history service.
func NewHistoryService(repo historyRepository, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{repo: repo, logger: logger, now: time.Now}
}

// List returns the caller's history, newest first. Reviewers see the items
// they resolved; other roles see items they rated or reviewed.
func (s *HistoryService) List(ctx context.Context, user *models.User, limit, offset int) ([]models.HistoryEntry, *models.Pagination, error) {
	if user == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, total, err := s.repo.History(ctx, models.HistoryFilter{
		UserID:       user.ID,
		ReviewerView: user.Role == models.RoleReviewer,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, &models.Pagination{Page: offset/limit + 1, PageSize: limit, TotalCount: total}, nil
}

// Export renders the caller's recent history as CSV or PDF.
func (s *HistoryService) Export(ctx context.Context, user *models.User, format string) (*ExportFile, error) {
	if user == nil {
		return nil, appErrors.ErrUnauthorized
	}
	exporter, ok := export.ForFormat(format)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", format))
	}

	entries, _, err := s.repo.History(ctx, models.HistoryFilter{
		UserID:       user.ID,
		ReviewerView: user.Role == models.RoleReviewer,
		Limit:        exportHistoryLimit,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("History for %s", user.Username),
		Headers: historyExportHeaders,
		Rows:    make([]map[string]string, 0, len(entries)),
	}
	for _, entry := range entries {
		dataset.Rows = append(dataset.Rows, historyRow(entry))
	}

	body, err := exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Debug("history exported", zap.String("user_id", user.ID), zap.String("format", exporter.Extension()), zap.Int("rows", len(entries)))

	return &ExportFile{
		Name:        fmt.Sprintf("history_%s_%s.%s", user.Username, s.now().UTC().Format("20060102150405"), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Body:        body,
	}, nil
}

func historyRow(entry models.HistoryEntry) map[string]string {
	row := map[string]string{
		"id":         entry.ID,
		"fileName":   entry.FileName,
		"imageUrl":   entry.ImageURL,
		"transcript": entry.Transcript,
		"status":     string(entry.Status),
		"createdAt":  entry.CreatedAt.UTC().Format(time.RFC3339),
	}
	if entry.AnnotatedTranscript != nil {
		row["transcript"] = *entry.AnnotatedTranscript
	}
	if entry.Rating != nil {
		row["rating"] = strconv.Itoa(*entry.Rating)
	}
	if entry.ModifiedByUsername != nil {
		row["annotatedBy"] = *entry.ModifiedByUsername
	}
	if entry.ReviewedByUsername != nil {
		row["reviewedBy"] = *entry.ReviewedByUsername
	}
	return row
}
