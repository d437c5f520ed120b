package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/transcript-review-api/internal/dto"
	"github.com/noah-isme/transcript-review-api/internal/models"
	"github.com/noah-isme/transcript-review-api/internal/repository"
	appErrors "github.com/noah-isme/transcript-review-api/pkg/errors"
)

type rateRepository interface {
	ClaimNext(ctx context.Context, params repository.ClaimParams) (*models.Rate, error)
	GetByID(ctx context.Context, id string) (*models.Rate, error)
	Annotate(ctx context.Context, params models.RateAnnotation) (*models.Rate, error)
	Review(ctx context.Context, params models.RateReview) (*models.Rate, error)
	Release(ctx context.Context, id, userID string) error
	Stats(ctx context.Context, now time.Time) (*models.QueueStats, error)
}

// WorkConfig tunes selection and claims.
type WorkConfig struct {
	ClaimTTL             time.Duration
	ReviewExcludeOwnWork bool
	StatsTTL             time.Duration
}

// WorkService selects work items and applies annotation and review transitions.
type WorkService struct {
	repo      rateRepository
	cache     *CacheService
	audit     auditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    WorkConfig
	now       func() time.Time
}

// NewWorkService constructs the work service.
func NewWorkService(repo rateRepository, cache *CacheService, audit auditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config WorkConfig) *WorkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.ClaimTTL <= 0 {
		config.ClaimTTL = 15 * time.Minute
	}
	return &WorkService{
		repo:      repo,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Next claims the next item in the queue matching the user's role. A nil
// rate with a nil error means the queue is empty.
func (s *WorkService) Next(ctx context.Context, user *models.User) (*models.Rate, error) {
	if user == nil {
		return nil, appErrors.ErrUnauthorized
	}
	stage, ok := user.Role.WorkStage()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role has no work queue")
	}

	now := s.now().UTC()
	start := time.Now()
	rate, err := s.repo.ClaimNext(ctx, repository.ClaimParams{
		UserID:            user.ID,
		Stage:             stage,
		ExcludeModifiedBy: stage == models.StageReview && s.config.ReviewExcludeOwnWork,
		Now:               now,
		ExpiresAt:         now.Add(s.config.ClaimTTL),
	})
	s.metrics.ObserveDBQuery("claim_next", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordClaim(stage, false)
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load next work item")
	}
	s.metrics.RecordClaim(stage, true)
	return rate, nil
}

// Annotate records the annotator's rating. The item must be awaiting
// annotation and not claimed by someone else.
func (s *WorkService) Annotate(ctx context.Context, user *models.User, req dto.AnnotateRequest, meta dto.RequestMeta) (*models.Rate, error) {
	if user == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if user.Role != models.RoleAnnotator {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only annotators can rate items")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rating must be between 1 and 10 and contentId is required")
	}

	var transcription *string
	if req.Transcription != nil {
		if trimmed := strings.TrimSpace(*req.Transcription); trimmed != "" {
			transcription = &trimmed
		}
	}

	start := time.Now()
	rate, err := s.repo.Annotate(ctx, models.RateAnnotation{
		RateID:              req.RateID,
		AnnotatorID:         user.ID,
		Rating:              req.Rating,
		AnnotatedTranscript: transcription,
		AnnotatedAt:         s.now().UTC(),
	})
	s.metrics.ObserveDBQuery("annotate", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.explainRejected(ctx, req.RateID, user.ID, models.StageAnnotation)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrOperationFailed.Code, appErrors.ErrOperationFailed.Status, appErrors.ErrOperationFailed.Message)
	}

	s.metrics.RecordAnnotation()
	s.invalidateStats(ctx)
	if s.audit != nil {
		s.audit.Record(ctx, newAuditEntry(user.ID, models.AuditActionAnnotate, "rates", rate.ID, nil,
			map[string]interface{}{"rating": req.Rating, "transcription_changed": transcription != nil}, meta))
	}
	return rate, nil
}

// Review resolves an item awaiting review with APPROVED or REJECTED.
func (s *WorkService) Review(ctx context.Context, user *models.User, req dto.ReviewRequest, meta dto.RequestMeta) (*models.Rate, error) {
	if user == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if user.Role != models.RoleReviewer {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only reviewers can review items")
	}
	req.Status = models.RateStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "status must be APPROVED or REJECTED and rateId is required")
	}
	if req.ReviewedByID != "" && req.ReviewedByID != user.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reviewedById must match the session user")
	}

	start := time.Now()
	rate, err := s.repo.Review(ctx, models.RateReview{
		RateID:            req.RateID,
		ReviewerID:        user.ID,
		Status:            req.Status,
		ReviewedAt:        s.now().UTC(),
		ExcludeModifiedBy: s.config.ReviewExcludeOwnWork,
	})
	s.metrics.ObserveDBQuery("review", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.explainRejected(ctx, req.RateID, user.ID, models.StageReview)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrOperationFailed.Code, appErrors.ErrOperationFailed.Status, appErrors.ErrOperationFailed.Message)
	}

	s.metrics.RecordReview(rate.Status)
	s.invalidateStats(ctx)
	if s.audit != nil {
		s.audit.Record(ctx, newAuditEntry(user.ID, models.AuditActionReview, "rates", rate.ID,
			map[string]interface{}{"status": models.RateStatusPending},
			map[string]interface{}{"status": rate.Status}, meta))
	}
	return rate, nil
}

// Release drops the caller's claim so the item returns to its queue.
// Releasing an item the caller does not hold is a no-op.
func (s *WorkService) Release(ctx context.Context, user *models.User, req dto.ReleaseRequest) error {
	if user == nil {
		return appErrors.ErrUnauthorized
	}
	if _, ok := user.Role.WorkStage(); !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "role has no work queue")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rateId is required")
	}

	err := s.repo.Release(ctx, req.RateID, user.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrOperationFailed.Code, appErrors.ErrOperationFailed.Status, appErrors.ErrOperationFailed.Message)
	}
	if _, err := s.repo.GetByID(ctx, req.RateID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	return nil
}

// Stats returns queue counts and whether they were served from cache.
func (s *WorkService) Stats(ctx context.Context) (*models.QueueStats, bool, error) {
	var cached models.QueueStats
	if hit, _ := s.cache.Get(ctx, statsCacheKey, &cached); hit {
		return &cached, true, nil
	}
	start := time.Now()
	stats, err := s.repo.Stats(ctx, s.now().UTC())
	s.metrics.ObserveDBQuery("queue_stats", time.Since(start))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue stats")
	}
	_ = s.cache.Set(ctx, statsCacheKey, stats, s.config.StatsTTL)
	return stats, false, nil
}

func (s *WorkService) invalidateStats(ctx context.Context) {
	_ = s.cache.Delete(ctx, statsCacheKey)
}

// explainRejected maps a conditional update that matched no row to 404 or 409.
func (s *WorkService) explainRejected(ctx context.Context, rateID, userID string, expected models.WorkStage) error {
	rate, err := s.repo.GetByID(ctx, rateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrOperationFailed.Code, appErrors.ErrOperationFailed.Status, appErrors.ErrOperationFailed.Message)
	}

	switch stage := rate.Stage(); {
	case stage != expected && expected == models.StageAnnotation:
		return appErrors.Clone(appErrors.ErrConflict, "record has already been rated")
	case stage != expected && stage == models.StageAnnotation:
		return appErrors.Clone(appErrors.ErrConflict, "record is not awaiting review")
	case stage != expected:
		return appErrors.Clone(appErrors.ErrConflict, "record has already been reviewed")
	case expected == models.StageReview && s.config.ReviewExcludeOwnWork && rate.ModifiedByID != nil && *rate.ModifiedByID == userID:
		return appErrors.Clone(appErrors.ErrForbidden, "reviewers cannot review their own annotations")
	case rate.ClaimedByOther(userID, s.now()):
		return appErrors.Clone(appErrors.ErrConflict, "record is claimed by another user")
	default:
		return appErrors.Clone(appErrors.ErrConflict, "record changed concurrently, fetch the next item")
	}
}
