package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/transcript-review-api/internal/dto"
	"github.com/noah-isme/transcript-review-api/internal/models"
	appErrors "github.com/noah-isme/transcript-review-api/pkg/errors"
	"github.com/noah-isme/transcript-review-api/pkg/ingest"
)

type rateWriter interface {
	BulkCreate(ctx context.Context, rates []models.Rate, batchSize int) error
}

type uploadArchive interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// IngestionConfig controls bulk inserts and archive retention.
type IngestionConfig struct {
	BatchSize        int
	ArchiveRetention time.Duration
}

// IngestionService turns uploaded files into pending work items.
type IngestionService struct {
	repo    rateWriter
	archive uploadArchive
	cache   *CacheService
	audit   auditRecorder
	metrics *MetricsService
	logger  *zap.Logger
	config  IngestionConfig
	now     func() time.Time
}

// NewIngestionService constructs the ingestion service. archive may be nil.
func NewIngestionService(repo rateWriter, archive uploadArchive, cache *CacheService, audit auditRecorder, metrics *MetricsService, logger *zap.Logger, config IngestionConfig) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		repo:    repo,
		archive: archive,
		cache:   cache,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

// Ingest parses the upload and stores every record in one transaction.
// Nothing is stored when any row is invalid.
func (s *IngestionService) Ingest(ctx context.Context, actor *models.User, req dto.IngestRequest, meta dto.RequestMeta) (*dto.IngestResult, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can upload texts")
	}
	if strings.TrimSpace(req.FileName) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name is required")
	}

	format, _ := ingest.Format(req.FileName)
	if format == "" {
		format = "unknown"
	}

	result, err := s.ingest(ctx, actor, req, meta)
	count := 0
	if result != nil {
		count = result.Count
	}
	s.metrics.RecordIngest(format, count, err)
	return result, err
}

func (s *IngestionService) ingest(ctx context.Context, actor *models.User, req dto.IngestRequest, meta dto.RequestMeta) (*dto.IngestResult, error) {
	records, err := ingest.Parse(req.FileName, req.Content)
	if err != nil {
		return nil, mapParseError(err)
	}

	batch := s.now().UTC()
	batchID := strconv.FormatInt(batch.UnixMilli(), 10)
	base := baseName(req.FileName)

	rates := make([]models.Rate, len(records))
	for i, record := range records {
		rates[i] = models.Rate{
			ImageURL:   record.ImageURL,
			Transcript: record.Transcript,
			Status:     models.RateStatusPending,
			FileName:   fmt.Sprintf("%s_%s_%d", base, batchID, i+1),
			CreatedAt:  batch,
		}
	}

	start := time.Now()
	err = s.repo.BulkCreate(ctx, rates, s.config.BatchSize)
	s.metrics.ObserveDBQuery("bulk_create_rates", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrOperationFailed.Code, appErrors.ErrOperationFailed.Status, "failed to store uploaded records")
	}

	s.archiveUpload(batch, batchID, req)
	_ = s.cache.Delete(ctx, statsCacheKey)
	if s.audit != nil {
		s.audit.Record(ctx, newAuditEntry(actor.ID, models.AuditActionIngest, "rates", batchID, nil,
			map[string]interface{}{"file": req.FileName, "count": len(rates)}, meta))
	}
	s.logger.Info("texts ingested",
		zap.String("batch_id", batchID),
		zap.String("file", req.FileName),
		zap.Int("count", len(rates)),
		zap.String("actor_id", actor.ID))

	return &dto.IngestResult{Count: len(rates), BatchID: batchID}, nil
}

func (s *IngestionService) archiveUpload(batch time.Time, batchID string, req dto.IngestRequest) {
	if s.archive == nil {
		return
	}
	name := filepath.Join(batch.Format("2006-01-02"), batchID+"_"+filepath.Base(req.FileName))
	if _, err := s.archive.Save(name, req.Content); err != nil {
		s.logger.Warn("failed to archive upload", zap.String("batch_id", batchID), zap.Error(err))
		return
	}
	if s.config.ArchiveRetention <= 0 {
		return
	}
	removed, err := s.archive.CleanupOlderThan(s.config.ArchiveRetention)
	if err != nil {
		s.logger.Warn("failed to prune upload archive", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("pruned upload archive", zap.Int("removed", len(removed)))
	}
}

func mapParseError(err error) error {
	var validationErr *ingest.ValidationError
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return appErrors.Clone(appErrors.ErrUnsupportedFormat, "unsupported file format, upload a .csv or .json file")
	case errors.Is(err, ingest.ErrNoRecords):
		return appErrors.Clone(appErrors.ErrValidation, "no valid data records found")
	case errors.As(err, &validationErr):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationErr.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload")
	}
}

// baseName returns the upload name up to its first dot.
func baseName(fileName string) string {
	name := filepath.Base(strings.TrimSpace(fileName))
	if idx := strings.Index(name, "."); idx >= 0 {
		name = name[:idx]
	}
	if name == "" {
		return "upload"
	}
	return name
}
