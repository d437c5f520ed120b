package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/transcript-review-api/internal/dto"
	"github.com/noah-isme/transcript-review-api/internal/models"
	"github.com/noah-isme/transcript-review-api/pkg/jobs"
)

const auditJobType = "audit_log"

type auditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditRecorder is the narrow view other services need of AuditService.
type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

// AuditConfig sizes the background audit writer.
type AuditConfig struct {
	Workers    int
	Retries    int
	BufferSize int
	RetryDelay time.Duration
}

// AuditService writes audit logs through a background queue and falls back to
// an inline write when the queue is full or not running.
type AuditService struct {
	repo    auditRepository
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditService constructs the service and its queue. Call Start to spin up workers.
func NewAuditService(repo auditRepository, metrics *MetricsService, logger *zap.Logger, cfg AuditConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue("audit", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the audit workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains buffered entries and stops the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
	s.metrics.SetAuditQueueDepth(s.queue.Pending())
}

// Record persists entry asynchronously when possible. Failures are logged, never returned.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) {
	if s == nil || s.repo == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err := s.queue.Enqueue(jobs.Job{Type: auditJobType, Payload: entry})
	if err == nil {
		s.metrics.SetAuditQueueDepth(s.queue.Pending())
		return
	}
	s.logger.Debug("audit queue unavailable, writing inline", zap.String("action", entry.Action), zap.Error(err))

	if err = s.write(context.WithoutCancel(ctx), &entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		s.logger.Error("unexpected audit payload", zap.String("job_id", job.ID))
		return nil
	}
	s.metrics.SetAuditQueueDepth(s.queue.Pending())
	return s.write(ctx, &entry)
}

func (s *AuditService) write(ctx context.Context, entry *models.AuditLog) error {
	err := s.repo.CreateAuditLog(ctx, entry)
	s.metrics.RecordAuditWrite(err)
	return err
}

// newAuditEntry builds an audit record; nil values are omitted.
func newAuditEntry(actorID, action, resource, resourceID string, oldValues, newValues interface{}, meta dto.RequestMeta) models.AuditLog {
	entry := models.AuditLog{
		Action:    action,
		Resource:  resource,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	return entry
}
