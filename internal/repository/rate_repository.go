package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/transcript-review-api/internal/models"
)

const rateColumns = `id, image_url, transcript, annotated_transcript, rating, status, file_name, created_at, updated_at,
       modified_by_id, annotated_at, reviewed_by_id, reviewed_at, claimed_by_id, claim_expires_at`

const defaultInsertBatch = 500

// claimable matches rows free of a live claim held by someone other than the
// user bound at userArg, relative to the time bound at nowArg.
func claimable(userArg, nowArg int) string {
	return fmt.Sprintf("(claimed_by_id IS NULL OR claimed_by_id = $%d OR claim_expires_at < $%d)", userArg, nowArg)
}

// RateRepository persists work items.
type RateRepository struct {
	db *sqlx.DB
}

// NewRateRepository constructs the repository.
func NewRateRepository(db *sqlx.DB) *RateRepository {
	return &RateRepository{db: db}
}

// ClaimParams selects and claims the next work item for a stage.
type ClaimParams struct {
	UserID            string
	Stage             models.WorkStage
	ExcludeModifiedBy bool
	Now               time.Time
	ExpiresAt         time.Time
}

// ClaimNext atomically picks the oldest eligible item in the stage queue and
// records the claim. A live claim already held by the caller is returned
// first. Returns sql.ErrNoRows when the queue is empty.
func (r *RateRepository) ClaimNext(ctx context.Context, params ClaimParams) (*models.Rate, error) {
	conditions := []string{fmt.Sprintf("status = '%s'", models.RateStatusPending)}
	switch params.Stage {
	case models.StageAnnotation:
		conditions = append(conditions, "rating IS NULL")
	case models.StageReview:
		conditions = append(conditions, "rating IS NOT NULL")
		if params.ExcludeModifiedBy {
			conditions = append(conditions, "(modified_by_id IS NULL OR modified_by_id <> $1)")
		}
	default:
		return nil, fmt.Errorf("claim next: unsupported stage %q", params.Stage)
	}
	conditions = append(conditions, claimable(1, 3))

	query := fmt.Sprintf(`UPDATE rates SET claimed_by_id = $1, claim_expires_at = $2
WHERE id = (
	SELECT id FROM rates
	WHERE %s
	ORDER BY CASE WHEN claimed_by_id = $1 THEN 0 ELSE 1 END, created_at ASC, id ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING %s`, strings.Join(conditions, " AND "), rateColumns)

	var rate models.Rate
	if err := r.db.GetContext(ctx, &rate, query, params.UserID, params.ExpiresAt, params.Now); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("claim next rate: %w", err)
	}
	return &rate, nil
}

// GetByID fetches a work item by identifier.
func (r *RateRepository) GetByID(ctx context.Context, id string) (*models.Rate, error) {
	query := `SELECT ` + rateColumns + ` FROM rates WHERE id = $1`
	var rate models.Rate
	if err := r.db.GetContext(ctx, &rate, query, id); err != nil {
		return nil, err
	}
	return &rate, nil
}

// Annotate records a rating on an item awaiting annotation and drops any
// claim. Returns sql.ErrNoRows when the item is missing, already rated,
// resolved or claimed by someone else.
func (r *RateRepository) Annotate(ctx context.Context, params models.RateAnnotation) (*models.Rate, error) {
	query := fmt.Sprintf(`UPDATE rates SET rating = $2, annotated_transcript = COALESCE($3, annotated_transcript),
	modified_by_id = $4, annotated_at = $5, updated_at = $5, claimed_by_id = NULL, claim_expires_at = NULL
WHERE id = $1 AND status = '%s' AND rating IS NULL AND %s
RETURNING %s`, models.RateStatusPending, claimable(4, 5), rateColumns)

	var rate models.Rate
	err := r.db.GetContext(ctx, &rate, query, params.RateID, params.Rating, params.AnnotatedTranscript, params.AnnotatorID, params.AnnotatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("annotate rate: %w", err)
	}
	return &rate, nil
}

// Review resolves an item awaiting review and drops any claim. Returns
// sql.ErrNoRows when the item is missing, unrated, already resolved,
// claimed by someone else or, with ExcludeModifiedBy, annotated by the
// reviewer.
func (r *RateRepository) Review(ctx context.Context, params models.RateReview) (*models.Rate, error) {
	conditions := []string{"id = $1", fmt.Sprintf("status = '%s'", models.RateStatusPending), "rating IS NOT NULL", claimable(3, 4)}
	if params.ExcludeModifiedBy {
		conditions = append(conditions, "(modified_by_id IS NULL OR modified_by_id <> $3)")
	}
	query := fmt.Sprintf(`UPDATE rates SET status = $2, reviewed_by_id = $3, reviewed_at = $4, updated_at = $4,
	claimed_by_id = NULL, claim_expires_at = NULL
WHERE %s
RETURNING %s`, strings.Join(conditions, " AND "), rateColumns)

	var rate models.Rate
	err := r.db.GetContext(ctx, &rate, query, params.RateID, params.Status, params.ReviewerID, params.ReviewedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("review rate: %w", err)
	}
	return &rate, nil
}

// Release drops the claim userID holds on the item.
func (r *RateRepository) Release(ctx context.Context, id, userID string) error {
	const query = `UPDATE rates SET claimed_by_id = NULL, claim_expires_at = NULL WHERE id = $1 AND claimed_by_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("release rate: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check release rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// BulkCreate inserts all rates in a single transaction using multi-row
// inserts of at most batchSize rows each.
func (r *RateRepository) BulkCreate(ctx context.Context, rates []models.Rate, batchSize int) (err error) {
	if len(rates) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = defaultInsertBatch
	}
	now := time.Now().UTC()
	for i := range rates {
		if rates[i].ID == "" {
			rates[i].ID = uuid.NewString()
		}
		if rates[i].Status == "" {
			rates[i].Status = models.RateStatusPending
		}
		if rates[i].CreatedAt.IsZero() {
			rates[i].CreatedAt = now
		}
		rates[i].UpdatedAt = rates[i].CreatedAt
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk insert transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO rates (id, image_url, transcript, status, file_name, created_at, updated_at)
VALUES (:id, :image_url, :transcript, :status, :file_name, :created_at, :updated_at)`
	for start := 0; start < len(rates); start += batchSize {
		end := start + batchSize
		if end > len(rates) {
			end = len(rates)
		}
		if _, err = tx.NamedExecContext(ctx, query, rates[start:end]); err != nil {
			return fmt.Errorf("insert rates %d-%d: %w", start, end, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk insert: %w", err)
	}
	return nil
}

// History returns items the user touched, newest first, with total count.
// The reviewer view lists only items the user resolved.
func (r *RateRepository) History(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, int, error) {
	var where string
	if filter.ReviewerView {
		where = fmt.Sprintf("r.reviewed_by_id = $1 AND r.status IN ('%s', '%s')", models.RateStatusApproved, models.RateStatusRejected)
	} else {
		where = "(r.modified_by_id = $1 OR r.reviewed_by_id = $1)"
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf(`SELECT r.id, r.image_url, r.transcript, r.annotated_transcript, r.rating, r.status, r.file_name,
       r.created_at, r.updated_at, r.modified_by_id, r.annotated_at, r.reviewed_by_id, r.reviewed_at,
       r.claimed_by_id, r.claim_expires_at,
       m.username AS modified_by_username, rv.username AS reviewed_by_username
FROM rates r
LEFT JOIN users m ON m.id = r.modified_by_id
LEFT JOIN users rv ON rv.id = r.reviewed_by_id
WHERE %s
ORDER BY r.created_at DESC, r.id DESC
LIMIT %d OFFSET %d`, where, limit, offset)

	var entries []models.HistoryEntry
	if err := r.db.SelectContext(ctx, &entries, listQuery, filter.UserID); err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM rates r WHERE "+where, filter.UserID); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}
	return entries, total, nil
}

// Stats counts items per lifecycle stage. Claims are counted live at now.
func (r *RateRepository) Stats(ctx context.Context, now time.Time) (*models.QueueStats, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE status = 'PENDING' AND rating IS NULL) AS awaiting_annotation,
	COUNT(*) FILTER (WHERE status = 'PENDING' AND rating IS NOT NULL) AS awaiting_review,
	COUNT(*) FILTER (WHERE status = 'APPROVED') AS approved,
	COUNT(*) FILTER (WHERE status = 'REJECTED') AS rejected,
	COUNT(*) FILTER (WHERE status = 'PENDING' AND claimed_by_id IS NOT NULL AND claim_expires_at > $1) AS claimed,
	COUNT(*) AS total
FROM rates`
	var stats models.QueueStats
	if err := r.db.GetContext(ctx, &stats, query, now); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &stats, nil
}
