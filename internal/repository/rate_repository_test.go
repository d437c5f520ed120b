package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/transcript-review-api/internal/models"
)

var rateRowColumns = []string{"id", "image_url", "transcript", "annotated_transcript", "rating", "status", "file_name", "created_at", "updated_at",
	"modified_by_id", "annotated_at", "reviewed_by_id", "reviewed_at", "claimed_by_id", "claim_expires_at"}

func rateRow(id string, rating interface{}, status models.RateStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(rateRowColumns).
		AddRow(id, "http://a", "hello", nil, rating, string(status), "batch_1_1", now, now, nil, nil, nil, nil, nil, nil)
}

func TestClaimNextAnnotationQueue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	now := time.Now()
	expires := now.Add(15 * time.Minute)
	mock.ExpectQuery(`UPDATE rates SET claimed_by_id = \$1, claim_expires_at = \$2\s+WHERE id = \(\s+SELECT id FROM rates\s+WHERE status = 'PENDING' AND rating IS NULL AND \(claimed_by_id IS NULL OR claimed_by_id = \$1 OR claim_expires_at < \$3\)\s+ORDER BY CASE WHEN claimed_by_id = \$1 THEN 0 ELSE 1 END, created_at ASC, id ASC\s+LIMIT 1\s+FOR UPDATE SKIP LOCKED`).
		WithArgs("annotator-1", expires, now).
		WillReturnRows(rateRow("rate-1", nil, models.RateStatusPending))

	rate, err := repo.ClaimNext(context.Background(), ClaimParams{UserID: "annotator-1", Stage: models.StageAnnotation, Now: now, ExpiresAt: expires})
	require.NoError(t, err)
	assert.Equal(t, "rate-1", rate.ID)
	assert.Nil(t, rate.Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextReviewQueueExcludesOwnWork(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'PENDING' AND rating IS NOT NULL AND (modified_by_id IS NULL OR modified_by_id <> $1) AND (claimed_by_id IS NULL")).
		WillReturnRows(rateRow("rate-2", 7, models.RateStatusPending))

	rate, err := repo.ClaimNext(context.Background(), ClaimParams{UserID: "reviewer-1", Stage: models.StageReview, ExcludeModifiedBy: true, Now: time.Now(), ExpiresAt: time.Now()})
	require.NoError(t, err)
	require.NotNil(t, rate.Rating)
	assert.Equal(t, 7, *rate.Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextEmptyQueue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE rates SET claimed_by_id")).WillReturnRows(sqlmock.NewRows(rateRowColumns))

	_, err := repo.ClaimNext(context.Background(), ClaimParams{UserID: "u", Stage: models.StageReview, Now: time.Now(), ExpiresAt: time.Now()})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextUnsupportedStage(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	_, err := repo.ClaimNext(context.Background(), ClaimParams{UserID: "u", Stage: models.StageResolved})
	assert.Error(t, err)
}

func TestAnnotateRequiresUnratedPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status = 'PENDING' AND rating IS NULL AND (claimed_by_id IS NULL OR claimed_by_id = $4 OR claim_expires_at < $5)")).
		WithArgs("rate-1", 7, nil, "annotator-1", now).
		WillReturnRows(rateRow("rate-1", 7, models.RateStatusPending))

	rate, err := repo.Annotate(context.Background(), models.RateAnnotation{RateID: "rate-1", AnnotatorID: "annotator-1", Rating: 7, AnnotatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, 7, *rate.Rating)
	assert.Equal(t, models.RateStatusPending, rate.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnotateNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE rates SET rating = $2")).WillReturnRows(sqlmock.NewRows(rateRowColumns))

	_, err := repo.Annotate(context.Background(), models.RateAnnotation{RateID: "rate-1", AnnotatorID: "a", Rating: 3, AnnotatedAt: time.Now()})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReviewRequiresRatedPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status = 'PENDING' AND rating IS NOT NULL AND (claimed_by_id IS NULL OR claimed_by_id = $3 OR claim_expires_at < $4)")).
		WithArgs("rate-1", models.RateStatusRejected, "reviewer-1", now).
		WillReturnRows(rateRow("rate-1", 7, models.RateStatusRejected))

	rate, err := repo.Review(context.Background(), models.RateReview{RateID: "rate-1", ReviewerID: "reviewer-1", Status: models.RateStatusRejected, ReviewedAt: now})
	require.NoError(t, err)
	assert.Equal(t, models.RateStatusRejected, rate.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewExcludesOwnAnnotation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("AND (modified_by_id IS NULL OR modified_by_id <> $3)")).
		WithArgs("rate-1", models.RateStatusApproved, "reviewer-1", now).
		WillReturnRows(sqlmock.NewRows(rateRowColumns))

	_, err := repo.Review(context.Background(), models.RateReview{RateID: "rate-1", ReviewerID: "reviewer-1", Status: models.RateStatusApproved, ReviewedAt: now, ExcludeModifiedBy: true})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewDatabaseError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE rates SET status = $2")).WillReturnError(errors.New("connection reset"))

	_, err := repo.Review(context.Background(), models.RateReview{RateID: "rate-1", ReviewerID: "r", Status: models.RateStatusApproved, ReviewedAt: time.Now()})
	require.Error(t, err)
	assert.NotErrorIs(t, err, sql.ErrNoRows)
}

func TestRelease(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE rates SET claimed_by_id = NULL, claim_expires_at = NULL WHERE id = $1 AND claimed_by_id = $2")).
		WithArgs("rate-1", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rates SET claimed_by_id = NULL")).
		WithArgs("rate-1", "u-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Release(context.Background(), "rate-1", "u-1"))
	assert.ErrorIs(t, repo.Release(context.Background(), "rate-1", "u-2"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkCreateChunksInOneTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	rates := []models.Rate{
		{ImageURL: "http://a", Transcript: "hello", FileName: "batch_1_1"},
		{ImageURL: "http://b", Transcript: "world", FileName: "batch_1_2"},
		{ImageURL: "http://c", Transcript: "again", FileName: "batch_1_3"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rates (id, image_url, transcript, status, file_name, created_at, updated_at)")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rates")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.BulkCreate(context.Background(), rates, 2))
	for _, rate := range rates {
		assert.NotEmpty(t, rate.ID)
		assert.Equal(t, models.RateStatusPending, rate.Status)
		assert.Nil(t, rate.Rating)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkCreateRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rates")).WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.BulkCreate(context.Background(), []models.Rate{{ImageURL: "http://a", Transcript: "x", FileName: "f"}}, 0)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryReviewerView(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	now := time.Now()
	columns := append(append([]string{}, rateRowColumns...), "modified_by_username", "reviewed_by_username")
	rows := sqlmock.NewRows(columns).
		AddRow("rate-1", "http://a", "hello", nil, 7, "APPROVED", "batch_1_1", now, now, "a-1", now, "r-1", now, nil, nil, "anna", "rick")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.reviewed_by_id = $1 AND r.status IN ('APPROVED', 'REJECTED')\nORDER BY r.created_at DESC, r.id DESC\nLIMIT 50 OFFSET 0")).
		WithArgs("r-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM rates r WHERE r.reviewed_by_id = $1")).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	entries, total, err := repo.History(context.Background(), models.HistoryFilter{UserID: "r-1", ReviewerView: true})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "rick", *entries[0].ReviewedByUsername)
	assert.Equal(t, "anna", *entries[0].ModifiedByUsername)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryAnnotatorView(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE (r.modified_by_id = $1 OR r.reviewed_by_id = $1)\nORDER BY r.created_at DESC, r.id DESC\nLIMIT 10 OFFSET 20")).
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows(rateRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM rates r WHERE (r.modified_by_id = $1 OR r.reviewed_by_id = $1)")).
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	entries, total, err := repo.History(context.Background(), models.HistoryFilter{UserID: "a-1", Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRateRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE status = 'PENDING' AND rating IS NULL) AS awaiting_annotation")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"awaiting_annotation", "awaiting_review", "approved", "rejected", "claimed", "total"}).
			AddRow(4, 3, 2, 1, 1, 10))

	stats, err := repo.Stats(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{AwaitingAnnotation: 4, AwaitingReview: 3, Approved: 2, Rejected: 1, Claimed: 1, Total: 10}, *stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
