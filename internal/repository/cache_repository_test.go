package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/transcript-review-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, zap.NewNop())
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "user:1", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "user:1", map[string]string{"id": "1"}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "user:1"))
	assert.NoError(t, repo.Close())
}

func TestCacheRepositoryCloseReleasesClient(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	repo := NewCacheRepository(client, zap.NewNop())

	require.NoError(t, repo.Close())
	assert.ErrorIs(t, client.Ping(context.Background()).Err(), redis.ErrClosed)
}
