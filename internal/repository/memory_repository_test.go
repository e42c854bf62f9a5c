package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asafaviv-devops/image-gallery/internal/config"
	"github.com/asafaviv-devops/image-gallery/internal/domain"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository("test-bucket")
	repo.now = func() time.Time { return time.Unix(1700000000, 0) }
	ctx := context.Background()

	payload := []byte("png-bytes")
	require.NoError(t, repo.Put(ctx, "images/a", payload, "image/png"))
	payload[0] = 'X'

	data, err := repo.Get(ctx, "images/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data, "stored bytes must not alias the caller's slice")

	ct, ok := repo.ContentType("images/a")
	assert.True(t, ok)
	assert.Equal(t, "image/png", ct)

	require.NoError(t, repo.Put(ctx, "images/b", nil, "image/png"))
	require.NoError(t, repo.Put(ctx, "metadata/a.json", []byte("{}"), "application/json"))

	keys, err := repo.ListByPrefix(ctx, "images/")
	require.NoError(t, err)
	assert.Equal(t, []string{"images/a", "images/b"}, keys)

	u, err := repo.Presign(ctx, "images/a", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "memory://test-bucket/images/a?expires=1700003600", u)

	require.NoError(t, repo.DeleteMany(ctx, []string{"images/a", "images/missing"}))
	_, err = repo.Get(ctx, "images/a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.NoError(t, repo.HeadBucket(ctx))
}

func TestMemoryRepositoryCancelledContext(t *testing.T) {
	repo := NewMemoryRepository("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, repo.Put(ctx, "k", nil, ""), domain.ErrStorageUnavailable)
	assert.ErrorIs(t, repo.HeadBucket(ctx), context.Canceled)
}

func TestNewSelectsDriver(t *testing.T) {
	store, err := New(context.Background(), &config.S3Config{Driver: config.DriverMemory}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, store)

	_, err = New(context.Background(), &config.S3Config{Driver: "ftp"}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	assert.Nil(t, chunk(nil, 2))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunk([]string{"a", "b", "c"}, 2))
	assert.Equal(t, [][]string{{"a", "b"}}, chunk([]string{"a", "b"}, 2))
}
