package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go-relayer/internal/models"
	"go-relayer/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWebhookRepo struct {
	mu       sync.Mutex
	subs     []*models.WebhookSubscription
	listErr  error
	listHits int
}

func (f *fakeWebhookRepo) Create(ctx context.Context, sub *models.WebhookSubscription) error {
	return nil
}
func (f *fakeWebhookRepo) GetByID(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeWebhookRepo) Update(ctx context.Context, sub *models.WebhookSubscription) error {
	return nil
}
func (f *fakeWebhookRepo) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeWebhookRepo) ListAll(ctx context.Context) ([]*models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHits++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*models.WebhookSubscription, len(f.subs))
	copy(out, f.subs)
	return out, nil
}

func (f *fakeWebhookRepo) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listHits
}

func TestWebhookCacheGet(t *testing.T) {
	ctx := context.Background()

	t.Run("caches the reload including empty results", func(t *testing.T) {
		repo := &fakeWebhookRepo{}
		cache := NewWebhookCacheService(repo)

		subs, err := cache.Get(ctx, "transaction_mined", true)
		require.NoError(t, err)
		assert.Empty(t, subs)
		assert.Equal(t, 1, repo.hits())

		// present key is served as-is, even when empty
		_, err = cache.Get(ctx, "transaction_mined", true)
		require.NoError(t, err)
		assert.Equal(t, 1, repo.hits())
	})

	t.Run("filters to active rows of the event type", func(t *testing.T) {
		repo := &fakeWebhookRepo{subs: []*models.WebhookSubscription{
			{ID: "1", EventType: "transaction_mined", URL: "https://a.example", Active: true},
			{ID: "2", EventType: "transaction_mined", URL: "https://b.example", Active: false},
			{ID: "3", EventType: "transaction_errored", URL: "https://c.example", Active: true},
		}}
		cache := NewWebhookCacheService(repo)

		subs, err := cache.Get(ctx, "transaction_mined", true)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "1", subs[0].ID)
	})

	t.Run("useCache false always reloads", func(t *testing.T) {
		repo := &fakeWebhookRepo{}
		cache := NewWebhookCacheService(repo)

		_, err := cache.Get(ctx, "transaction_mined", false)
		require.NoError(t, err)
		_, err = cache.Get(ctx, "transaction_mined", false)
		require.NoError(t, err)
		assert.Equal(t, 2, repo.hits())
	})

	t.Run("reload picks up subscription changes", func(t *testing.T) {
		repo := &fakeWebhookRepo{}
		cache := NewWebhookCacheService(repo)

		subs, err := cache.Get(ctx, "transaction_mined", true)
		require.NoError(t, err)
		assert.Empty(t, subs)

		repo.mu.Lock()
		repo.subs = append(repo.subs, &models.WebhookSubscription{
			ID: "1", EventType: "transaction_mined", URL: "https://a.example", Active: true,
		})
		repo.mu.Unlock()

		// stale until forced
		subs, err = cache.Get(ctx, "transaction_mined", true)
		require.NoError(t, err)
		assert.Empty(t, subs)

		require.NoError(t, cache.Refresh(ctx, "transaction_mined"))
		subs, err = cache.Get(ctx, "transaction_mined", true)
		require.NoError(t, err)
		assert.Len(t, subs, 1)
	})

	t.Run("invalidate drops every key", func(t *testing.T) {
		repo := &fakeWebhookRepo{}
		cache := NewWebhookCacheService(repo)

		_, err := cache.Get(ctx, "transaction_mined", true)
		require.NoError(t, err)
		_, err = cache.Get(ctx, "transaction_errored", true)
		require.NoError(t, err)
		assert.Equal(t, 2, repo.hits())

		cache.Invalidate()

		_, err = cache.Get(ctx, "transaction_mined", true)
		require.NoError(t, err)
		assert.Equal(t, 3, repo.hits())
	})

	t.Run("store failure surfaces without caching", func(t *testing.T) {
		repo := &fakeWebhookRepo{listErr: errors.New("connection refused")}
		cache := NewWebhookCacheService(repo)

		_, err := cache.Get(ctx, "transaction_mined", true)
		assert.Error(t, err)

		repo.mu.Lock()
		repo.listErr = nil
		repo.mu.Unlock()

		// the failed reload cached nothing, next Get hits the store again
		subs, err := cache.Get(ctx, "transaction_mined", true)
		require.NoError(t, err)
		assert.Empty(t, subs)
		assert.Equal(t, 2, repo.hits())
	})
}
