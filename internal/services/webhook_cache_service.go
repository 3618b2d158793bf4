package services

import (
	"context"
	"fmt"
	"sync"

	"go-relayer/internal/metrics"
	"go-relayer/internal/models"
	"go-relayer/internal/repository"
)

// WebhookCacheService process-wide cache of active webhook subscriptions by
// event type. Cache-aside: empty at start, populated lazily per key, each
// recompute overwrites the key wholesale. The cache has no expiry of its own;
// the subscription admin flow forces a refresh after every edit.
type WebhookCacheService struct {
	repo repository.WebhookSubscriptionRepository

	mu      sync.RWMutex
	entries map[string][]models.WebhookSubscription
}

// NewWebhookCacheService creates an empty webhook cache
func NewWebhookCacheService(repo repository.WebhookSubscriptionRepository) *WebhookCacheService {
	return &WebhookCacheService{
		repo:    repo,
		entries: make(map[string][]models.WebhookSubscription),
	}
}

// Get returns the active subscriptions for an event type. With useCache a
// present key is served as-is, even when it holds an empty list. On a miss,
// or when useCache is false, the entire subscription set is reloaded from
// the store, filtered to active rows for the key, and the entry overwritten
// before returning. Concurrent recomputes for the same key are idempotent;
// last writer wins.
func (s *WebhookCacheService) Get(ctx context.Context, eventType string, useCache bool) ([]models.WebhookSubscription, error) {
	if useCache {
		s.mu.RLock()
		cached, ok := s.entries[eventType]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}
	}

	return s.reload(ctx, eventType)
}

// Refresh forces a reload for an event type, bypassing the cache. Invoked
// by the subscription admin flow after every create/update/delete.
func (s *WebhookCacheService) Refresh(ctx context.Context, eventType string) error {
	_, err := s.reload(ctx, eventType)
	return err
}

// Invalidate drops every cached entry. The next Get per key repopulates.
func (s *WebhookCacheService) Invalidate() {
	s.mu.Lock()
	s.entries = make(map[string][]models.WebhookSubscription)
	s.mu.Unlock()
}

// reload performs the full-table fetch and overwrites the entry for the key.
// The full fetch regardless of key is deliberate: subscription sets are
// small and change rarely.
func (s *WebhookCacheService) reload(ctx context.Context, eventType string) ([]models.WebhookSubscription, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook subscriptions: %w", err)
	}
	metrics.WebhookCacheReloads.Inc()

	filtered := make([]models.WebhookSubscription, 0, len(all))
	for _, sub := range all {
		if sub.Active && sub.EventType == eventType {
			filtered = append(filtered, *sub)
		}
	}

	s.mu.Lock()
	s.entries[eventType] = filtered
	s.mu.Unlock()

	return filtered, nil
}
