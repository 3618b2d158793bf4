package handlers

import (
	"errors"
	"net/http"
	"time"

	"go-relayer/internal/models"
	"go-relayer/internal/repository"
	"go-relayer/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WebhookAdminHandler manages webhook subscriptions. Every mutation
// refreshes the notifier's cache so dispatch picks the change up without
// waiting for a natural miss.
type WebhookAdminHandler struct {
	repo  repository.WebhookSubscriptionRepository
	cache *services.WebhookCacheService
}

// NewWebhookAdminHandler creates a new WebhookAdminHandler
func NewWebhookAdminHandler(repo repository.WebhookSubscriptionRepository, cache *services.WebhookCacheService) *WebhookAdminHandler {
	return &WebhookAdminHandler{repo: repo, cache: cache}
}

// WebhookSubscriptionRequest create/update payload
type WebhookSubscriptionRequest struct {
	EventType string `json:"event_type" binding:"required"`
	URL       string `json:"url" binding:"required,url"`
	Secret    string `json:"secret"`
	Active    *bool  `json:"active"`
}

// List handles GET /api/v1/admin/webhooks
func (h *WebhookAdminHandler) List(c *gin.Context) {
	subs, err := h.repo.ListAll(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to list webhook subscriptions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "total": len(subs)})
}

// Create handles POST /api/v1/admin/webhooks
func (h *WebhookAdminHandler) Create(c *gin.Context) {
	var req WebhookSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	sub := &models.WebhookSubscription{
		ID:        uuid.New().String(),
		EventType: req.EventType,
		URL:       req.URL,
		Secret:    req.Secret,
		Active:    active,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := h.repo.Create(c.Request.Context(), sub); err != nil {
		logrus.WithError(err).Error("Failed to create webhook subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create subscription"})
		return
	}

	h.refreshCache(c, sub.EventType)
	c.JSON(http.StatusCreated, sub)
}

// Update handles PUT /api/v1/admin/webhooks/:id
func (h *WebhookAdminHandler) Update(c *gin.Context) {
	id := c.Param("id")

	sub, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found", "id": id})
			return
		}
		logrus.WithError(err).WithField("id", id).Error("Failed to load webhook subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}

	var req WebhookSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	previousEventType := sub.EventType
	sub.EventType = req.EventType
	sub.URL = req.URL
	if req.Secret != "" {
		sub.Secret = req.Secret
	}
	if req.Active != nil {
		sub.Active = *req.Active
	}
	sub.UpdatedAt = time.Now()

	if err := h.repo.Update(c.Request.Context(), sub); err != nil {
		logrus.WithError(err).WithField("id", id).Error("Failed to update webhook subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update subscription"})
		return
	}

	h.refreshCache(c, sub.EventType)
	if previousEventType != sub.EventType {
		h.refreshCache(c, previousEventType)
	}
	c.JSON(http.StatusOK, sub)
}

// Delete handles DELETE /api/v1/admin/webhooks/:id
func (h *WebhookAdminHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	sub, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found", "id": id})
			return
		}
		logrus.WithError(err).WithField("id", id).Error("Failed to load webhook subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}

	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		logrus.WithError(err).WithField("id", id).Error("Failed to delete webhook subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete subscription"})
		return
	}

	h.refreshCache(c, sub.EventType)
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

// Refresh handles POST /api/v1/admin/webhooks/refresh, forcing a full cache
// reload for one event type or dropping everything when none is given
func (h *WebhookAdminHandler) Refresh(c *gin.Context) {
	eventType := c.Query("event_type")
	if eventType == "" {
		h.cache.Invalidate()
		c.JSON(http.StatusOK, gin.H{"refreshed": "all"})
		return
	}

	if err := h.cache.Refresh(c.Request.Context(), eventType); err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Error("Failed to refresh webhook cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh cache"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": eventType})
}

func (h *WebhookAdminHandler) refreshCache(c *gin.Context, eventType string) {
	if err := h.cache.Refresh(c.Request.Context(), eventType); err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Warn("Webhook cache refresh failed after mutation")
	}
}
