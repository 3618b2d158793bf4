package handlers

import (
	"net/http"

	"go-relayer/internal/services"
	"go-relayer/internal/utils"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades wallet subscribers onto the push service
type WebSocketHandler struct {
	pushService *services.WebSocketPushService
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(pushService *services.WebSocketPushService) *WebSocketHandler {
	return &WebSocketHandler{pushService: pushService}
}

// Subscribe handles GET /api/v1/ws/wallets/:address, streaming every
// transaction status transition for the wallet
func (h *WebSocketHandler) Subscribe(c *gin.Context) {
	wallet := c.Param("address")
	if !utils.IsEvmAddress(wallet) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}

	h.pushService.HandleWebSocket(c.Writer, c.Request, wallet)
}

// Stats handles GET /api/v1/admin/ws/stats
func (h *WebSocketHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_connections": h.pushService.GetActiveConnections(),
	})
}
