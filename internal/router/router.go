package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"go-relayer/internal/config"
	"go-relayer/internal/handlers"
	"go-relayer/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// corsMiddleware CORS middleware
// Priority: Environment Variable > YAML Config > Default (*)
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowedOrigins := []string{"*"}
		allowCredentials := true
		maxAge := 3600

		if envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); envOrigins != "" {
			allowedOrigins = allowedOrigins[:0]
			for _, o := range strings.Split(envOrigins, ",") {
				if trimmed := strings.TrimSpace(o); trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		} else if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		}

		allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowed := range allowedOrigins {
				if strings.TrimSpace(allowed) == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")
		c.Next()
	}
}

// Handlers the full handler set the router mounts
type Handlers struct {
	Relay        *handlers.RelayHandler
	Transaction  *handlers.TransactionHandler
	Relayer      *handlers.RelayerHandler
	WebhookAdmin *handlers.WebhookAdminHandler
	AdminAuth    *handlers.AdminAuthHandler
	WebSocket    *handlers.WebSocketHandler
}

// SetupRouter builds the gin engine with all routes mounted
func SetupRouter(h *Handlers) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())

	var allowedIPs []string
	if config.AppConfig != nil {
		allowedIPs = config.AppConfig.Admin.AllowedIPs
	}
	localhostOnly := middleware.NewLocalhostOnly(allowedIPs)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "relayer",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		// relay intake
		v1.POST("/relayers/:relayerId/relay", h.Relay.Relay)

		// relayer configuration reads
		v1.GET("/relayers", h.Relayer.List)
		v1.GET("/relayers/:relayerId", h.Relayer.Get)

		// transaction status
		v1.GET("/transactions/:queueId", h.Transaction.GetStatus)
		v1.GET("/wallets/:address/transactions", h.Transaction.ListByWallet)

		// realtime status stream
		v1.GET("/ws/wallets/:address", h.WebSocket.Subscribe)

		// admin auth
		v1.POST("/admin/login", h.AdminAuth.Login)
		v1.POST("/admin/totp/generate", localhostOnly.Restrict(), h.AdminAuth.GenerateTOTPSecret)

		admin := v1.Group("/admin", middleware.RequireAdminAuth())
		{
			admin.POST("/relayers", h.Relayer.Create)
			admin.PUT("/relayers/:relayerId", h.Relayer.Update)

			admin.GET("/webhooks", h.WebhookAdmin.List)
			admin.POST("/webhooks", h.WebhookAdmin.Create)
			admin.PUT("/webhooks/:id", h.WebhookAdmin.Update)
			admin.DELETE("/webhooks/:id", h.WebhookAdmin.Delete)
			admin.POST("/webhooks/refresh", h.WebhookAdmin.Refresh)

			admin.DELETE("/transactions/:queueId", h.Transaction.Cancel)
			admin.GET("/ws/stats", h.WebSocket.Stats)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		logrus.WithField("path", c.Request.URL.Path).Debug("Route not found")
		c.JSON(http.StatusNotFound, gin.H{
			"message": "endpoint not found",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}
