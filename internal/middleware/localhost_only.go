package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocalhostOnly restricts bootstrap endpoints (TOTP secret generation) to
// localhost plus an optional IP/CIDR whitelist
type LocalhostOnly struct {
	allowedIPs []string
}

// NewLocalhostOnly creates the restriction middleware
func NewLocalhostOnly(allowedIPs []string) *LocalhostOnly {
	return &LocalhostOnly{allowedIPs: allowedIPs}
}

// Restrict rejects requests from outside the whitelist
func (l *LocalhostOnly) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !l.isAllowedIP(clientIP) {
			// fall back to the direct connection address, proxies can leave
			// ClientIP empty or wrong when trusted proxies are misconfigured
			remoteIP, _, _ := net.SplitHostPort(c.Request.RemoteAddr)
			if remoteIP == clientIP || !isLocalhost(remoteIP) {
				logrus.WithFields(logrus.Fields{
					"client_ip": clientIP,
					"path":      c.Request.URL.Path,
					"method":    c.Request.Method,
				}).Warn("Rejected non-whitelisted access to restricted endpoint")

				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "this endpoint is only accessible from allowed addresses",
					"code":  "IP_NOT_ALLOWED",
				})
				return
			}
		}

		c.Next()
	}
}

func isLocalhost(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip == "localhost"
	}
	return parsed.IsLoopback()
}

func (l *LocalhostOnly) isAllowedIP(ip string) bool {
	if isLocalhost(ip) {
		return true
	}

	parsed := net.ParseIP(ip)
	for _, allowed := range l.allowedIPs {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}

		if strings.Contains(allowed, "/") {
			_, ipNet, err := net.ParseCIDR(allowed)
			if err != nil {
				logrus.WithField("cidr", allowed).Warn("Invalid CIDR in admin allowed_ips")
				continue
			}
			if parsed != nil && ipNet.Contains(parsed) {
				return true
			}
			continue
		}

		if allowedIP := net.ParseIP(allowed); allowedIP != nil && parsed != nil && allowedIP.Equal(parsed) {
			return true
		}
		if ip == allowed {
			return true
		}
	}
	return false
}
