package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const triggerSecretHeader = "X-Trigger-Secret"

// NewServer creates a new HTTP engine with all routes configured
func NewServer(handler *Handler, triggerSecret string, allowedHosts []string, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/metrics"},
	}))

	r.Use(gin.Recovery())
	r.Use(allowedHostsMiddleware(allowedHosts))

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, "+triggerSecretHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"detail": "Method not allowed"})
	})

	setupRoutes(r, handler, triggerSecret)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, triggerSecret string) {
	r.GET("/", handler.GetHome)
	r.GET("/health/", handler.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/workflows/", handler.ListWorkflows)
		api.GET("/status/", handler.GetStatus)
	}

	r.POST("/trigger/:source/:country/", triggerAuthMiddleware(triggerSecret), handler.TriggerCollection)

	if triggerSecret == "" {
		slog.Warn("Trigger endpoint locked (TRIGGER_SECRET not set)")
	}

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// triggerAuthMiddleware rejects requests whose X-Trigger-Secret header is
// absent or differs from the configured secret. An empty secret rejects all.
func triggerAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(triggerSecretHeader)

		if secret == "" || provided == "" ||
			subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			slog.Warn("Trigger rejected", "source", c.Param("source"), "client_ip", c.ClientIP())
			c.String(http.StatusForbidden, "Forbidden")
			c.Abort()
			return
		}

		c.Next()
	}
}

// allowedHostsMiddleware checks the Host header. "*" allows any host and an
// entry with a leading dot matches the domain and all its subdomains.
func allowedHostsMiddleware(allowed []string) gin.HandlerFunc {
	patterns := make([]string, 0, len(allowed))
	for _, h := range allowed {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "*" {
			return func(c *gin.Context) { c.Next() }
		}
		if h != "" {
			patterns = append(patterns, h)
		}
	}

	return func(c *gin.Context) {
		if hostAllowed(c.Request.Host, patterns) {
			c.Next()
			return
		}
		slog.Warn("Invalid host header", "host", c.Request.Host)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid host header"})
		c.Abort()
	}
}

func hostAllowed(host string, patterns []string) bool {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")

	for _, p := range patterns {
		if strings.HasPrefix(p, ".") {
			if host == p[1:] || strings.HasSuffix(host, p) {
				return true
			}
			continue
		}
		if host == p {
			return true
		}
	}
	return false
}
