package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"procurement-signals/internal/service"
)

// NewRouter wires the /api/v1 routes over svc.
func NewRouter(svc *service.Service, allowedOrigins []string, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	log := logger.With().Str("component", "api").Logger()

	router.Use(requestLogger(log))
	router.Use(gin.Recovery())
	corsConfig := cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalized, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowCredentials = false
			corsConfig.AllowOriginFunc = func(string) bool { return true }
		} else if len(normalized) > 0 {
			corsConfig.AllowOrigins = normalized
		}
	}
	router.Use(cors.New(corsConfig))

	h := &handler{svc: svc, logger: log}
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.health)
		v1.GET("/recommendations", h.recommendations)
		v1.GET("/forecast/:material", h.forecast)
		v1.GET("/vendor-risk/:material", h.vendorRisk)
		v1.GET("/insights/:material", h.insights)
		v1.GET("/opportunity-score/:material", h.opportunityScore)
		v1.GET("/preferred-supplier/:material", h.preferredSupplier)
		v1.GET("/supplier-comparisons", h.supplierComparisons)
		v1.GET("/negotiations", h.negotiations)
		v1.GET("/dashboard", h.dashboard)

		alerts := v1.Group("/alerts")
		{
			alerts.GET("", h.listAlerts)
			alerts.GET("/summary", h.alertSummary)
			alerts.POST("/:id/read", h.markRead)
			alerts.POST("/mark-all-read", h.markAllRead)
			alerts.POST("/trigger", h.triggerAlert)
			alerts.POST("/check", h.checkAlerts)
		}

		orders := v1.Group("/purchase-orders")
		{
			orders.GET("", h.listPurchaseOrders)
			orders.POST("", h.createPurchaseOrder)
			orders.GET("/:number", h.getPurchaseOrder)
			orders.POST("/:number/status", h.updatePurchaseOrderStatus)
		}
	}
	return router
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request processed")
	}
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
