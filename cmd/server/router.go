package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Skufu/pneumoscan/internal/api"
)

type routerOptions struct {
	Handler    *api.Handler
	Checks     map[string]HealthChecker
	ModelReady func() bool
	Gatherer   prometheus.Gatherer
	Origins    []string
	MaxBody    int64
	// TrustedProxies lists the peers whose X-Forwarded-For is honoured. Empty
	// means the socket address is always the client IP.
	TrustedProxies []string
}

func setupRouter(opts routerOptions) (*gin.Engine, error) {
	maxBody := opts.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	modelReady := opts.ModelReady
	if modelReady == nil {
		modelReady = func() bool { return false }
	}

	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(
		gin.Logger(),
		gin.Recovery(),
		limitBodySize(maxBody),
		cors.New(corsConfig(opts.Origins)),
	)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":         "Pneumonia screening API",
			"version":      version,
			"status":       "ok",
			"model_loaded": modelReady(),
		})
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "model": modelStatus(modelReady())})
	})

	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{"model": modelStatus(modelReady())}
		healthy := modelReady()
		if _, ok := opts.Checks["db"]; !ok {
			body["db"] = "disabled"
		}

		names := make([]string, 0, len(opts.Checks))
		for name := range opts.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := opts.Checks[name].Ping(ctx); err != nil {
				body[name] = fmt.Sprintf("unhealthy: %v", err)
				healthy = false
				continue
			}
			body[name] = "ok"
		}

		if !healthy {
			body["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "ok"
		c.JSON(http.StatusOK, body)
	})

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	if opts.Handler != nil {
		opts.Handler.Routes(router)
	}

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func modelStatus(ready bool) string {
	if ready {
		return "loaded"
	}
	return "unavailable"
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
