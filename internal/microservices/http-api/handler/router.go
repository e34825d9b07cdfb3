package handler

import (
	"log/slog"
	"net/http"

	"newsdist/internal/microservices/http-api/middleware"
	"newsdist/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	News service.NewsService
	// Auth nil leaves the admin routes open.
	Auth service.AuthService
	// Events nil disables /api/v1/events.
	Events EventReader
	// Gatherer nil disables /metrics.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter builds the admin API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(cfg.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"subscribers": len(cfg.News.ListSubscribers()),
		})
	})
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	protect := func(scopes ...string) []gin.HandlerFunc {
		if cfg.Auth == nil {
			return nil
		}
		return []gin.HandlerFunc{middleware.AuthMiddleware(cfg.Auth), middleware.RequireScopes(scopes...)}
	}
	route := func(h gin.HandlerFunc, scopes ...string) []gin.HandlerFunc {
		return append(protect(scopes...), h)
	}

	news := NewNewsHandler(cfg.News)
	api := r.Group("/api/v1")
	{
		api.POST("/news", route(news.Publish, service.ScopePublish)...)
		api.GET("/subscribers", route(news.ListSubscribers, service.ScopeSubscribersRead)...)
		api.DELETE("/subscribers/:name", route(news.RemoveSubscriber, service.ScopeSubscribersWrite)...)

		if cfg.Events != nil {
			events := NewEventHandler(cfg.Events)
			api.GET("/events", route(events.List, service.ScopeEventsRead)...)
		}
	}

	return r
}
