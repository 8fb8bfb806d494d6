package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/media-push/internal/handler"
	"github.com/jwalitptl/media-push/internal/handler/device"
	"github.com/jwalitptl/media-push/internal/handler/notification"
	"github.com/jwalitptl/media-push/internal/middleware"
	"github.com/jwalitptl/media-push/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(gin.IRouter)
}

type Router struct {
	engine        *gin.Engine
	h             *handler.Handler
	deviceH       Handler
	notificationH *notification.Handler
	config        RouterConfig
}

type RouterConfig struct {
	// RateLimit applies to webhook intake only; zero disables it.
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Metrics        *metrics.Metrics
	Mode           string
}

func NewRouter(
	h *handler.Handler,
	deviceH *device.Handler,
	notificationH *notification.Handler,
	config RouterConfig,
) *Router {
	if config.Mode == "" {
		config.Mode = gin.ReleaseMode
	}
	gin.SetMode(config.Mode)

	engine := gin.New()

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(config.Metrics),
		middleware.ErrorHandler(),
		middleware.Validation(middleware.DefaultValidationConfig()),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)

	return &Router{
		engine:        engine,
		h:             h,
		deviceH:       deviceH,
		notificationH: notificationH,
		config:        config,
	}
}

func (r *Router) Setup() {
	r.h.RegisterRoutes(r.engine)

	api := r.engine.Group("")
	api.Use(middleware.SizeLimit(middleware.SizeLimitConfig{MaxBodySize: r.config.MaxBodyBytes}))
	r.deviceH.RegisterRoutes(api)
	r.notificationH.RegisterRoutes(api)

	webhook := []gin.HandlerFunc{}
	if r.config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		webhook = append(webhook, limiter.RateLimit())
	}
	webhook = append(webhook, r.notificationH.Webhook)
	api.POST("/", webhook...)
}

// Engine returns the configured gin engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
