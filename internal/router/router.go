package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lessslie/Pelu-PetShop/internal/middleware"
	"github.com/lessslie/Pelu-PetShop/pkg/metrics"
)

const APIVersion = "1.0"

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// AdminHandler mounts routes where some endpoints need the admin guard.
type AdminHandler interface {
	RegisterRoutes(r *gin.RouterGroup, admin gin.HandlerFunc)
}

type Router struct {
	engine       *gin.Engine
	auth         *middleware.AuthMiddleware
	healthH      Handler
	appointmentH Handler
	paymentH     Handler
	pricingH     AdminHandler
}

type RouterConfig struct {
	RequestTimeout   time.Duration
	CORSOrigins      []string
	MaxBodySize      int64
	RateLimitEnabled bool
	RateLimit        middleware.RateLimiterConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH Handler,
	appointmentH Handler,
	paymentH Handler,
	pricingH AdminHandler,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:       engine,
		auth:         auth,
		healthH:      healthH,
		appointmentH: appointmentH,
		paymentH:     paymentH,
		pricingH:     pricingH,
	}

	timeout := middleware.DefaultTimeoutConfig()
	if config.RequestTimeout > 0 {
		timeout.Duration = config.RequestTimeout
	}
	sizeLimit := middleware.DefaultSizeLimitConfig()
	if config.MaxBodySize > 0 {
		sizeLimit.MaxBodySize = config.MaxBodySize
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(m),
		middleware.Timeout(timeout),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(middleware.DefaultCORSConfig(config.CORSOrigins)),
		middleware.SizeLimit(sizeLimit),
	)

	if config.RateLimitEnabled {
		engine.Use(middleware.NewRateLimiter(config.RateLimit).RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(middleware.Version(APIVersion))

	r.healthH.RegisterRoutes(api)
	r.appointmentH.RegisterRoutes(api)
	r.paymentH.RegisterRoutes(api)
	r.pricingH.RegisterRoutes(api, r.auth.RequireAdmin())
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
