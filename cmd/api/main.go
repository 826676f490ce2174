package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/lessslie/Pelu-PetShop/internal/config"
	"github.com/lessslie/Pelu-PetShop/internal/email"
	appointmentHandler "github.com/lessslie/Pelu-PetShop/internal/handler/appointment"
	"github.com/lessslie/Pelu-PetShop/internal/handler/health"
	paymentHandler "github.com/lessslie/Pelu-PetShop/internal/handler/payment"
	pricingHandler "github.com/lessslie/Pelu-PetShop/internal/handler/pricing"
	"github.com/lessslie/Pelu-PetShop/internal/middleware"
	"github.com/lessslie/Pelu-PetShop/internal/provider/mercadopago"
	"github.com/lessslie/Pelu-PetShop/internal/repository/postgres"
	"github.com/lessslie/Pelu-PetShop/internal/router"
	appointmentService "github.com/lessslie/Pelu-PetShop/internal/service/appointment"
	"github.com/lessslie/Pelu-PetShop/internal/service/notification"
	paymentService "github.com/lessslie/Pelu-PetShop/internal/service/payment"
	pricingService "github.com/lessslie/Pelu-PetShop/internal/service/pricing"
	"github.com/lessslie/Pelu-PetShop/pkg/auth"
	"github.com/lessslie/Pelu-PetShop/pkg/logger"
	"github.com/lessslie/Pelu-PetShop/pkg/messaging"
	"github.com/lessslie/Pelu-PetShop/pkg/messaging/redis"
	"github.com/lessslie/Pelu-PetShop/pkg/metrics"
	"github.com/lessslie/Pelu-PetShop/pkg/validator"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log.Logger = appLog.Zerolog()

	gin.SetMode(cfg.Server.Mode)
	if err := validator.RegisterWithGin(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.URL()); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	// Domain events go to Redis when enabled
	var broker messaging.Broker = messaging.NopBroker{}
	if cfg.Redis.Enabled {
		broker, err = redis.NewRedisBroker(ctx, redis.Config{URL: cfg.Redis.URL}, appLog.Component("redis").Zerolog())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
	}
	defer broker.Close()
	publisher := messaging.NewEventPublisher(broker, cfg.Redis.EventChannel)

	m := metrics.NewMetrics("petshop", prometheus.DefaultRegisterer)

	// Initialize repositories
	appointmentRepo := postgres.NewAppointmentRepository(db)
	userRepo := postgres.NewUserRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	priceRepo := postgres.NewPriceRepository(db)

	// Initialize services
	notifier := notification.NewService(email.NewService(cfg.Mail), appLog)
	provider := mercadopago.NewClient(cfg.MercadoPago, mercadopago.URLs{
		FrontendURL: cfg.Server.FrontendURL,
		BackendURL:  cfg.Server.PublicURL,
	}, m, appLog)
	pricingSvc := pricingService.NewService(priceRepo, cfg.Pricing.CacheTTL, appLog, m)
	paymentSvc := paymentService.NewService(appointmentRepo, orderRepo, userRepo, provider, notifier, publisher, m, appLog)
	appointmentSvc := appointmentService.NewService(appointmentRepo, userRepo, pricingSvc, notifier, paymentSvc, publisher, m, appLog)

	// Setup router
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AdminRole)
	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		health.NewHandler(db, prometheus.DefaultGatherer),
		appointmentHandler.NewHandler(appointmentSvc),
		paymentHandler.NewHandler(paymentSvc),
		pricingHandler.NewHandler(pricingSvc),
		m,
		router.RouterConfig{
			RequestTimeout:   cfg.Server.RequestTimeout,
			CORSOrigins:      cfg.CORS.AllowedOrigins,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit: middleware.RateLimiterConfig{
				Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
				Burst: cfg.RateLimit.Burst,
			},
		},
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server exited properly")
}
