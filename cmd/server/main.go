package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/darkden-lab/relay/internal/auth"
	"github.com/darkden-lab/relay/internal/config"
	"github.com/darkden-lab/relay/internal/db"
	"github.com/darkden-lab/relay/internal/directory"
	"github.com/darkden-lab/relay/internal/featureflag"
	"github.com/darkden-lab/relay/internal/httputil"
	"github.com/darkden-lab/relay/internal/identity"
	"github.com/darkden-lab/relay/internal/logging"
	mw "github.com/darkden-lab/relay/internal/middleware"
	"github.com/darkden-lab/relay/internal/notifications"
	"github.com/darkden-lab/relay/internal/pubsub"
	"github.com/darkden-lab/relay/internal/ws"
)

// orgCacheTTL bounds how long an external group ID stays resolved in memory.
const orgCacheTTL = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer database.Close()
	if err := db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Event bus
	broker, err := pubsub.NewBroker(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("broker", cfg.PubSubBroker).Msg("failed to create broker")
	}
	bus := pubsub.NewBus(broker, pubsub.NewMetrics(reg))
	log.Info().Str("broker", cfg.PubSubBroker).Msg("event bus ready")

	// Feature flags
	flags, closeFlags := newFlagSource(cfg)
	defer closeFlags()

	// Services
	dir := directory.NewCached(directory.NewStore(database.Pool), orgCacheTTL)
	publisher := identity.NewPublisher(bus, dir, flags)
	service := notifications.NewService(
		notifications.NewStore(database.Pool),
		dir,
		notifications.DefaultBuilders(notifications.NewContentStore(database.Pool)),
		notifications.NewMetrics(reg),
	)
	hub := ws.NewHub(reg)
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	// Router
	r := mux.NewRouter()
	r.Use(mw.RequestLogger)
	r.Use(mw.RateLimitMiddleware(20, 40))

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthzHandler(bus, cfg.HealthCheckTimeout)).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(mw.AuthMiddleware(jwtService))
	notifications.NewHandlers(service).RegisterRoutes(protected)
	notifications.NewWSHandler(bus, hub, cfg.AllowedOrigins).RegisterRoutes(protected)
	identity.NewHandlers(publisher).RegisterRoutes(protected)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        mw.CORS(cfg.AllowedOrigins)(r),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		hub.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	if err := bus.Close(); err != nil {
		log.Error().Err(err).Msg("closing event bus")
	}
	log.Info().Msg("server stopped")
}

// newFlagSource combines the flags switched on in config with, when Redis is
// available, the runtime flags stored there.
func newFlagSource(cfg *config.Config) (featureflag.Source, func()) {
	sources := featureflag.Any{featureflag.NewStatic(cfg.FeatureFlags...)}
	if cfg.PubSubBroker != config.BrokerRedis {
		return sources, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	sources = append(sources, featureflag.NewRedisSource(client, cfg.FeatureFlagCacheTTL))
	return sources, func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("closing feature flag client")
		}
	}
}

// healthzHandler reports ok once an event makes the round trip through the
// broker.
func healthzHandler(bus *pubsub.Bus, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pubsub.HealthCheck(r.Context(), bus, timeout); err != nil {
			log.Warn().Err(err).Msg("health check failed")
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
