package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"homedash/internal/config"
	"homedash/internal/handlers/backup"
	"homedash/internal/handlers/risk"
	"homedash/internal/handlers/system"
	"homedash/internal/logger"
	"homedash/internal/services/metrics"
	"homedash/internal/services/montecarlo"
	"homedash/internal/services/portfolio"
	"homedash/internal/services/scheduler"
	"homedash/internal/services/storage"
	"homedash/internal/version"
)

// requestTimeout applies to every route except the websocket stream
const requestTimeout = 60 * time.Second

var (
	cfg        *config.Config
	log        = zerolog.Nop()
	store      *storage.Storage
	portfolios *portfolio.Manager
	runner     *montecarlo.Runner
	sched      *scheduler.Scheduler
)

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		// Logger is not configured yet
		log = logger.New(logger.Config{Level: "info", Pretty: true})
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.Debug})
	logger.SetGlobalLogger(log)

	info := version.Get()
	log.Info().
		Str("version", info.Version).
		Str("revision", info.ShortRevision()).
		Str("addr", cfg.ListenAddr).
		Str("data_dir", cfg.DataDirectory).
		Msg("Starting portfolio risk dashboard")
	for _, warning := range info.Warnings() {
		log.Warn().Msg(warning)
	}

	if err := SetupDependencies(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up dependencies")
	}

	if sched != nil {
		sched.Start()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()
	log.Info().Str("addr", cfg.ListenAddr).Msg("Server started")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("Shutting down server...")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	store.Lock()
	log.Info().Msg("Server stopped")
}

// SetupDependencies builds the services from configuration and hands them to
// the route handlers
func SetupDependencies(c *config.Config) error {
	cfg = c

	var err error
	store, err = storage.New(cfg.DataDirectory, log)
	if err != nil {
		return err
	}

	if store.IsEncrypted() {
		if cfg.Password == "" {
			log.Warn().Msg("Storage is encrypted; unlock it via POST /storage/unlock")
		} else if err := store.Unlock(cfg.Password); err != nil {
			log.Error().Err(err).Msg("Could not unlock storage with DASH_PASSWORD")
		}
	}

	portfolios = portfolio.NewManager(store, cfg.PortfolioFile, cfg.SimulationConfig(), log)
	runner = montecarlo.NewRunner(log, montecarlo.WithRunnerBucketCount(cfg.BucketCount))

	risk.Initialize(portfolios, runner, metrics.New(), cfg.CORSOrigins, log)
	backup.Initialize(store, log)
	system.Initialize(store, runner, log)

	sched = nil
	if cfg.RefreshSchedule != "" {
		sched = scheduler.New(log)
		if err := sched.AddJob(cfg.RefreshSchedule, scheduler.NewRefreshJob(portfolios, runner, log)); err != nil {
			return err
		}
	}

	return nil
}

// SetupRouter creates the router with middleware and all routes
func SetupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/risk", http.StatusTemporaryRedirect)
	})

	// Websocket connections outlive any request timeout
	risk.RegisterStreamRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.Compress(5))

		risk.RegisterRoutes(r)
		backup.RegisterRoutes(r)
		system.RegisterRoutes(r)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
