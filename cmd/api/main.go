package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/app"
	"github.com/noah-isme/backend-kasir/internal/cache"
	"github.com/noah-isme/backend-kasir/internal/campaign"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/config"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/health"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/ratelimit"
	"github.com/noah-isme/backend-kasir/internal/returns"
	"github.com/noah-isme/backend-kasir/internal/sale"
	"github.com/noah-isme/backend-kasir/internal/security"
	"github.com/noah-isme/backend-kasir/internal/store/memory"
	"github.com/noah-isme/backend-kasir/internal/store/postgres"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

// persistence is what both store backends provide.
type persistence interface {
	sale.Store
	campaign.Repository
	inventory.Repository
	events.EventStore
}

func main() {
	cfg := config.MustLoad()

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "backend-kasir",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	probes := map[string]health.Probe{}

	var store persistence
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		store = memory.New()
	default:
		pool := connectPostgres(cfg, logger)
		defer pool.Close()
		probes["db"] = pool.Ping
		store = postgres.New(pool)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = connectRedis(cfg, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		logger.Warn().Msg("REDIS_URL not set; cache, return lock and idempotency are disabled")
	}

	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}
	validate := common.NewValidator()

	campaignSvc, err := campaign.NewService(campaign.ServiceConfig{
		Repository: store,
		Cache:      cache.New(redisClient, cfg.CampaignCacheTTL),
		Events:     bus,
		Logger:     logger.With().Str("component", "campaign").Logger(),
		Validator:  validate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("campaign service")
	}

	saleSvc, err := sale.NewService(sale.ServiceConfig{
		Store:      store,
		Campaigns:  campaignSvc,
		Rates:      pricing.Rates{GlobalPercent: cfg.TaxRatePercent, PerProduct: cfg.TaxRateOverrides},
		Events:     bus,
		Logger:     logger.With().Str("component", "sale").Logger(),
		Validator:  validate,
		BillPrefix: cfg.BillNumberPrefix,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("sale service")
	}

	var locker returns.Locker
	if redisClient != nil {
		locker = lock.Locker{R: redisClient}
	}
	returnSvc, err := returns.NewService(returns.ServiceConfig{
		Store:     store,
		Campaigns: campaignSvc,
		Locker:    locker,
		LockTTL:   cfg.ReturnLockTTL,
		Events:    bus,
		Logger:    logger.With().Str("component", "returns").Logger(),
		Validator: validate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("returns service")
	}

	inventorySvc, err := inventory.NewService(inventory.ServiceConfig{
		Repository: store,
		Logger:     logger.With().Str("component", "inventory").Logger(),
		Validator:  validate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("inventory service")
	}

	limiterStore, err := app.NewLimiterStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("rate limiter store")
	}
	writeLimiter, err := ratelimit.New(limiterStore, cfg.RateLimit)
	if err != nil {
		logger.Fatal().Err(err).Str("rate", cfg.RateLimit).Msg("parse RATE_LIMIT")
	}
	throttle := ratelimit.Handler{Limiter: writeLimiter, Logger: logger}.Middleware

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	campaignHandler := campaign.NewHandler(campaign.HandlerConfig{Service: campaignSvc})
	saleHandler := sale.NewHandler(sale.HandlerConfig{Service: saleSvc})
	returnHandler := returns.NewHandler(returns.HandlerConfig{Service: returnSvc})
	inventoryHandler := inventory.NewHandler(inventory.HandlerConfig{Service: inventorySvc})

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{HSTSMaxAge: 31536000}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	r.Use(tenant.NewResolver(cfg.TenantHeader, cfg.TenantRootDomain, cfg.DefaultTenant).Middleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", cfg.TenantHeader},
		ExposedHeaders: []string{"Location", "X-Total-Count", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if user := strings.TrimSpace(os.Getenv("SECURE_PPROF_BASIC_AUTH_USER")); user != "" {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, os.Getenv("SECURE_PPROF_BASIC_AUTH_PASS")))
	}

	healthHandler := health.Handler{Probes: probes, Timeout: cfg.ReadyTimeout}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/campaigns", func(c chi.Router) {
			c.Get("/", campaignHandler.List)
			c.Get("/current", campaignHandler.Current)
			c.Get("/{id}", campaignHandler.Get)
			c.With(throttle).Post("/", campaignHandler.Save)
		})

		v.Get("/products/{productId}/batches", inventoryHandler.List)
		v.With(throttle).Put("/batches/{id}", inventoryHandler.Put)

		v.Route("/sales", func(s chi.Router) {
			s.Post("/preview", saleHandler.Preview)
			s.Get("/{billNumber}", saleHandler.Get)
			s.Group(func(w chi.Router) {
				w.Use(throttle, idem.Middleware)
				w.Post("/", saleHandler.Complete)
				w.Post("/{billNumber}/returns", returnHandler.Process)
				w.Post("/{billNumber}/returns/{returnId}/undo", returnHandler.Undo)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("store", cfg.Store).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func connectPostgres(cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	if cfg.MigrationsAuto {
		m, err := postgres.NewMigrator(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("open migrations")
		}
		if err := app.RunMigrations(m); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn().AnErr("source", srcErr).AnErr("db", dbErr).Msg("close migrator")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "backend-kasir"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func connectRedis(cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	return client
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(strings.TrimSpace(pass))) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
