// Command server runs the settlement HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	financeapp "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/cache"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/event"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/infrastructure/persistence"
	"github.com/erp/settlement/internal/infrastructure/persistence/inmemory"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/erp/settlement/internal/interfaces/http/handler"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/erp/settlement/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	// Bootstrap logger, used until the OTEL bridge is ready
	logCfg := &logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	log, err := logger.New(logCfg, telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		LoggerProvider: logsProvider,
		Level:          zapcore.InfoLevel,
	}))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting settlement engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("storage", cfg.Database.Driver),
	)

	if cfg.JWT.Secret == "" {
		log.Fatal("jwt.secret is required: every change is audited against the token's actor")
	}

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.PyroscopeAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		ProfileCPU:        true,
		ProfileAllocSpace: true,
		ProfileInuseSpace: true,
		ProfileGoroutines: true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	settlementMetrics, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{
		Meter:  meterProvider.Meter("settlement"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to register settlement metrics", zap.Error(err))
	}

	// Storage
	store, pinger, closeStore := openStore(cfg, log)
	defer closeStore()

	// Locks and idempotency keys
	coord, err := cache.NewCoordination(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize coordination", zap.Error(err))
	}
	defer func() {
		if err := coord.Close(); err != nil {
			log.Error("Error closing coordination", zap.Error(err))
		}
	}()

	// Domain event handlers run after commit, once per event
	bus := event.NewInMemoryEventBus(log, event.WithAsyncDispatch())
	subscribe(bus, coord.Idempotency, cfg.Settlement.IdempotencyTTL, log)

	locale, err := language.Parse(cfg.Settlement.Locale)
	if err != nil {
		log.Warn("Unknown settlement.locale, using English", zap.String("locale", cfg.Settlement.Locale))
		locale = language.English
	}

	opts := []financeapp.Option{
		financeapp.WithEventPublisher(bus),
		financeapp.WithMetrics(settlementMetrics),
		financeapp.WithLogger(log),
		financeapp.WithApprovalWorkflow(cfg.Settlement.ApprovalWorkflow),
	}
	handlers := router.Handlers{
		Documents:   handler.NewDocumentHandler(financeapp.NewDocumentService(store, coord.Locker, opts...)),
		Settlements: handler.NewSettlementHandler(financeapp.NewSettlementService(store, coord.Locker, opts...)),
		Funding:     handler.NewFundingHandler(financeapp.NewFundingService(store, coord.Locker, opts...)),
		Credit:      handler.NewCreditHandler(financeapp.NewCreditService(store, coord.Locker, opts...)),
		Reports:     handler.NewReportHandler(financeapp.NewAgingService(store, locale, opts...)),
		System:      handler.NewSystemHandler(cfg.App.Name, version, cfg.Database.Driver, pinger),
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		logger.GinMiddleware(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.HTTPMetrics(meterProvider.Meter("settlement.http"), log),
		middleware.Profiling(middleware.ProfilingConfig{Enabled: cfg.Telemetry.ProfilingEnabled}),
		middleware.Secure(),
		middleware.CORS(cfg.HTTP.CORSAllowOrigins...),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	tokens := auth.NewTokenService(cfg.JWT)
	jwtCfg := middleware.DefaultJWTConfig(tokens)
	jwtCfg.Logger = log

	r := router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithMiddleware(
			middleware.JWTAuthWithConfig(jwtCfg),
			middleware.TracingAttributeInjector(),
			middleware.SpanErrorMarker(),
		),
		router.WithIdempotency(middleware.Idempotency(middleware.IdempotencyConfig{
			Store:  coord.Idempotency,
			TTL:    cfg.Settlement.IdempotencyTTL,
			Logger: log,
		})),
	)
	router.RegisterSettlementRoutes(r, handlers).Setup()
	router.RegisterHealth(engine, handlers.System, r.APIVersion())
	log.Info("API routes registered", zap.Int("routes", len(r.Routes())))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Warn("Event handlers still running at shutdown", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Error stopping profiler", zap.Error(err))
	}
	_ = meterProvider.Shutdown(shutdownCtx)
	_ = tracerProvider.Shutdown(shutdownCtx)
	_ = logsProvider.Shutdown(shutdownCtx)

	log.Info("Server exited gracefully")
}

// openStore returns the configured store, what the health check should ping
// and how to close it. The in-memory store has nothing to ping.
func openStore(cfg *config.Config, log *zap.Logger) (financeapp.Store, handler.Pinger, func()) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("Using the in-memory store; data is lost on restart")
		return inmemory.NewStore(), nil, func() {}
	}

	dbSystem := "postgresql"
	if cfg.Database.Driver == config.DriverSQLite {
		dbSystem = "sqlite"
	}
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
			logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
			logger.WithParameterizedQueries(!cfg.Telemetry.DBLogFullSQL))),
		persistence.WithTracing(telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        dbSystem,
		}, log)),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Postgres is migrated with cmd/migrate; sqlite is created in place
	if db.Driver() == config.DriverSQLite {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to create sqlite schema", zap.Error(err))
		}
	}
	log.Info("Database connected", zap.String("driver", db.Driver()))

	return persistence.NewGormUnitOfWork(db.DB), db, func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}
}

// subscribe registers the event handlers. Each is wrapped so a redelivered
// event is handled only once.
func subscribe(bus *event.InMemoryEventBus, store shared.IdempotencyStore, ttl time.Duration, log *zap.Logger) {
	handlers := []shared.EventHandler{
		event.NewNotificationHandler(event.NewLogNotifier(log), log),
		event.NewInventoryHandler(event.NewLogInventoryGateway(log), log),
		event.NewSettlementLogHandler(log),
	}
	for _, h := range handlers {
		bus.Subscribe(event.NewIdempotentHandler(h, store, log, event.WithIdempotencyTTL(ttl)))
	}
}
