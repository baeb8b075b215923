package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/docs"
	"github.com/trieb-work/saleor-apps/internal/application/manifest"
	aplstore "github.com/trieb-work/saleor-apps/internal/infrastructure/apl"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/auth"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/config"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	saleorapi "github.com/trieb-work/saleor-apps/internal/infrastructure/saleor"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/handler"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/middleware"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/router"
)

// Outbound calls to Saleor during registration and JWKS refresh.
const saleorHTTPTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve one Saleor app",
		Long: `Serve one Saleor app over HTTP.

Examples:
  server serve --app smtp
  server serve --app stripe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), kind)
		},
	}
	cmd.Flags().StringVar(&kind, "app", "", "app to serve: "+strings.Join(config.AppKinds, ", "))
	return cmd
}

func runServe(ctx context.Context, kind string) error {
	cfg, err := config.LoadApp(kind)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if !slices.Contains(config.AppKinds, cfg.App.Kind) {
		return fmt.Errorf("--app is required, one of %s", strings.Join(config.AppKinds, ", "))
	}

	// Money values go to Saleor and vendors as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initialize log export: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}, logsProvider.ZapCore(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()
	log = log.With(zap.String("app", cfg.App.Kind))

	log.Info("Starting Saleor app",
		zap.String("name", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", cfg.App.Version),
		zap.String("apl", cfg.APL.Type),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		Exporter:          cfg.Telemetry.Exporter,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		Exporter:          cfg.Telemetry.Exporter,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.PyroscopeAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.PyroscopeUser,
		BasicAuthPassword: cfg.Telemetry.PyroscopePassword,
		Tags:              map[string]string{"app": cfg.App.Kind, "env": cfg.App.Env},
	}, log)
	if err != nil {
		return fmt.Errorf("initialize profiler: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		telemetry.LogShutdownError(log, "profiler", profiler.Stop())
		telemetry.LogShutdownError(log, "meter provider", meterProvider.Shutdown(shutdownCtx))
		telemetry.LogShutdownError(log, "tracer provider", tracerProvider.Shutdown(shutdownCtx))
		telemetry.LogShutdownError(log, "logger provider", logsProvider.Shutdown(shutdownCtx))
	}()

	httpClient := &http.Client{Timeout: saleorHTTPTimeout}

	store, err := aplstore.New(cfg.APL, cfg.App.Kind,
		aplstore.WithLogger(log),
		aplstore.WithHTTPClient(httpClient),
	)
	if err != nil {
		return fmt.Errorf("initialize APL: %w", err)
	}
	if err := store.IsReady(ctx); err != nil {
		log.Warn("APL is not ready yet", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Tracing - Start the server span, then tag it
	// 3. Recovery and request logging
	// 4. Security headers and CORS
	// 5. Metrics and profiling labels
	// 6. Body limit and rate limit
	engine.Use(middleware.RequestID())
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		Enabled:       cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
	}))
	profiling := middleware.DefaultProfilingConfig()
	profiling.Enabled = cfg.Telemetry.ProfilingEnabled
	engine.Use(middleware.ProfilingWithConfig(profiling))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	jwks := auth.NewJWKSFetcher(httpClient)
	mw := router.Middlewares{
		Webhook: []gin.HandlerFunc{
			middleware.Tenant(middleware.TenantConfig{APL: store, Logger: log}),
			middleware.SaleorWebhook(middleware.WebhookConfig{
				Verifier:    auth.NewWebhookVerifier(store, jwks, log),
				MaxBodySize: cfg.HTTP.MaxBodySize,
				Logger:      log,
			}),
		},
		Dashboard: []gin.HandlerFunc{
			middleware.Tenant(middleware.TenantConfig{APL: store, Logger: log}),
			middleware.DashboardAuth(middleware.DashboardAuthConfig{
				Verifier: auth.NewTokenVerifier(jwks, auth.PermissionManageApps),
				Logger:   log,
			}),
		},
		Vendor: []gin.HandlerFunc{
			middleware.Tenant(middleware.TenantConfig{APL: store, QueryParam: handler.StripeSaleorAPIURLArg, Logger: log}),
		},
	}

	appHandler := handler.NewAppHandler(handler.AppHandlerConfig{
		Kind: cfg.App.Kind,
		Manifest: manifest.Options{
			AppName:               cfg.App.Name,
			Version:               cfg.App.Version,
			APIBaseURL:            cfg.App.APIBaseURL,
			IframeBaseURL:         cfg.App.IframeBaseURL,
			RequiredSaleorVersion: cfg.App.RequiredSaleorVersion,
		},
		APL: store,
		FetchAppID: func(ctx context.Context, saleorAPIURL, token string) (string, error) {
			return saleorapi.NewClient(saleorAPIURL, token, saleorapi.WithHTTPClient(httpClient)).FetchAppID(ctx)
		},
		JWKS:            jwks,
		AllowedDomain:   cfg.AllowedDomain(),
		RequiredVersion: cfg.SaleorVersionConstraint(),
		Logger:          log,
	})

	routes, closers, err := appRoutes(ctx, cfg, appDeps{
		store:      store,
		meter:      meterProvider.Meter(telemetry.TracerName),
		httpClient: httpClient,
		logger:     log,
	}, mw)
	if err != nil {
		return err
	}

	docs.SwaggerInfo.Title = cfg.App.Name + " API"
	docs.SwaggerInfo.Version = cfg.App.Version

	router.NewRouter(engine).
		Register(router.AppRoutes(appHandler)).
		Register(routes...).
		Register(router.DocsRoutes(middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:    cfg.Swagger.Enabled,
			AllowedIPs: cfg.Swagger.AllowedIPs,
		}))).
		Setup()

	if closer, ok := store.(io.Closer); ok {
		closers = append(closers, closer)
	}
	return listenAndServe(engine, cfg, closers, log)
}

func listenAndServe(engine *gin.Engine, cfg *config.Config, closers []io.Closer, log *zap.Logger) error {
	defer closeAll(closers, log)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info("Shutting down server...", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	log.Info("Server exited gracefully")
	return nil
}

// closeAll closes every closer in order. Failures are logged and do not stop the rest.
func closeAll(closers []io.Closer, log *zap.Logger) {
	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			log.Warn("Error releasing resource", zap.String("resource", fmt.Sprintf("%T", closer)), zap.Error(err))
		}
	}
}
