package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GlintPay/gkcs/api"
	"github.com/GlintPay/gkcs/config"
	"github.com/GlintPay/gkcs/health"
	"github.com/GlintPay/gkcs/logging"
	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/yaml"
)

const serviceName = "gkcs"

var envConfig = config.Configuration{}

func main() {
	if err := env.Parse(&envConfig); err != nil {
		log.Fatal().Msgf("Configuration loading failed: %+v", err)
	}

	logging.Setup(os.Stdout)

	appConfig := config.Defaults()
	readConfig(envConfig.ApplicationConfigFileYmlPath, &appConfig)
	if err := appConfig.Validate(envConfig); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	////////////////////////////////////////////

	traceShutdown, e := setupTracing(ctx, appConfig)
	if e != nil {
		log.Fatal().Stack().Err(e).Msg("Trace setup failed")
	}
	defer traceShutdown()

	app, err := wire(ctx, appConfig)
	if err != nil {
		log.Fatal().Stack().Err(err).Msg("Wiring failed")
	}

	router := setupRouter(appConfig, app)
	setupHealthCheck(router, app)

	////////////////////////////////////////////

	g, gctx := errgroup.WithContext(ctx)

	for _, each := range app.informers {
		informer := each
		g.Go(func() error {
			return informer.Run(gctx)
		})
	}

	g.Go(func() error {
		return app.start(gctx, appConfig)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", appConfig.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Info().Msgf("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Stack().Err(err).Msg("startup failed")
	}
	log.Info().Msg("Stopped")
}

func readConfig(filePath string, config *config.ApplicationConfiguration) {
	yamlFile, err := os.ReadFile(filePath)
	if err == nil {
		log.Debug().Msgf("Loading YAML config from %s", filePath)
		err = yaml.Unmarshal(yamlFile, config)
		if err != nil {
			log.Fatal().Stack().Err(err).Msg("Unmarshal")
		}
	} else {
		log.Info().Msgf("No config file found: %s", filePath)
	}
}

var emptyShutdown = func() {}

func setupTracing(ctx context.Context, config config.ApplicationConfiguration) (func(), error) {
	if !config.Tracing.Enabled {
		return emptyShutdown, nil
	}

	if config.Tracing.Endpoint == "" {
		return emptyShutdown, fmt.Errorf("missing tracing endpoint")
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return emptyShutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithEndpoint(config.Tracing.Endpoint),
	)
	if err != nil {
		return emptyShutdown, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.Tracing.SamplerFraction)),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Info().Msgf("OpenTelemetry export is enabled, to: %s", config.Tracing.Endpoint)

	return func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error().Stack().Err(err).Msg("failed to shutdown TracerProvider")
		}
	}, nil
}

func setupRouter(config config.ApplicationConfiguration, app *application) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)

	routing := api.Routing{
		ServerName:   serviceName,
		ParentRouter: router,
		AppConfig:    config,
	}
	if app.discovery != nil {
		routing.Discovery = app.discovery
	}
	if app.env != nil {
		routing.Environment = app.env
	}

	router.Route("/", func(r chi.Router) {
		if e := routing.SetupFunctionalRoutes(r); e != nil {
			log.Fatal().Stack().Err(e).Msg("route setup failed")
		}
	})

	if len(config.Prometheus.Path) > 0 {
		log.Info().Msgf("Registering metrics endpoint at: %s", config.Prometheus.Path)
		router.Handle(config.Prometheus.Path, promhttp.Handler())
	}

	return router
}

func setupHealthCheck(router *chi.Mux, app *application) {
	synced := make([]health.Synced, 0, len(app.informers))
	for _, each := range app.informers {
		synced = append(synced, each)
	}

	healthChk := health.New(
		health.WithChiMux(router),
		health.WithReadinessCheck("caches-synced", health.AllSynced(synced...)),
		health.WithReadinessCheck("reconcilers-started", health.Condition(app.started, "configuration not reconciled yet")),
	)
	healthChk.StartListening()
}
