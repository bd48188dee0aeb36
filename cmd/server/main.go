// Command server runs the credcore identity service over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/credcore/internal/application"
	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/kdf"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/primitive"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/signature"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	credhttp "github.com/turtacn/credcore/internal/interfaces/http"
	"github.com/turtacn/credcore/internal/interfaces/http/handlers"
	"github.com/turtacn/credcore/internal/interfaces/http/middleware"
	"github.com/turtacn/credcore/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the service configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error(context.Background(), "Server exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger logger.Logger) (err error) {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	// Initialize tracing
	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, appLogger)
	if err != nil {
		return err
	}
	closers = append(closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return tracing.Shutdown(shutdownCtx)
	})

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	// Initialize crypto primitives
	random := primitive.NewProvider()
	deriver, err := kdf.NewDeriver(cfg.Crypto.PBKDF2MinIterations)
	if err != nil {
		return err
	}

	// Initialize key store and audit sinks
	deps := &dependencies{cfg: cfg, logger: appLogger, metrics: metrics, random: random, deriver: deriver}
	closers = append(closers, deps.Close)
	store, err := deps.keyStore(ctx)
	if err != nil {
		return err
	}
	auditSink, err := deps.auditSink(ctx)
	if err != nil {
		return err
	}

	// Initialize application services
	engine := signature.NewEngine(store, random, deriver,
		signature.WithLogger(appLogger),
		signature.WithMetrics(metrics),
		signature.WithTracer(tracing.Tracer()),
	)
	registry := service.NewConfigRegistry()
	identity := application.NewIdentityService(registry, engine, deriver, random,
		application.WithAudit(auditSink),
		application.WithMetrics(metrics),
		application.WithLogger(appLogger),
	)

	if cfg.Registry.File != "" {
		f, err := config.LoadRegistryFile(cfg.Registry.File)
		if err != nil {
			return err
		}
		for _, appID := range f.AppIDs() {
			if err := identity.RegisterApp(ctx, appID, f.Apps[appID]); err != nil {
				return err
			}
		}
	}

	limiter, err := deps.signLimiter(ctx)
	if err != nil {
		return err
	}

	// Initialize HTTP handlers and router
	router := credhttp.NewRouter(cfg, appLogger,
		handlers.NewIdentityHandler(identity, appLogger),
		handlers.NewHealthHandler(deps.healthChecks, appLogger),
		middleware.NewSignRateLimiter(limiter, metrics, appLogger, middleware.WithKnownApps(registry.IsRegistered)),
		metrics, reg,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(router.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return router.Stop(shutdownCtx)
	})
	if cfg.Registry.File != "" && cfg.Registry.Watch {
		watcher := config.NewRegistryWatcher(cfg.Registry.File, registry, appLogger, func(added []string) {
			for range added {
				metrics.RecordAppRegistration(true, "")
			}
		})
		g.Go(func() error { return watcher.Run(gctx) })
	}

	appLogger.Info(ctx, "credcore started",
		logger.String("address", cfg.Server.Addr()),
		logger.String("keystore", cfg.KeyStore.Backend),
		logger.Bool("sealed", cfg.KeyStore.MasterSecret != ""),
	)
	return g.Wait()
}
