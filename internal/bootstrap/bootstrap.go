package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	domainauth "receipt-server-go/internal/domain/auth"
	"receipt-server-go/internal/domain/auth/store"
	"receipt-server-go/internal/domain/eventbus"
	eventinfra "receipt-server-go/internal/domain/eventbus/infrastructure"
	receiptservice "receipt-server-go/internal/domain/receipt/service"
	platformconfig "receipt-server-go/internal/platform/config"
	platformerrors "receipt-server-go/internal/platform/errors"
	platformlogging "receipt-server-go/internal/platform/logging"
	platformobservability "receipt-server-go/internal/platform/observability"
	platformstorage "receipt-server-go/internal/platform/storage"
	httptransport "receipt-server-go/internal/transport/http"
	"receipt-server-go/internal/transport/http/authapi"
	"receipt-server-go/internal/transport/http/receiptapi"
)

const (
	shutdownTimeout = 5 * time.Second
	eventWorkers    = 4
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	metricsRegistry       *prometheus.Registry
	metrics               *platformobservability.Collector
	db                    *gorm.DB
	bus                   *eventbus.AsyncEventBus
	sessions              store.Store
	authManager           *domainauth.Manager
	receipts              *receiptservice.ReceiptService

	// ready receives the HTTP listen address once the server accepts
	// connections. Optional.
	ready chan<- string
}

// Run starts the whole service lifecycle: it loads configuration, wires the
// dependencies, serves HTTP and shuts down gracefully on SIGINT/SIGTERM.
func Run(ctx context.Context) error {
	return run(ctx, &appState{}, InitGraph())
}

func run(ctx context.Context, state *appState, steps []initStep) error {
	defer state.close()

	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	logger := state.logger
	if state.config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	if state.authManager == nil || state.receipts == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"auth manager or receipt service not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("start http server: %w", err)
	}

	return waitForShutdown(signalCtx, groupCtx, cancel, logger, group)
}

// close releases everything the init steps acquired, in reverse order.
func (s *appState) close() {
	logWarn := func(msg string, err error) {
		if s.logger != nil {
			s.logger.WarnTag("BOOT", "%s: %v", msg, err)
		}
	}

	if s.authManager != nil {
		if err := s.authManager.Close(); err != nil {
			logWarn("auth manager did not close cleanly", err)
		}
	} else if s.sessions != nil {
		if err := s.sessions.Close(context.Background()); err != nil {
			logWarn("session store did not close cleanly", err)
		}
	}
	if s.bus != nil {
		s.bus.Stop()
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil {
			logWarn("database did not close cleanly", err)
		}
	}
	if s.observabilityShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.observabilityShutdown(shutdownCtx); err != nil {
			logWarn("observability did not shut down cleanly", err)
		}
		cancel()
	}
	if s.logger != nil {
		s.logger.InfoTag("BOOT", "shutdown complete")
		_ = s.logger.Close()
	}
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "init graph overview")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("BOOT", "%s (%s)", step.ID, step.Title)
			continue
		}
		logger.InfoTag("BOOT", "%s (%s) after %s", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
	logger.InfoTag("BOOT", "starting services")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the init steps in execution order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup",
			Title:     "Setup metrics and span logging",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindPlatform,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Initialise event bus",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "auth:init-session-store",
			Title:     "Initialise session store",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initSessionStoreStep,
		},
		{
			ID:        "auth:init-services",
			Title:     "Initialise auth services",
			DependsOn: []string{"auth:init-session-store", "events:init-bus", "observability:setup"},
			Kind:      platformerrors.KindAuth,
			Execute:   initAuthStep,
		},
		{
			ID:        "receipt:init-service",
			Title:     "Initialise receipt service",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindDomain,
			Execute:   initReceiptStep,
		},
	}
}

// loadConfigStep keeps a configuration that was supplied up front.
func loadConfigStep(_ context.Context, state *appState) error {
	if state.config != nil {
		return nil
	}
	cfg, err := platformconfig.NewLoader().Load()
	if err != nil {
		return err
	}
	state.config = cfg
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	cfg := state.config.Log
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    cfg.Level,
		Dir:      cfg.Dir,
		Filename: cfg.File,
	})
	if err != nil {
		return err
	}
	state.logger = logger
	logger.InfoTag("BOOT", "logging initialised at level %s", cfg.Level)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	state.metricsRegistry = registry
	state.metrics = platformobservability.NewCollector(registry)

	shutdown, err := platformobservability.Setup(ctx, platformobservability.Config{
		Enabled: state.config.Observability.Enabled,
	}, state.logger.Slog())
	if err != nil {
		return err
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initDatabaseStep(ctx context.Context, state *appState) error {
	cfg := state.config.Database
	db, err := platformstorage.Open(platformstorage.Config{
		Driver: cfg.Driver,
		DSN:    cfg.DSN,
		Debug:  strings.EqualFold(state.config.Log.Level, "debug"),
	})
	if err != nil {
		return err
	}
	state.db = db
	if err := platformstorage.Ping(ctx, db); err != nil {
		return err
	}
	state.logger.InfoTag("STORAGE", "database ready (driver %s)", cfg.Driver)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.NewAsyncEventBus(eventWorkers, state.logger.Tagged("EVENTS"))
	recorder := eventbus.NewRecorder(eventinfra.NewEventRepository(state.db), state.logger.Tagged("EVENTS"))
	if err := recorder.Attach(bus); err != nil {
		return err
	}
	bus.Start()
	state.bus = bus
	return nil
}

func initSessionStoreStep(_ context.Context, state *appState) error {
	cfg := state.config.Auth.Store
	sessions, err := store.New(store.Config{
		Driver: cfg.Type,
		TTL:    cfg.TTL,
		Redis: &store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		},
		Memory: &store.MemoryConfig{GCInterval: cfg.Memory.Cleanup},
	}, store.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "auth:init-session-store", "failed to create session store", err)
	}
	state.sessions = sessions
	state.logger.InfoTag("SESSION", "session store ready (driver %s)", cfg.Type)
	return nil
}

func initAuthStep(_ context.Context, state *appState) error {
	cfg := state.config.Auth
	codec, err := domainauth.NewTokenCodec(domainauth.CodecOptions{
		Secret:    cfg.SecretKey,
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
	})
	if err != nil {
		return err
	}

	identities := platformstorage.NewUserRepository(state.db)
	registry := domainauth.NewRegistry(state.sessions, state.logger.Tagged("SESSION"))
	guard, err := domainauth.NewGuard(domainauth.GuardOptions{
		Codec:      codec,
		Registry:   registry,
		Identities: identities,
		Logger:     state.logger.Tagged("AUTH"),
		Events:     state.bus,
		Metrics:    state.metrics,
	})
	if err != nil {
		return err
	}

	manager, err := domainauth.NewManager(domainauth.Options{
		Identities:      identities,
		Registry:        registry,
		Codec:           codec,
		Guard:           guard,
		Logger:          state.logger.Tagged("AUTH"),
		Events:          state.bus,
		Metrics:         state.metrics,
		AccessTTL:       cfg.AccessTTL,
		RefreshTTL:      cfg.RefreshTTL,
		BcryptCost:      cfg.BcryptCost,
		CleanupInterval: cfg.Store.Memory.Cleanup,
	})
	if err != nil {
		return err
	}
	state.authManager = manager
	state.logger.InfoTag("AUTH", "auth services ready (issuer %s, access ttl %s)", cfg.Issuer, cfg.AccessTTL)
	return nil
}

func initReceiptStep(_ context.Context, state *appState) error {
	cfg := state.config.Receipt
	receipts, err := receiptservice.NewReceiptService(receiptservice.Options{
		Repository:       platformstorage.NewReceiptRepository(state.db),
		Logger:           state.logger.Tagged("RECEIPT"),
		Merchant:         cfg.Merchant,
		DefaultLineWidth: cfg.LineWidth,
		MinLineWidth:     cfg.MinLineWidth,
		MaxLineWidth:     cfg.MaxLineWidth,
	})
	if err != nil {
		return err
	}
	state.receipts = receipts
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config:         config,
		Logger:         logger,
		Metrics:        state.metrics,
		MetricsHandler: platformobservability.Handler(state.metricsRegistry),
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine
	apiGroup := httpRouter.API

	router.NoRoute(func(c *gin.Context) {
		httptransport.RespondError(c, http.StatusNotFound, "not found", gin.H{})
	})

	var limiter *httptransport.RateLimiter
	if config.RateLimit.Enabled {
		limiter = httptransport.NewRateLimiter(httptransport.RateLimiterConfig{
			PerMinute:       config.RateLimit.PerMinute,
			Burst:           config.RateLimit.Burst,
			CleanupInterval: config.RateLimit.CleanupInterval,
		}, logger, state.metrics)
	}

	authService, err := authapi.NewService(authapi.Options{
		Manager: state.authManager,
		Logger:  logger,
		Cookie: authapi.CookieConfig{
			Name:   config.Auth.CookieName,
			Path:   config.Auth.CookiePath,
			Secure: config.Server.IsProduction(),
		},
		Limiter: limiter,
	})
	if err != nil {
		return nil, err
	}
	receiptService, err := receiptapi.NewService(state.receipts, authService.RequireSession(), logger)
	if err != nil {
		return nil, err
	}

	if err := authService.Register(groupCtx, apiGroup); err != nil {
		return nil, err
	}
	if err := receiptService.Register(groupCtx, apiGroup); err != nil {
		return nil, err
	}
	db := state.db
	httptransport.RegisterHealth(apiGroup, map[string]httptransport.HealthCheck{
		"database": func(ctx context.Context) error { return platformstorage.Ping(ctx, db) },
		"sessions": state.authManager.Ping,
	}, logger)

	addr := net.JoinHostPort(config.Server.IP, strconv.Itoa(config.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:listen", "failed to listen on "+addr, err)
	}

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "gin server listening on http://%s", listener.Addr())
		if state.ready != nil {
			state.ready <- listener.Addr().String()
		}

		go func() {
			<-groupCtx.Done()
			if limiter != nil {
				limiter.Stop()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "http server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "http server stopped gracefully")
			}
		}()

		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "http server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

// waitForShutdown blocks until a signal arrives or a service fails, then
// cancels the group and waits for it to drain.
func waitForShutdown(
	signalCtx context.Context,
	groupCtx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	select {
	case <-signalCtx.Done():
		logger.InfoTag("BOOT", "received %v, cleaning up", context.Cause(signalCtx))
	case <-groupCtx.Done():
		logger.WarnTag("BOOT", "a service stopped unexpectedly, shutting down")
	}

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "error while shutting down: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(2 * shutdownTimeout):
		logger.ErrorTag("BOOT", "shutdown timed out, forcing exit")
		return errors.New("shutdown timed out")
	}
	return nil
}
