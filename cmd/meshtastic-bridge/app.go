package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"meshbridge/internal/config"
	"meshbridge/internal/constants"
	"meshbridge/internal/deduplication"
	_ "meshbridge/internal/docs"
	"meshbridge/internal/filtering"
	"meshbridge/internal/forwarder"
	"meshbridge/internal/logger"
	"meshbridge/internal/outbound"
	"meshbridge/internal/radio"
	"meshbridge/internal/radio/serial"
	"meshbridge/internal/radio/sim"
	"meshbridge/internal/readiness"
	"meshbridge/internal/relay"
	"meshbridge/pkg/bootstrap"
	"meshbridge/pkg/circuitbreaker"
	"meshbridge/pkg/health"
	"meshbridge/pkg/logging"
	"meshbridge/pkg/metrics"
	"meshbridge/pkg/middleware"
	"meshbridge/pkg/ratelimit"
	"meshbridge/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	device         radio.Device
	dedup          *deduplication.Service
	conn           *radio.Conn
	relay          *relay.Relay
	rateLimits     *ratelimit.Store
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

// Initialize waits for the router, then opens the radio and builds the
// relay and HTTP surface. Nothing touches the radio or listens before the
// router has answered a health probe.
func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterBridgeMetrics()

	gate := readiness.NewGate(a.Config.Router, a.Logger)
	if err := gate.AwaitReady(ctx); err != nil {
		return fmt.Errorf("router never became ready: %w", err)
	}

	if err := a.initRadio(ctx); err != nil {
		return fmt.Errorf("failed to initialize radio: %w", err)
	}

	if err := a.initDeduplication(ctx); err != nil {
		return fmt.Errorf("failed to initialize deduplication: %w", err)
	}

	if err := a.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initRelay(); err != nil {
		return fmt.Errorf("failed to initialize relay: %w", err)
	}

	a.initHTTPServer()

	return nil
}

func (a *App) initRadio(ctx context.Context) error {
	if a.device == nil {
		switch a.Config.Radio.Driver {
		case constants.RadioDriverSim:
			a.device = sim.New(sim.WithNodeInfo(radio.NodeInfo{NodeNum: 1, FirmwareVersion: "sim"}))
		default:
			a.device = serial.New(a.Config.Radio.DevicePath, a.Config.Radio.BaudRate, a.Logger)
		}
	}

	conn := radio.NewConn(a.device, a.Logger)
	if err := conn.Open(ctx); err != nil {
		return err
	}
	a.conn = conn

	a.Logger.InfowCtx(ctx, "Radio device opened",
		"driver", a.Config.Radio.Driver,
		"device_path", a.Config.Radio.DevicePath,
	)
	return nil
}

func (a *App) initDeduplication(ctx context.Context) error {
	if !a.Config.Deduplication.Enabled {
		return nil
	}

	var repo deduplication.Repository
	switch a.Config.Deduplication.Backend {
	case constants.DedupBackendRedis:
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.redis = rdb
		repo = deduplication.NewCircuitBreakerRepository(
			deduplication.NewRedisRepository(rdb),
			a.Config.CircuitBreaker,
		)
	default:
		repo = deduplication.NewMemoryRepository()
	}

	a.dedup = deduplication.NewService(repo, a.Config.Deduplication, a.Logger)
	return nil
}

func (a *App) initRelay() error {
	filter, err := filtering.NewFilter(a.Config.Filter.Expression, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create command filter: %w", err)
	}

	var fwdOpts []forwarder.Option
	if a.Config.CircuitBreaker.Enabled {
		fwdOpts = append(fwdOpts, forwarder.WithCircuitBreaker(
			circuitbreaker.FromConfig("router-forward", a.Config.CircuitBreaker),
		))
	}
	fwd := forwarder.New(a.Config.Router, a.Logger, fwdOpts...)

	relayOpts := []relay.Option{relay.WithEventPublisher(a.Producer)}
	if a.dedup != nil {
		relayOpts = append(relayOpts, relay.WithDeduplicator(a.dedup))
	}

	a.relay = relay.New(filter, fwd, a.conn, a.Logger, relayOpts...)
	return nil
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(a.Logger),
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(a.Logger),
	)
	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewRadioChecker(a.conn))
	healthRegistry.Register(health.NewRouterChecker(a.Config.Router.HealthURL, nil))
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}

	router.GET("/health", health.Handler(healthRegistry))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	outboundOpts := []outbound.Option{outbound.WithEventPublisher(a.Producer)}
	if a.Config.Outbound.RateLimit.Enabled {
		a.rateLimits = ratelimit.NewStore(ratelimit.FromConfig(a.Config.Outbound.RateLimit))
		outboundOpts = append(outboundOpts, outbound.WithMiddleware(a.rateLimits.Middleware()))
	}
	outbound.NewHandler(a.conn, a.Logger, outboundOpts...).RegisterRoutes(router)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// Run serves HTTP and relays radio traffic until ctx is cancelled or either
// flow fails.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		radioCtx := logging.WithServiceName(gCtx, constants.ServiceName)
		a.Logger.InfowCtx(radioCtx, "Radio receive loop starting")
		if err := a.conn.Run(gCtx, a.relay); err != nil {
			return err
		}
		if gCtx.Err() == nil {
			return fmt.Errorf("radio receive loop ended: device closed")
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Shutdown releases everything Initialize acquired. It is safe to call after
// a partial Initialize.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down bridge")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.rateLimits != nil {
			a.rateLimits.Close()
		}

		if a.conn != nil {
			if err := a.conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("radio close error: %w", err))
			}
		}

		if a.dedup != nil {
			a.dedup.Close()
		}
		errs = append(errs, a.dbConnector.ShutdownRedis(a.redis)...)

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
