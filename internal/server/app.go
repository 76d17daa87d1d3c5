// Package server wires configuration, the Record Store, the File Store and
// the services into the HTTP API and the gRPC health endpoint, and runs
// them until a shutdown signal arrives.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/healthvault/internal/logging"
	"github.com/dmitrijs2005/healthvault/internal/ratelimit"
	"github.com/dmitrijs2005/healthvault/internal/server/config"
	"github.com/dmitrijs2005/healthvault/internal/server/filestore"
	"github.com/dmitrijs2005/healthvault/internal/server/httpapi"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/healthvault/internal/server/services"

	gs "github.com/dmitrijs2005/healthvault/internal/server/grpc"
)

const tokenPurgeInterval = time.Hour

type App struct {
	config      *config.Config
	logger      logging.Logger
	repomanager repomanager.RepositoryManager
	limiter     *ratelimit.FixedWindowLimiter
	userService *services.UserService
	httpServer  *httpapi.Server
	grpcServer  *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	rm, err := repomanager.New(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database dsn configured, using the in-memory store")
	}

	files, err := filestore.New(ctx, c)
	if err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("file store init error: %w", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if c.RedisAddr != "" {
		limiter, err = ratelimit.NewFixedWindowLimiter(c.RedisAddr, "", c.AuthRateLimitPerMinute, time.Minute)
		if err != nil {
			_ = rm.Close()
			return nil, fmt.Errorf("rate limiter init error: %w", err)
		}
	}

	access := services.NewAccessControl(rm)
	users := services.NewUserService(rm, files, logger.With("module", "users"), c)
	deps := httpapi.Deps{
		Users:          users,
		Reports:        services.NewReportService(rm, files, access, logger.With("module", "reports"), c.MaxUploadBytes),
		Vitals:         services.NewVitalService(rm, access),
		Sharing:        services.NewSharingService(rm, access, users, logger.With("module", "sharing")),
		Store:          rm,
		MaxUploadBytes: c.MaxUploadBytes,
	}
	if limiter != nil {
		deps.Limiter = limiter
	}

	return &App{
		config:      c,
		logger:      logger,
		repomanager: rm,
		limiter:     limiter,
		userService: users,
		httpServer:  httpapi.NewServer(c.EndpointAddrHTTP, logger, deps),
		grpcServer:  gs.NewGRPCServer(c.EndpointAddrGRPC, logger, rm),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// purgeTokens drops expired refresh tokens until ctx is cancelled.
func (app *App) purgeTokens(ctx context.Context) {
	t := time.NewTicker(tokenPurgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := app.userService.PurgeExpiredTokens(ctx)
			if err != nil {
				app.logger.Error(ctx, "purge expired tokens", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired tokens purged", "count", n)
			}
		}
	}
}

// Run applies migrations and serves until ctx is cancelled, a signal
// arrives, or a server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	if err := app.repomanager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				app.logger.Error(ctx, "server failed", "server", name, "error", err)
				errs <- fmt.Errorf("%s: %w", name, err)
				cancelFunc()
			}
		}()
	}
	start("http", app.httpServer.Run)
	start("grpc", app.grpcServer.Run)

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.purgeTokens(ctx)
	}()

	wg.Wait()
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

func (app *App) close() {
	if app.limiter != nil {
		_ = app.limiter.Close()
	}
	if err := app.repomanager.Close(); err != nil {
		app.logger.Error(context.Background(), "close store", "error", err)
	}
}
