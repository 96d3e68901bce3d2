// Package server wires the auth server together: configuration, stores,
// the auth service, the REST API and the gRPC health endpoint, and runs
// them until the process is told to stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/logging"
	"github.com/dmitrijs2005/assistauth/internal/server/config"
	gs "github.com/dmitrijs2005/assistauth/internal/server/grpc"
	"github.com/dmitrijs2005/assistauth/internal/server/httpapi"
	"github.com/dmitrijs2005/assistauth/internal/server/mail"
	"github.com/dmitrijs2005/assistauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/assistauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/assistauth/internal/server/services"
)

const healthInterval = 5 * time.Second

type App struct {
	config        *config.Config
	logger        logging.Logger
	store         repomanager.RepositoryManager
	users         *services.UserService
	handler       http.Handler
	memoryLimiter *ratelimit.MemoryLimiter
	closers       []func() error
}

// NewApp builds every component from c. For a PostgreSQL DSN it connects
// and applies pending migrations.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(os.Stdout, c.LogLevel, c.LogFormat)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger}

	if c.SecretKey == config.DefaultSecretKey && !c.DevMode {
		logger.Warn(ctx, "using the default secret key outside dev mode")
	}

	store, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}
	app.store = store
	app.closers = append(app.closers, store.Close)

	var notifier mail.Notifier
	if c.SMTPURL != "" {
		notifier, err = mail.NewSMTPNotifier(c.SMTPURL, c.MailFrom, c.AppBaseURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("mail init error: %w", err)
		}
	} else {
		logger.Info(ctx, "SMTP not configured, password reset mail is disabled")
		notifier = mail.NewLogNotifier(logger.With("module", "mail"))
	}

	svc := services.NewUserService(store, notifier, logger.With("module", "user_service"), c)
	app.users = svc
	h := httpapi.NewHandler(svc, store, logger.With("module", "http"), c.DevMode)

	app.handler = httpapi.NewRouter(h, httpapi.RouterOptions{
		Limiter:        app.newLimiter(ctx),
		RateLimitRPS:   c.RateLimitRPS,
		AllowedOrigins: c.AllowedOrigins(),
	})

	return app, nil
}

func (app *App) openStore(ctx context.Context) (repomanager.RepositoryManager, error) {
	if app.config.DatabaseDSN == config.MemoryDSN {
		app.logger.Warn(ctx, "using in-memory stores, data is lost on exit")
		return repomanager.NewMemoryRepositoryManager(), nil
	}

	m, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}
	return m, nil
}

func (app *App) newLimiter(ctx context.Context) ratelimit.Limiter {
	c := app.config
	if c.RateLimitRPS <= 0 {
		return nil
	}
	if c.RedisAddr != "" {
		client := ratelimit.NewRedisClient(c.RedisAddr, c.RedisPassword)
		app.closers = append(app.closers, client.Close)
		app.logger.Info(ctx, "rate limit shared through redis", "address", c.RedisAddr)
		return ratelimit.NewRedisLimiter(client, c.RateLimitRPS, c.RateLimitBurst)
	}
	app.memoryLimiter = ratelimit.NewMemoryLimiter(c.RateLimitRPS, c.RateLimitBurst, 3*time.Minute)
	return app.memoryLimiter
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "HTTP shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.store, healthInterval, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a termination signal arrives or a
// server fails, then releases every resource.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.memoryLimiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.memoryLimiter.Run(ctx, time.Minute)
		}()
	}

	wg.Wait()
	app.users.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(context.Background(), "close error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}

// Close releases stores and clients in reverse order of creation.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i]())
	}
	app.closers = nil
	return errors.Join(errs...)
}
