package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/field-attendance/internal/application"
	"github.com/example/field-attendance/internal/calendar"
	"github.com/example/field-attendance/internal/config"
	httptransport "github.com/example/field-attendance/internal/http"
	"github.com/example/field-attendance/internal/identity"
	"github.com/example/field-attendance/internal/logging"
	"github.com/example/field-attendance/internal/metrics"
	"github.com/example/field-attendance/internal/persistence"
	"github.com/example/field-attendance/internal/persistence/memory"
	"github.com/example/field-attendance/internal/persistence/sqlite"
	"github.com/example/field-attendance/internal/persistence/sqlite/migration"
)

// storage is the union of what the server needs from a backend.
type storage interface {
	persistence.WindowConfigRepository
	persistence.AttendanceRepository
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	logger := logging.New(os.Stdout, slog.LevelInfo)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = logging.New(os.Stdout, cfg.LogLevel, "service", "attendance-server")

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:], cfg, os.Stdout); err != nil {
			logger.Error("failed to issue token", "error", err)
			os.Exit(2)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if cfg.MigrationsEnabled {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	handler, err := newHandler(serverDeps{
		Config:  cfg,
		Store:   store,
		Metrics: metrics.New(),
		Now:     time.Now,
		NewID:   uuid.NewString,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("attendance API listening",
		"addr", server.Addr,
		"storage", cfg.Storage,
		"timezone", cfg.Location.String(),
		"default_window", cfg.DefaultWindow.String(),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStorage(cfg config.Config, logger *slog.Logger) (storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; records are lost on restart")
		return memory.New(), nil
	default:
		store, err := sqlite.OpenWithConfig(migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

type serverDeps struct {
	Config  config.Config
	Store   storage
	Metrics *metrics.Metrics
	Now     func() time.Time
	NewID   func() string
	Logger  *slog.Logger
}

// newHandler wires services, handlers and middleware over an opened store.
func newHandler(deps serverDeps) (http.Handler, error) {
	cfg := deps.Config
	logger := deps.Logger

	tokens, err := identity.NewTokenManager(cfg.TokenSecret, deps.Now)
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	defaults := application.WindowDefaults{Window: cfg.DefaultWindow, GraceMinutes: cfg.GraceMinutes}
	windowService := application.NewWindowServiceWithLogger(newWindowRepositoryAdapter(deps.Store), defaults, deps.Now, logger).
		WithMetrics(deps.Metrics)
	attendanceService := application.NewAttendanceServiceWithLogger(
		newAttendanceRepositoryAdapter(deps.Store),
		windowService,
		calendar.New(cfg.Location, cfg.Workdays),
		deps.NewID,
		deps.Now,
		logger,
	).WithMetrics(deps.Metrics)

	limiter := httptransport.NewRateLimiter(cfg.MarkRateLimit, cfg.MarkRateBurst, logger)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Windows:        httptransport.NewWindowHandler(windowService, logger),
		Attendance:     httptransport.NewAttendanceHandler(attendanceService, cfg.Location, logger),
		Health:         deps.Store,
		Metrics:        deps.Metrics.Handler(),
		Authenticate:   httptransport.RequirePrincipal(tokens, logger),
		MarkMiddleware: []func(http.Handler) http.Handler{limiter.Middleware},
		Middleware:     []func(http.Handler) http.Handler{httptransport.RequestLogger(logger, deps.Metrics)},
	}), nil
}

// issueToken implements the "token" subcommand, which prints a bearer token
// for local tooling such as the agent console.
func issueToken(args []string, cfg config.Config, out io.Writer) error {
	flags := flag.NewFlagSet("token", flag.ContinueOnError)
	flags.SetOutput(out)
	subject := flags.String("subject", "", "user id carried in the token")
	role := flags.String("role", string(application.RoleAgent), "agent, manager or admin")
	scope := flags.String("scope", "", "window scope, e.g. manager:m-1 (defaults to global)")
	ttl := flags.Duration("ttl", 12*time.Hour, "token lifetime")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("-subject is required")
	}
	if !application.Role(*role).Valid() {
		return fmt.Errorf("unknown role %q", *role)
	}
	if *ttl <= 0 {
		return errors.New("-ttl must be positive")
	}

	tokens, err := identity.NewTokenManager(cfg.TokenSecret, nil)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(*subject, *role, application.NormalizeScope(*scope), *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
