package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/leporo/sqlf"
	"golang.org/x/crypto/bcrypt"

	"github.com/trackfit/trackfit/internal/adapter/api"
	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/adapter/backend/memory"
	"github.com/trackfit/trackfit/internal/adapter/backend/rest"
	"github.com/trackfit/trackfit/internal/adapter/backend/selfhost"
	"github.com/trackfit/trackfit/internal/adapter/storage"
	"github.com/trackfit/trackfit/internal/app/auth"
	"github.com/trackfit/trackfit/internal/app/messagebus"
	"github.com/trackfit/trackfit/internal/app/session"
	"github.com/trackfit/trackfit/internal/config"
	"github.com/trackfit/trackfit/internal/domain"
	"github.com/trackfit/trackfit/internal/domain/metric"
	"github.com/trackfit/trackfit/internal/domain/user"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	logger := initLogger(cfg)

	bus := messagebus.New(logger)
	bus.Register(user.EventCreated, func(event domain.Event) error {
		logger.Info("account created")
		return nil
	})
	bus.Register(metric.EventRecorded, func(event domain.Event) error {
		e := event.(metric.RecordedEvent)
		logger.Debug("entry recorded", "kind", e.Entry.Kind, "date", e.Entry.Date)
		return nil
	})

	metricBackend, authBackend := buildBackend(cfg, bus, logger)

	sessions := session.NewManager(metricBackend, bus, logger)
	sessions.Bind()

	authService := auth.NewService(authBackend, bus, logger)

	server := api.NewServer(
		api.Addr(cfg.Server.Host, cfg.Server.Port),
		api.Logger(logger),
		api.MetricBackend(metricBackend),
		api.AuthService(authService),
		api.Sessions(sessions),
		api.WebDir(cfg.Server.WebDir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error)

	go func() {
		defer close(errCh)
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server was not shutdown gracefully", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server closed with unexpected error", "error", err)
		}
	}

	bus.Close()
	logger.Info("server shutdown")
}

func buildBackend(cfg *config.Config, bus *messagebus.MessageBus, logger *slog.Logger) (backend.MetricBackend, backend.AuthBackend) {
	switch cfg.Backend.Mode {
	case config.ModeHosted:
		client := rest.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, logger)
		return client, client

	case config.ModePostgres:
		sqlf.SetDialect(sqlf.PostgreSQL)

		db, err := sql.Open("pgx", cfg.DB.DSN)
		if err != nil {
			panic("failed to connect database: " + err.Error())
		}

		authorizer := &auth.Authorizer{
			Cost:             bcrypt.DefaultCost,
			Secret:           cfg.JWT.Secret,
			AccessTokenTTL:   cfg.JWT.AccessTokenTTL,
			AuthorizationTTL: cfg.JWT.AuthorizationTTL,
		}

		b := selfhost.New(storage.DB{DB: db}, authorizer, bus, logger)
		return b, b

	case config.ModeMemory:
		logger.Warn("memory backend selected, nothing will be persisted")
		db := memory.New()
		return db, db
	}

	panic("unknown backend mode")
}

func initLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler
	switch cfg.App.Env {
	case config.Development:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		})
	case config.Production:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: false,
			Level:     slog.LevelInfo,
		})
	default:
		panic("invalid env")
	}

	return slog.New(handler)
}
