package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/iliyamo/todo-backend/internal/config"
	"github.com/iliyamo/todo-backend/internal/database"
	"github.com/iliyamo/todo-backend/internal/handler"
	"github.com/iliyamo/todo-backend/internal/middleware"
	"github.com/iliyamo/todo-backend/internal/queue"
	"github.com/iliyamo/todo-backend/internal/repository"
	"github.com/iliyamo/todo-backend/internal/router"
	"github.com/iliyamo/todo-backend/internal/service"
	"github.com/iliyamo/todo-backend/internal/utils"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("apply migrations")
		}
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		log.Warn().Msg("redis unavailable; todo list cache disabled")
	} else {
		defer rdb.Close()
	}

	var events service.EventPublisher = service.NoopPublisher{}
	if cfg.AMQPURL != "" {
		pub := service.NewAMQPPublisher(cfg.AMQPURL)
		defer pub.Close()
		events = pub
		if cfg.EventsConsumer {
			c := &queue.Consumer{URL: cfg.AMQPURL, LogDir: cfg.EventsLogDir, Log: log.With().Str("component", "todo-events").Logger()}
			go func() {
				if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn().Err(err).Msg("todo-events consumer stopped")
				}
			}()
		}
	} else {
		log.Info().Msg("no broker configured; todo events are dropped")
	}

	hasher, err := utils.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("init password hasher")
	}
	access := utils.NewTokenIssuer(cfg.AccessSecret, cfg.AccessTTL)
	refresh := utils.NewTokenIssuer(cfg.RefreshSecret, cfg.RefreshTTL)

	users := repository.NewUserRepo(db)
	todos := repository.NewTodoRepo(db)
	authSvc := service.NewAuthService(users, hasher, access, refresh, log.With().Str("component", "auth").Logger())
	todoSvc := service.NewTodoService(todos, events, log.With().Str("component", "todos").Logger())
	cache := middleware.NewTodoListCache(config.LoadCacheConfig(), rdb, log)

	e := router.New(router.Options{
		Log: log,
		Middleware: []echo.MiddlewareFunc{
			echomw.Recover(),
			echomw.RequestID(),
			middleware.RequestLogger(log),
		},
	})
	router.RegisterRoutes(e, handler.NewHealthHandler(db, rdb))
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc, cfg.RefreshTTL, !cfg.IsDev()), access)
	router.RegisterTodos(e, handler.NewTodoHandler(todoSvc), access, cache)

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("server stopped")
}

// newLogger writes human-readable output in dev and JSON elsewhere.
func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	out := zerolog.New(os.Stderr)
	if cfg.IsDev() {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return out.Level(level).With().Timestamp().Logger()
}
