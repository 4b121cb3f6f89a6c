// Package server initializes and runs the application server: it opens the
// database and redis connections, applies migrations, wires the services
// behind the HTTP API and handles graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/openscholar/platform/internal/logging"
	"github.com/openscholar/platform/internal/server/api"
	"github.com/openscholar/platform/internal/server/coedit"
	"github.com/openscholar/platform/internal/server/config"
	"github.com/openscholar/platform/internal/server/repositories/repomanager"
	"github.com/openscholar/platform/internal/server/services"
	"github.com/openscholar/platform/internal/server/sessions"
	"github.com/openscholar/platform/internal/signing"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	api    *api.Server
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
	})

	storage := services.NewStorageService(db, rm, c, logger)
	wiki := services.NewWikiService(db, rm, c, logger, coedit.NewClient(c.CoeditHubURL, rdb))
	users := services.NewUserService(db, rm, c)
	nodes := services.NewNodeService(db, rm)
	counter := services.NewDownloadCounter(rdb)

	store := sessions.NewStore(rdb, signing.NewSigner([]byte(c.CookieSecret)), c.SessionTTL)

	srv := api.NewServer(c, logger, storage, wiki, users, nodes, store, counter)

	return &App{config: c, logger: logger, db: db, api: srv}, nil
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

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "addr", app.config.EndpointAddrHTTP)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.api.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
