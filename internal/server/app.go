// Package server initializes and runs the update server: it opens the
// metadata store and the deployment database, attaches the update-graph
// engine, and serves the client sync endpoints until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Snshadow/update-server-server-sync/internal/content"
	"github.com/Snshadow/update-server-server-sync/internal/logging"
	"github.com/Snshadow/update-server-server-sync/internal/metastore"
	"github.com/Snshadow/update-server-server-sync/internal/server/config"
	"github.com/Snshadow/update-server-server-sync/internal/server/cookie"
	"github.com/Snshadow/update-server-server-sync/internal/server/engine"
	"github.com/Snshadow/update-server-server-sync/internal/server/repositories/sqldb"
	"github.com/Snshadow/update-server-server-sync/internal/server/syncer"
	"github.com/Snshadow/update-server-server-sync/internal/server/transport"
)

type App struct {
	config *config.Config
	logger logging.Logger

	store  metastore.Store
	db     *sql.DB
	engine *engine.Engine
	server *transport.Server
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout)
	ctx := context.Background()

	store, err := metastore.Open(metastore.Kind(c.StoreKind), c.StorePath)
	if err != nil {
		return nil, fmt.Errorf("metadata store init error: %w", err)
	}

	var (
		db  *sql.DB
		mgr sqldb.RepositoryManager
	)
	if c.DeploySyncDSN != "" {
		db, mgr, err = sqldb.OpenPostgres(ctx, c.DeploySyncDSN)
	} else {
		db, mgr, err = sqldb.OpenSQLite(ctx, c.DeploySyncPath)
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("deploy sync db init error: %w", err)
	}

	eng := engine.New(logger)
	if err := eng.Attach(ctx, store); err != nil {
		store.Close()
		db.Close()
		return nil, fmt.Errorf("engine attach error: %w", err)
	}

	binder, err := newBinder(c)
	if err != nil {
		store.Close()
		db.Close()
		return nil, err
	}

	var opts []syncer.Option
	if c.MaxUpdatesInResponse > 0 {
		opts = append(opts, syncer.WithMaxUpdates(c.MaxUpdatesInResponse))
	}
	if c.LegacyBundleActions {
		opts = append(opts, syncer.WithLegacyBundleActions())
	}

	svc := syncer.New(eng, mgr.Deployments(db), mgr.Computers(db),
		cookie.NewIssuer(binder, c.CookieTTL),
		content.Locations{ContentRoot: c.ContentRoot},
		logger, opts...)

	return &App{
		config: c,
		logger: logger,
		store:  store,
		db:     db,
		engine: eng,
		server: transport.NewServer(c.EndpointAddr, logger, svc, c.ContentDir),
	}, nil
}

func newBinder(c *config.Config) (cookie.Binder, error) {
	switch c.CookieBinder {
	case "", "none":
		return cookie.NopBinder{}, nil
	case "mac":
		return cookie.MACBinder{Secret: []byte(c.CookieSecret), TTL: c.CookieTTL}, nil
	case "aes":
		return cookie.AESBinder{Key: []byte(c.CookieSecret)}, nil
	default:
		return nil, fmt.Errorf("unknown cookie binder %q", c.CookieBinder)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.engine.Detach()
	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "closing metadata store", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing deploy sync db", "error", err)
	}
}
