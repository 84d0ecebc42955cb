// Package server initializes and runs the sync server: it opens the database,
// applies migrations, wires the Acumatica client, engine and HTTP API
// together, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/finvista/acusync/internal/acumatica"
	"github.com/finvista/acusync/internal/engine"
	"github.com/finvista/acusync/internal/logging"
	"github.com/finvista/acusync/internal/repository/repomanager"
	"github.com/finvista/acusync/internal/retryx"
	"github.com/finvista/acusync/internal/server/api"
	"github.com/finvista/acusync/internal/server/config"
	"github.com/finvista/acusync/internal/store"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	api    *api.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgres()

	objects, err := store.NewS3Store(ctx, store.S3Options{
		Region:    c.S3Region,
		Endpoint:  c.S3BaseEndpoint,
		Bucket:    c.S3Bucket,
		AccessKey: c.S3RootUser,
		SecretKey: c.S3RootPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("object store init error: %w", err)
	}
	adapter := store.NewAdapter(db, repos, objects, logger)

	policy := retryx.DefaultPolicy()
	client := acumatica.NewClient(c.AcumaticaBaseURL, c.AcumaticaEndpointVersion, c.RequestTimeout, logger)
	sessions := acumatica.NewSessionManager(client, repos.Sessions(db), acumatica.Credentials{
		Name:     c.AcumaticaUsername,
		Password: c.AcumaticaPassword,
		Company:  c.AcumaticaCompany,
		Branch:   c.AcumaticaBranch,
	}, c.SessionLifetime, c.SessionExpiryMargin, policy, logger)
	reader := acumatica.NewReader(client, sessions, c.PageSize, policy, logger)

	remote := engine.NewRemote(reader, sessions)
	tracker := engine.NewTracker(repos.SyncJobs(db), c.JobExpiryCeiling, logger)
	eng := engine.New(remote, adapter, tracker, logger)
	reconciler := engine.NewReconciler(remote, adapter, logger)
	verifier := engine.NewVerifier(remote, adapter, logger)

	apiSrv := api.NewServer(c, eng, tracker, reconciler, verifier, logger)

	return &App{config: c, logger: logger, db: db, api: apiSrv}, nil
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

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.api.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
