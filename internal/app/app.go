package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"walletqueue/internal/config"
	"walletqueue/internal/logger"
	"walletqueue/internal/providers"
	"walletqueue/internal/queue"
	"walletqueue/internal/repository/store"
	"walletqueue/internal/task"
	"walletqueue/internal/tasks"
	"walletqueue/internal/wallet"

	"github.com/fasthttp/router"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	methodErrorDB = []string{"method", "error"}
)

// Collaborators are the SDK-backed capabilities the host injects. The
// engine treats them as opaque; a nil entry is simply not registered and
// any task depending on it fails fast with a configuration error.
type Collaborators struct {
	Portal     wallet.PortalApp
	Wallet     wallet.Wallet
	Cashu      wallet.CashuWallet
	Relays     wallet.RelayStatuses
	Prompt     wallet.PromptUser
	NostrStore wallet.NostrStore
	Rates      wallet.RateSource
}

type App struct {
	cfg       *config.Config
	collab    Collaborators
	container *providers.Container
	queue     *queue.Queue
	runner    *task.Runner
	db        store.Store
}

func New(cfg *config.Config, collab Collaborators) *App {
	return &App{cfg: cfg, collab: collab}
}

// Queue exposes the work-queue driver for protocol listeners.
func (app *App) Queue() *queue.Queue {
	return app.queue
}

// Providers exposes the container so logout/reset flows can re-register
// fresh collaborator instances.
func (app *App) Providers() *providers.Container {
	return app.container
}

func (app *App) Run() {
	ctx, cancelProcesses := context.WithCancel(context.Background())
	defer cancelProcesses()

	logger.Init()

	db, err := store.Open(app.cfg.DB.Path)
	if err != nil {
		log.WithError(err).Fatal("Failed to open wallet database")
	}
	defer db.Close()

	dbReqCount := kitprometheus.NewCounterFrom(
		prometheus.CounterOpts{
			Namespace: app.cfg.Metrics.Namespace,
			Subsystem: app.cfg.Metrics.Subsystem,
			Name:      "db_request_count",
			Help:      "db request count",
		}, methodErrorDB,
	)
	dbReqDuration := kitprometheus.NewSummaryFrom(
		prometheus.SummaryOpts{
			Namespace: app.cfg.Metrics.Namespace,
			Subsystem: app.cfg.Metrics.Subsystem,
			Name:      "db_request_duration",
			Help:      "db request duration",
		},
		methodErrorDB,
	)
	app.db = store.NewInstrumentingMiddleware(dbReqCount, dbReqDuration, db)

	app.container = providers.New()
	app.registerCollaborators()

	app.runner, err = task.NewRunner(app.db, app.container, prometheus.DefaultRegisterer)
	if err != nil {
		log.WithError(err).Fatal("Failed to create task runner")
	}

	taskConfig := tasks.Config{
		ProfileTTL:        app.cfg.Tasks.ProfileCacheTTL,
		RateTTL:           app.cfg.Tasks.RateCacheTTL,
		RelayPollInterval: app.cfg.Tasks.RelayPollInterval,
		RelayWaitTimeout:  app.cfg.Tasks.RelayWaitTimeout,
	}
	registry := task.NewRegistry(tasks.All(taskConfig))

	app.queue, err = queue.New(app.db, app.runner, registry, prometheus.DefaultRegisterer)
	if err != nil {
		log.WithError(err).Fatal("Failed to create work queue")
	}

	// Drain whatever the previous process lifetime left behind before
	// listeners start feeding new work.
	if err = app.queue.Resume(ctx); err != nil {
		log.WithError(err).Error("Startup queue drain failed")
	}

	metricsRouter := router.New()
	metricsRouter.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	metricsServer := &fasthttp.Server{
		Handler:            metricsRouter.Handler,
		MaxRequestBodySize: app.cfg.System.ReadBufferSize,
		ReadTimeout:        app.cfg.System.ReadTimeout,
		ReadBufferSize:     app.cfg.System.ReadBufferSize,
	}

	go func() {
		log.WithFields(log.Fields{
			"port": app.cfg.Metrics.Port,
		}).Info("starting metrics server")
		if serveErr := metricsServer.ListenAndServe(":" + app.cfg.Metrics.Port); serveErr != nil {
			log.WithError(serveErr).Error("metrics server run failure")
			return
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)

	defer func(sig os.Signal) {
		log.WithFields(log.Fields{
			"signal": sig.String(),
		}).Info("received signal, exiting")

		cancelProcesses()
		_ = metricsServer.Shutdown()
		log.Info("goodbye")
	}(<-c)
}

// registerCollaborators populates the provider container. Registration is
// last-write-wins, so a reset flow can call this again with fresh
// instances after re-assigning app.collab.
func (app *App) registerCollaborators() {
	app.container.Register(providers.DatabaseService, app.db)
	if app.collab.Portal != nil {
		app.container.Register(providers.PortalAppInterface, app.collab.Portal)
	}
	if app.collab.Wallet != nil {
		app.container.Register(providers.ActiveWalletProvider, app.collab.Wallet)
	}
	if app.collab.Cashu != nil {
		app.container.Register(providers.CashuWalletMethodsProvider, app.collab.Cashu)
	}
	if app.collab.Relays != nil {
		app.container.Register(providers.RelayStatusesProvider, app.collab.Relays)
	}
	if app.collab.Prompt != nil {
		app.container.Register(providers.PromptUserProvider, app.collab.Prompt)
	}
	if app.collab.NostrStore != nil {
		app.container.Register(providers.NostrStoreService, app.collab.NostrStore)
	}
	if app.collab.Rates != nil {
		app.container.Register(providers.RateSourceProvider, app.collab.Rates)
	}
}
