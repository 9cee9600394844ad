package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tg_movie_gate_bot/internal/catalog"
	"tg_movie_gate_bot/internal/config"
	"tg_movie_gate_bot/internal/domain"
	"tg_movie_gate_bot/internal/gating"
	"tg_movie_gate_bot/internal/health"
	"tg_movie_gate_bot/internal/i18n"
	"tg_movie_gate_bot/internal/logging"
	"tg_movie_gate_bot/internal/metrics"
	"tg_movie_gate_bot/internal/store"
	"tg_movie_gate_bot/internal/telegram"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	healthShutdownTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

// recordBackend is the store surface the workflow and stats need.
type recordBackend interface {
	Load(ctx context.Context) store.Records
	Get(ctx context.Context, userID int64) (domain.UserRecord, bool)
	Update(ctx context.Context, userID int64, fn store.Mutator) (domain.UserRecord, error)
}

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":         "startup",
		"store_backend": cfg.StoreBackend,
		"lang":          cfg.BotLang,
	}).Info("configuration loaded")

	deployment, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		exitWith(logger, "catalog load error", err)
	}

	logger.WithFields(logging.Fields{
		"event":    "catalog_loaded",
		"channels": len(deployment.Channels),
		"codes":    len(deployment.Movies),
	}).Info("catalog loaded")

	texts, err := i18n.NewTranslator(i18n.LocalesFS, cfg.BotLang)
	if err != nil {
		exitWith(logger, "translation load error", err)
	}

	metrics.MustRegister(nil)

	records, checker, closeStore := openStore(cfg, logger)

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		exitWith(logger, "telegram client setup error", err)
	}

	workflow, err := gating.NewWorkflow(gating.Deps{
		Store:            records,
		Messenger:        tgClient.Messenger(),
		Stats:            store.NewStatsProvider(records),
		Texts:            texts,
		Channels:         deployment.Channels,
		Catalog:          deployment.Movies,
		OperatorID:       cfg.AdminID,
		AutoApproveJoins: cfg.AutoApproveJoins,
		Logger:           logger,
	})
	if err != nil {
		exitWith(logger, "workflow setup error", err)
	}
	tgClient.SetDispatcher(workflow)

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	healthServer := health.NewServer(cfg.HTTPPort, checker, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).WithField("event", "health_error").Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).WithField("event", "health_shutdown_error").Error("health server shutdown error")
	}
	cancelHealth()

	closeStore()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

// openStore builds the configured backend. The returned checker is nil for
// the file backend.
func openStore(cfg config.Config, logger *logrus.Entry) (recordBackend, health.Checker, func()) {
	if !cfg.UsesMongo() {
		fileStore, err := store.NewFileStore(cfg.StateFile, logger)
		if err != nil {
			exitWith(logger, "state file setup error", err)
		}

		logger.WithFields(logging.Fields{
			"event": "store_ready",
			"path":  fileStore.Path(),
		}).Info("using file store")

		return fileStore, nil, func() {}
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		exitWith(logger, "mongo connection error", err)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	err = mongoManager.EnsureBaseIndexes(indexCtx)
	cancelIndexes()
	if err != nil {
		exitWith(logger, "mongo index setup error", err)
	}

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	closeMongo := func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		defer cancelShutdown()

		if err := mongoManager.Close(shutdownCtx); err != nil {
			logger.WithError(err).Error("mongo disconnect error")
			return
		}
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}

	return store.NewMongoStore(mongoManager.PendingUsers(), logger), mongoManager, closeMongo
}

func exitWith(logger *logrus.Entry, msg string, err error) {
	logger.WithError(err).Error(msg)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
