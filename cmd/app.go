package cmd

import (
	"fmt"
	"os"
	"strings"

	"clinicsync/backup"
	"clinicsync/batch"
	"clinicsync/config"
	"clinicsync/importer"
	"clinicsync/rfv"
	"clinicsync/storage"

	"github.com/sirupsen/logrus"
)

// app bundles the store and the engine services one command works with.
type app struct {
	cfg     *config.Config
	store   *storage.SQLiteStore
	backups *backup.Manager
	service *importer.Service
	log     *logrus.Entry
}

func openApp() (*app, error) {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}

func newApp(cfg *config.Config) (*app, error) {
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	store, err := storage.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	backups := backup.NewManager(store, cfg.Backup.Retention(), log.WithField("component", "backup"))
	service := importer.NewService(importer.Dependencies{
		Identities:   store,
		Writer:       store,
		Directory:    store,
		Backups:      backups,
		Records:      store,
		Audit:        store,
		Recalculator: rfv.NewHook(store, log.WithField("component", "rfv")),
	}, importer.Options{
		OperatorUserID: cfg.Operator.UserID,
		IndexPageSize:  cfg.Import.IndexPageSize,
		MessageLimit:   cfg.Import.MessageLimit,
		Batch: batch.Options{
			InsertBatchSize:  cfg.Import.InsertBatchSize,
			UpdateBatchSize:  cfg.Import.UpdateBatchSize,
			UpdateWorkers:    cfg.Import.UpdateWorkers,
			BatchTimeout:     cfg.Import.BatchTimeout,
			ProgressInterval: cfg.Import.ProgressInterval,
			Logger:           log.WithField("component", "batch"),
		},
		Logger: log.WithField("component", "importer"),
	})

	return &app{cfg: cfg, store: store, backups: backups, service: service, log: log}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func newLogger(cfg config.LogConfig) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logrus.NewEntry(logger).WithField("app", "clinicsync"), nil
}
