package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	txStdLib "github.com/Thiht/transactor/stdlib"

	"studylock-backend/internal/analytics"
	"studylock-backend/internal/config"
	"studylock-backend/internal/db"
	"studylock-backend/internal/logging"
	"studylock-backend/internal/notify"
	"studylock-backend/internal/profiles"
	"studylock-backend/internal/reminders"
	"studylock-backend/internal/tasks"
)

type transactor interface {
	WithinTransaction(ctx context.Context, fn func(context.Context) error) error
}

// app is the shared runtime every command starts from.
type app struct {
	cfg *config.Config
	log logging.Logger
	db  *sql.DB
	tx  transactor

	dbGetter txStdLib.DBGetter

	tasks         *tasks.Repo
	profiles      *profiles.Repo
	subscriptions *notify.Repo
	analytics     *analytics.Recorder
}

func newLogger(cfg *config.Config, opts *RootOptions) logging.Logger {
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	return logging.New(logging.Options{Level: level, Prefix: "studylock"})
}

// openApp loads config and connects to Postgres. migrate applies pending
// migrations first.
func openApp(opts *RootOptions, migrate bool) (*app, error) {
	cfg := config.Load()
	log := newLogger(cfg, opts)

	database, err := db.Connect(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	log.Info("connected to PostgreSQL", "host", cfg.DBHost, "db", cfg.DBName)

	if migrate {
		if err := db.MigrateUp(database); err != nil {
			_ = database.Close()
			return nil, err
		}
		log.Debug("schema up to date")
	}

	tx, dbGetter := txStdLib.NewTransactor(database, txStdLib.NestedTransactionsSavepoints)

	return &app{
		cfg:           cfg,
		log:           log,
		db:            database,
		tx:            tx,
		dbGetter:      dbGetter,
		tasks:         tasks.NewRepo(dbGetter),
		profiles:      profiles.NewRepo(dbGetter),
		subscriptions: notify.NewRepo(dbGetter),
		analytics:     analytics.NewRecorder(dbGetter, log),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// pushSender returns nil (not a typed nil) when VAPID keys are missing so
// the reminder job reports itself unconfigured.
func (a *app) pushSender() reminders.Sender {
	wp, err := notify.NewWebPush(a.cfg.VAPIDPublicKey, a.cfg.VAPIDPrivateKey, a.cfg.VAPIDSubject)
	if errors.Is(err, notify.ErrNotConfigured) {
		a.log.Warn("VAPID keys not set, push reminders disabled")
		return nil
	}
	if err != nil {
		a.log.Warn("web push setup failed, push reminders disabled", "error", err)
		return nil
	}
	return wp
}

func (a *app) reminder() *reminders.Reminder {
	return reminders.New(a.tasks, a.subscriptions, a.pushSender(), a.analytics, a.log)
}
