package main

import (
	"fmt"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/reqsercom/snippetsync/config"
	"github.com/reqsercom/snippetsync/locales"
	"github.com/reqsercom/snippetsync/logger"
	"github.com/reqsercom/snippetsync/reporter"
	"github.com/reqsercom/snippetsync/store"
	"github.com/reqsercom/snippetsync/syncer"
)

// app holds everything a command needs, built from the config file and the
// global flags.
type app struct {
	cfg    *config.File
	root   string
	log    *logger.Logger
	db     *gorm.DB
	repo   *store.Repo
	source locales.Source
	job    *syncer.Job
}

// openApp loads the configuration and opens the store. Any failure here is a
// config read error.
func openApp() (*app, error) {
	path := configPath
	if path == "" {
		dir := rootDir
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, config.FileName)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", syncer.ErrConfigRead, err)
	}
	if rootDir != "" {
		cfg.SetRoot(rootDir)
	}
	root, err := cfg.AbsRoot()
	if err != nil {
		return nil, fmt.Errorf("%w: resolving root: %v", syncer.ErrConfigRead, err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("%w: opening store: %v", syncer.ErrConfigRead, err)
	}
	if *cfg.Database.Migrate {
		if err := store.Migrate(db); err != nil {
			_ = store.Close(db)
			log.Sync()
			return nil, fmt.Errorf("%w: migrating store: %v", syncer.ErrConfigRead, err)
		}
	}

	var source locales.Source
	switch cfg.Locales.Source {
	case config.LocalesFromStore:
		source = store.NewLocaleTargetSource(db)
	default:
		source = locales.Static(cfg.LocaleTargets())
	}

	repo := store.NewRepo(db, log)
	rep := reporter.New(reporter.Options{
		Endpoint:   cfg.Reporter.Endpoint,
		ShopID:     cfg.ShopID,
		Timeout:    cfg.Reporter.Timeout,
		MaxReports: cfg.Reporter.MaxReports,
	}, log)

	job := syncer.New(syncer.Options{
		Root:       root,
		Extensions: cfg.Extensions,
		Exclude:    cfg.Exclude,
		Author:     cfg.Author,
		Locales:    source,
		Repo:       repo,
		Reporter:   rep,
		Log:        log,
		StateDir:   cfg.DataDir,
	})

	return &app{
		cfg:    cfg,
		root:   root,
		log:    log,
		db:     db,
		repo:   repo,
		source: source,
		job:    job,
	}, nil
}

func (a *app) Close() {
	if err := store.Close(a.db); err != nil {
		a.log.Warn("closing store", "error", err)
	}
	a.log.Sync()
}
