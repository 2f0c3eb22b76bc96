package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dreamiurg/mountaineers-assistant-sub000/config"
	"github.com/dreamiurg/mountaineers-assistant-sub000/logging"
	"github.com/dreamiurg/mountaineers-assistant-sub000/store"
)

// app holds what every subcommand needs: the config, a logger and the store.
type app struct {
	cfg     config.Config
	logger  *logging.Logger
	store   store.RecordStore
	records *store.Records
}

func loadApp(path string) (*app, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	rs, err := store.Open(cfg.StoreOptions(), logger.Component("store"))
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   rs,
		records: store.NewRecords(rs),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store failed", "error", err)
	}
	a.logger.Close()
}

// instance labels pushed metrics with the host name.
func instance() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
