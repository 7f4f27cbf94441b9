/*
Package main
File: main.go
Description: Server entry point. Loads the configuration and the shop catalog,
opens the save store, and runs the session heartbeat, the save worker and the
real-time WebSocket hub behind the HTTP API.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/everforgeworks/quarantine-life/internal/api"
	"github.com/everforgeworks/quarantine-life/internal/catalog"
	"github.com/everforgeworks/quarantine-life/internal/config"
	"github.com/everforgeworks/quarantine-life/internal/events"
	"github.com/everforgeworks/quarantine-life/internal/game"
	"github.com/everforgeworks/quarantine-life/internal/logging"
	"github.com/everforgeworks/quarantine-life/internal/shop"
	"github.com/everforgeworks/quarantine-life/internal/store"
	"github.com/everforgeworks/quarantine-life/internal/store/sqlite"
	"github.com/everforgeworks/quarantine-life/internal/telemetry"
)

// backend bundles the persistence interfaces chosen by QUARANTINE_STORE.
type backend struct {
	gateway   store.Gateway
	history   store.History
	inventory store.Inventory
	close     func() error
}

// openBackend picks the save store. Only SQLite keeps history and
// inventory across restarts; the other backends hold them in memory.
func openBackend(ctx context.Context, cfg config.Server) (backend, error) {
	switch strings.ToLower(cfg.Store) {
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return backend{}, err
		}
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return backend{}, err
		}
		return backend{gateway: db, history: db, inventory: db, close: db.Close}, nil
	case config.StoreYAML:
		files, err := store.NewYAMLFiles(cfg.DataDir)
		if err != nil {
			return backend{}, err
		}
		mem := store.NewMemory()
		return backend{gateway: files, history: mem, inventory: mem, close: func() error { return nil }}, nil
	default:
		mem := store.NewMemory()
		return backend{gateway: mem, history: mem, inventory: mem, close: func() error { return nil }}, nil
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal("server failed", "err", err)
	}
}

func run() error {
	// 1. Configuration & logging
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, "quarantine")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "quarantine-life", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// 2. Static shop catalog from YAML
	items, err := catalog.NewSource(cfg.CatalogPath)
	if err != nil {
		return err
	}

	// 3. Persistence
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store %s: %w", cfg.Store, err)
	}
	defer func() { _ = be.close() }()

	// 4. Sessions, the save worker and the real-time hub
	hub := api.NewHub(logger.WithPrefix("hub"))
	saver := game.NewSaver(be.gateway, logger.WithPrefix("saver"))
	manager := game.NewManager(be.gateway, logger,
		game.WithHistory(be.history),
		game.WithSaver(saver),
		game.WithPublisher(hub),
	)
	roller := events.NewRoller(items, manager, logger, cfg.EventChance, uint64(time.Now().UnixNano()))

	// The saver outlives the signal context: it is stopped only after the
	// HTTP server has drained, so late commits still reach its final flush.
	saverCtx, stopSaver := context.WithCancel(context.Background())
	defer stopSaver()
	var saving sync.WaitGroup
	saving.Go(func() { saver.Run(saverCtx) })
	drainSaver := func() {
		stopSaver()
		saving.Wait()
	}

	var wg sync.WaitGroup
	wg.Go(func() { hub.Run(ctx) })

	// 5. THE HEARTBEAT: one game hour per interval for every live session.
	hb := &game.Heartbeat{
		Manager:   manager,
		Interval:  cfg.TickInterval,
		Logger:    logger,
		AfterTick: roller.RollAll,
	}
	wg.Go(func() { hb.Run(ctx) })

	// 6. Hot-reload: SIGHUP re-reads the catalog without a restart.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := items.Reload(); err != nil {
					logger.Error("catalog reload failed, keeping previous", "err", err)
					continue
				}
				logger.Info("catalog reloaded", "items", len(items.Current().Items))
			}
		}
	}()

	// 7. HTTP API
	srv := &api.Server{
		Manager: manager,
		Shop:    &shop.Shop{Catalog: items, Manager: manager, Inventory: be.inventory, Logger: logger},
		Events:  roller,
		Catalog: items,
		History: be.history,
		Hub:     hub,
		Logger:  logger,
		Origins: cfg.CORSOrigins,
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("QUARANTINE LIFE server live", "addr", cfg.Addr, "store", cfg.Store, "tick", cfg.TickInterval)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		stop()
		wg.Wait()
		drainSaver()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdown(shutdownCtx, httpServer, &wg, drainSaver, logger)
	return nil
}

type httpShutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown drains the HTTP server first, since in-flight requests can still
// commit snapshots. Then it waits for the background workers and only then
// drains the saver.
func shutdown(ctx context.Context, srv httpShutdowner, workers *sync.WaitGroup, drainSaver func(), logger *log.Logger) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	workers.Wait()
	drainSaver()
}
