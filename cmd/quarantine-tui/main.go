/*
Package main
File: main.go
Description: Terminal client. Plays one local session saved as a YAML file
under QUARANTINE_SAVE_DIR, so the game resumes where it was left.
*/

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/everforgeworks/quarantine-life/internal/config"
	"github.com/everforgeworks/quarantine-life/internal/game"
	"github.com/everforgeworks/quarantine-life/internal/logging"
	"github.com/everforgeworks/quarantine-life/internal/store"
	"github.com/everforgeworks/quarantine-life/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadTUI()
	if err != nil {
		return err
	}

	saves, err := store.NewYAMLFiles(cfg.SaveDir)
	if err != nil {
		return err
	}

	// The alternate screen owns the terminal, so logs go to a file.
	logFile, err := os.OpenFile(filepath.Join(cfg.SaveDir, "tui.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger, err := logging.New(logFile, cfg.LogLevel, "tui")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	saver := game.NewSaver(saves, logger)
	var wg sync.WaitGroup
	wg.Go(func() { saver.Run(ctx) })
	defer func() {
		cancel()
		wg.Wait()
	}()

	manager := game.NewManager(saves, logger, game.WithSaver(saver))
	sess, err := manager.Open(ctx, cfg.SessionID)
	if err != nil {
		return err
	}
	return tui.Run(ctx, manager, sess, cfg.TickInterval)
}
