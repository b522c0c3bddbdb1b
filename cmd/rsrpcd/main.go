// Command rsrpcd runs the rich-presence bridge daemon: the binary IPC
// listener, browser WebSocket intake, process scanner, and fan-out hub
// (§4.8 "Server facade").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coventry-labs/rsrpc/internal/bridge"
	"github.com/coventry-labs/rsrpc/internal/catalog"
	"github.com/coventry-labs/rsrpc/internal/catalogwatch"
	"github.com/coventry-labs/rsrpc/internal/config"
	"github.com/coventry-labs/rsrpc/internal/logger"
	"github.com/coventry-labs/rsrpc/internal/procscan"
)

func main() {
	root := &cobra.Command{
		Use:   "rsrpcd",
		Short: "rich-presence bridge daemon",
		RunE:  run,
	}

	root.Flags().String("config", "", "path to a YAML config file")
	root.Flags().String("catalog", "", "path to a detectable-application catalog JSON file")
	root.Flags().Bool("no-scanner", false, "disable the process scanner (C6)")
	root.Flags().Bool("no-ipc", false, "disable the native IPC listener (C4)")
	root.Flags().Bool("no-ws-intake", false, "disable the browser WebSocket intake (C5)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if catalogPath, _ := cmd.Flags().GetString("catalog"); catalogPath != "" {
		cfg.CatalogPath = catalogPath
	}
	if noScanner, _ := cmd.Flags().GetBool("no-scanner"); noScanner {
		cfg.EnableScanner = false
	}
	if noIPC, _ := cmd.Flags().GetBool("no-ipc"); noIPC {
		cfg.EnableIPC = false
	}
	if noWS, _ := cmd.Flags().GetBool("no-ws-intake"); noWS {
		cfg.EnableWSIntake = false
	}

	logsEnabled := os.Getenv("RSRPC_LOGS_ENABLED") == "1" || cfg.LogsEnabled
	if err := logger.Init(logsEnabled, cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	catalogJSON := []byte(`{}`)
	if cfg.CatalogPath != "" {
		loaded, err := os.ReadFile(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("read catalog %s: %w", cfg.CatalogPath, err)
		}
		catalogJSON = loaded
	}
	if _, err := catalog.Load(catalogJSON); err != nil {
		// §7: malformed catalog entries fail loudly, at startup.
		return fmt.Errorf("parse catalog: %w", err)
	}

	opts := bridge.Options{
		EnableIPC:               cfg.EnableIPC,
		EnableScanner:           cfg.EnableScanner,
		EnableWSIntake:          cfg.EnableWSIntake,
		EnableWSSecondaryEvents: cfg.EnableWSSecondaryEvents,
	}
	if cfg.ScanIntervalMS > 0 {
		opts.ScanInterval = time.Duration(cfg.ScanIntervalMS) * time.Millisecond
	} else {
		opts.ScanInterval = procscan.DefaultInterval
	}

	br, err := bridge.FromSource(catalogJSON, opts)
	if err != nil {
		return fmt.Errorf("from-source: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.CatalogPath != "" {
		go func() {
			if err := catalogwatch.Watch(ctx, cfg.CatalogPath, br.CatalogStore()); err != nil && ctx.Err() == nil {
				logger.Warn("catalogwatch: stopped", "error", err)
			}
		}()
	}

	logger.Info("rsrpcd starting",
		"ipc", cfg.EnableIPC, "scanner", cfg.EnableScanner, "ws_intake", cfg.EnableWSIntake)

	if err := br.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}
