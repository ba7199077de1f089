package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/studiotools/canvas-bridge/internal/api"
	"github.com/studiotools/canvas-bridge/internal/bridge"
	"github.com/studiotools/canvas-bridge/internal/catalog"
	"github.com/studiotools/canvas-bridge/internal/config"
	"github.com/studiotools/canvas-bridge/internal/history"
	"github.com/studiotools/canvas-bridge/internal/lock"
	"github.com/studiotools/canvas-bridge/internal/log"
	"github.com/studiotools/canvas-bridge/internal/mcp"
	"github.com/studiotools/canvas-bridge/internal/storage"
	"github.com/studiotools/canvas-bridge/internal/tui/watch"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "watch":
		os.Exit(runWatch(args))
	case "history":
		os.Exit(runHistory(args))
	case "check":
		os.Exit(runCheck(args))
	case "version":
		fmt.Printf("canvas-bridge version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`canvas-bridge - expose the Canvas plugin scripting API to AI agents

Usage:
  canvas-bridge <command> [flags]

Commands:
  start     Run the bridge (plugin WebSocket endpoint + MCP stdio server)
  watch     Live TUI over a running bridge's event stream
  history   Print recent request history
  check     Validate the configuration and print its fingerprint
  version   Show version information
  help      Show this help message

The agent talks JSON-RPC on stdin/stdout of 'start'; all logs go to stderr.
`)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	noStdio := fs.Bool("no-stdio", false, "Disable the MCP stdio server (HTTP surface only)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("canvas-bridge starting", "version", version, "listen", cfg.Bridge.Listen)

	pidLockPath := filepath.Join(cfg.Service.StateDir, "canvas-bridge.lock")
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	var store *history.Store
	if cfg.History.Enabled {
		db, err := storage.OpenSQLite(context.Background(), cfg.History.Path)
		if err != nil {
			logger.Error("failed to open history database", "path", cfg.History.Path, "error", err)
			return 1
		}
		defer db.Close()
		store = history.NewStore(db)
		logger.Info("history database opened", "path", cfg.History.Path)
	}

	hub := api.NewEventHub(256)
	b := bridge.New(bridge.Config{
		RequestTimeout: cfg.Bridge.RequestTimeout,
		NotifyDuration: cfg.Bridge.NotifyDuration,
	}, hub)

	if cfg.API.Enabled && cfg.API.Auth.Token == "" {
		logger.Warn("operational API is enabled without a token; relying on the loopback bind")
	}

	apiServer := api.New(api.Config{
		Listen:     cfg.Bridge.Listen,
		OpsEnabled: cfg.API.Enabled,
		Token:      cfg.API.Auth.Token,
	}, b, store, hub, log.WithComponent("api"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	go func() {
		if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	// Nil when stdio is disabled, so the select below never fires on it.
	var stdioDone chan struct{}
	if *noStdio {
		logger.Info("stdio server disabled")
	} else {
		stdioDone = make(chan struct{})
		mcpServer := mcp.NewServer(b, catalog.Default(), store, os.Stdin, os.Stdout)
		go func(done chan struct{}) {
			defer close(done)
			if err := mcpServer.Run(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("stdio: %w", err)
			}
		}(stdioDone)
	}

	logger.Info("canvas-bridge running")

	exit := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case <-stdioDone:
		// The agent closed our stdin; nothing is left to serve.
		logger.Info("stdio stream closed, shutting down")
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		exit = 1
	}

	// Fail in-flight requests before tearing the servers down so every
	// caller gets a terminal answer.
	b.Close()
	cancel()

	logger.Info("canvas-bridge stopped")
	return exit
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	url := fs.String("url", "", "Bridge base URL (default derived from config)")
	token := fs.String("token", "", "Bearer token (default from config)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *url == "" {
		*url = "http://" + cfg.Bridge.Listen
	}
	if *token == "" {
		*token = cfg.API.Auth.Token
	}

	p := tea.NewProgram(watch.New(*url, *token))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch TUI failed: %v\n", err)
		return 1
	}
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Number of entries to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if !cfg.History.Enabled {
		fmt.Fprintln(os.Stderr, "history is disabled in the configuration")
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history database: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := history.NewStore(db).Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode history: %v\n", err)
			return 1
		}
		return 0
	}

	if len(entries) == 0 {
		fmt.Println("No recorded requests.")
		return 0
	}
	fmt.Printf("%-20s  %-8s  %-20s  %-8s  %8s  %s\n", "TIME", "KIND", "TOOL", "OUTCOME", "MS", "ERROR")
	for _, e := range entries {
		fmt.Printf("%-20s  %-8s  %-20s  %-8s  %8d  %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Kind, e.Tool, e.Outcome, e.Duration.Milliseconds(), e.Error)
	}
	return 0
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	fp, err := config.Fingerprint(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fingerprint config: %v\n", err)
		return 1
	}

	fmt.Println("Configuration OK")
	fmt.Printf("  listen:          %s\n", cfg.Bridge.Listen)
	fmt.Printf("  request timeout: %s\n", cfg.Bridge.RequestTimeout)
	fmt.Printf("  history:         %v\n", cfg.History.Enabled)
	fmt.Printf("  fingerprint:     %s\n", fp)
	return 0
}
