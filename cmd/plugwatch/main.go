package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"plugwatch/internal/backend"
	"plugwatch/internal/ble"
	"plugwatch/internal/config"
	"plugwatch/internal/device"
	"plugwatch/internal/engine"
	"plugwatch/internal/notify"
	"plugwatch/internal/push"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/plugwatch/config.yaml)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	setupLogging(cfg.LogLevel)
	printBanner(cfg)

	// Backend API client
	client := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout.Std())

	// BLE link to the relay's HM-10 module
	link := ble.NewLink(ble.NewTinygoAdapter(), ble.LinkOptions{
		DeviceName:  cfg.BLE.DeviceName,
		ScanTimeout: cfg.BLE.ScanTimeout.Std(),
	})

	// Notification dispatcher
	permission := notify.PermissionDenied
	if cfg.Notify.Enabled {
		permission = notify.PermissionGranted
	}
	dispatcher := notify.NewDispatcher(
		notify.Capability{Supported: true, Permission: permission},
		notify.DesktopSink{},
		notify.StatusLineSink{W: os.Stdout},
	)

	// Reconciliation engine
	eng := engine.New(client, link, dispatcher,
		engine.StatusFunc(func(msg string) { fmt.Println(msg) }),
		engine.Options{
			PollInterval: cfg.Backend.PollInterval.Std(),
			Override:     cfg.Override,
		})
	link.OnMessage(eng.HandleDeviceCommand)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background push channel: local delivery endpoint plus the
	// subscription handshake, enabled on demand with the "push" command.
	var pushManager *push.Manager
	var pushServer *http.Server
	if cfg.Push.Enabled {
		keys, err := push.GenerateSubscriberKeys()
		if err != nil {
			log.Fatalf("push: generating subscriber keys: %v", err)
		}
		receiver := push.NewReceiver(keys, dispatcher.Dispatch)
		pushServer = &http.Server{Addr: cfg.Push.ListenAddr, Handler: receiver}
		go func() {
			if err := pushServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("push: delivery endpoint: %v", err)
			}
		}()
		registrar := push.NewLocalRegistrar(keys, cfg.Push.AdvertiseURL)
		pushManager = push.NewManager(push.StaticPermission(permission), registrar, client)
		log.Printf("Push delivery endpoint listening on %s", cfg.Push.ListenAddr)
	}

	// Seed the snapshot, then start polling. A failed initial fetch is
	// non-fatal; the poll loop converges once the backend is reachable.
	if err := eng.Prime(ctx); err != nil {
		log.Printf("Backend unreachable at startup, continuing with defaults")
	}
	go eng.Run(ctx)

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Read console commands in the background
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	log.Println("Ready! Type 'help' for commands. Ctrl+C to quit.")

	// Main event loop
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				shutdown(pushServer, link, cancel)
				return
			}
			handleCommand(ctx, line, eng, link, pushManager)

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			shutdown(pushServer, link, cancel)
			log.Println("Goodbye!")
			return
		}
	}
}

// handleCommand executes one console command.
func handleCommand(ctx context.Context, line string, eng *engine.Engine, link *ble.Link, pushManager *push.Manager) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "connect":
		// Connect blocks through scan and discovery, so run it off the
		// event loop. Duplicate requests bounce off ErrBusy.
		go func() {
			if err := link.Connect(ctx); err != nil {
				log.Printf("ERROR: connect: %v", err)
				return
			}
			fmt.Printf("Connected to %s\n", link.DeviceName())
		}()

	case "disconnect":
		link.Disconnect()

	case "toggle":
		if len(fields) != 2 {
			fmt.Println("usage: toggle status|function")
			return
		}
		field := device.Field(fields[1])
		if !field.Valid() {
			fmt.Printf("unknown field %q (want status or function)\n", fields[1])
			return
		}
		eng.Toggle(field)

	case "override":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			fmt.Println("usage: override on|off")
			return
		}
		eng.SetOverride(fields[1] == "on")

	case "push":
		if pushManager == nil {
			fmt.Println("Push is disabled in the config")
			return
		}
		result := pushManager.Enable(ctx)
		if result.Enabled {
			fmt.Println("Push notifications enabled")
		} else {
			fmt.Printf("Push notifications not enabled: %s\n", result.Reason)
		}

	case "state":
		s := eng.Snapshot()
		fmt.Printf("status=%v function=%v override=%v link=%s\n",
			s.Status, s.Function, eng.Override(), link.State())

	case "help":
		fmt.Println("commands:")
		fmt.Println("  connect                 scan for the relay and connect")
		fmt.Println("  disconnect              drop the BLE connection")
		fmt.Println("  toggle status|function  flip a relay field")
		fmt.Println("  override on|off         switch to the raw wire protocol")
		fmt.Println("  push                    enable background push delivery")
		fmt.Println("  state                   print the current snapshot")
		fmt.Println("  quit                    exit")

	case "quit", "exit":
		// Delivered as EOF to the event loop.
		os.Stdin.Close()

	default:
		fmt.Printf("unknown command %q (try 'help')\n", fields[0])
	}
}

// shutdown tears down the push endpoint and the BLE link.
func shutdown(pushServer *http.Server, link *ble.Link, cancel context.CancelFunc) {
	cancel()
	if pushServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		if err := pushServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("[push] endpoint shutdown", "error", err)
		}
	}
	link.Disconnect()
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// setupLogging routes slog through a text handler at the configured level.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== plugwatch ===")
	fmt.Printf("  Backend:  %s (poll %s)\n", cfg.Backend.URL, cfg.Backend.PollInterval.Std())
	peripheral := cfg.BLE.DeviceName
	if peripheral == "" {
		peripheral = "first match"
	}
	fmt.Printf("  BLE:      %s (scan timeout %s)\n", peripheral, cfg.BLE.ScanTimeout.Std())
	fmt.Printf("  Notify:   %v\n", cfg.Notify.Enabled)
	fmt.Printf("  Push:     %v\n", cfg.Push.Enabled)
	fmt.Printf("  Override: %v\n", cfg.Override)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("=================")
}
