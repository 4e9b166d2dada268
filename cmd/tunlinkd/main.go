package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tunlink/internal/connection"
	"tunlink/internal/connectivity"
	"tunlink/internal/core"
	"tunlink/internal/helper"
)

// Build info — injected via ldflags at compile time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	autoConnect := flag.Bool("auto-connect", false, "Connect automatically without credential validation")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tunlinkd %s (commit=%s, built=%s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	core.Log.Infof("Core", "tunlinkd %s starting...", version)

	// === 1. Core components ===
	bus := core.NewEventBus()

	cfgManager := core.NewConfigManager(resolveRelativeToExe(*configPath))
	if err := cfgManager.Load(); err != nil {
		core.Log.Fatalf("Core", "Failed to load config: %v", err)
	}
	cfg := cfgManager.Get()
	core.Log.Configure(cfg.Logging)

	if cfg.Server.Host == "" {
		core.Log.Fatalf("Core", "No server configured in %s", *configPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === 2. Helper supervisors + platform ===
	plat := newPlatform(cfg.Routing.Endpoint)
	proxy := helper.NewProxy(resolveRelativeToExe(cfg.Helpers.ProxyBin))
	tunnel := helper.NewTunnel(resolveRelativeToExe(cfg.Helpers.TunnelBin))

	// === 3. Connect ===
	m, err := connection.Start(ctx, cfg.Server, *autoConnect, connection.Deps{
		Proxy:    proxy,
		Tunnel:   tunnel,
		Checker:  connectivity.NewNetChecker(),
		Platform: plat,
	})
	if err != nil {
		core.Log.Fatalf("Core", "Failed to connect: %v", err)
	}

	// === 4. Event wiring ===
	m.SetReconnectingListener(func() {
		bus.Publish(core.Event{Type: core.EventConnectionReconnecting})
	})
	m.SetReconnectedListener(func() {
		bus.Publish(core.Event{Type: core.EventConnectionReconnected})
	})
	bus.Subscribe(core.EventConnectionReconnecting, func(core.Event) {
		core.Log.Infof("Core", "Network path reconnecting")
	})
	bus.Subscribe(core.EventConnectionReconnected, func(core.Event) {
		core.Log.Infof("Core", "Network path restored")
	})
	bus.Subscribe(core.EventPowerSuspend, func(core.Event) { m.OnSuspend() })
	bus.Subscribe(core.EventPowerResume, func(core.Event) { m.OnResume() })

	// === 5. Power notifications (where the platform provides them) ===
	if plat.Power != nil {
		err := plat.Power.Start(
			func() { bus.PublishAsync(core.Event{Type: core.EventPowerSuspend}) },
			func() { bus.PublishAsync(core.Event{Type: core.EventPowerResume}) },
		)
		if err != nil {
			core.Log.Warnf("Core", "Power notifications unavailable: %v", err)
		} else {
			defer plat.Power.Stop()
		}
	}

	// --- Wait for shutdown signal or connection death ---
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	core.Log.Infof("Core", "Connected. Press Ctrl+C to stop.")

	requested := false
	select {
	case <-sig:
		requested = true
		core.Log.Infof("Core", "Shutting down...")
		m.Stop()
	case <-m.Done():
	}

	// === Graceful shutdown ===
	select {
	case <-m.Done():
		bus.Publish(core.Event{
			Type:    core.EventConnectionStopped,
			Payload: core.StoppedPayload{Requested: requested},
		})
		core.Log.Infof("Core", "Shutdown complete.")
	case <-time.After(10 * time.Second):
		core.Log.Errorf("Core", "Shutdown timed out, forcing exit.")
		os.Exit(1)
	}
}

// resolveRelativeToExe resolves a relative path against the directory
// containing the running executable. Absolute paths are returned
// unchanged.
func resolveRelativeToExe(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	exe, err := os.Executable()
	if err != nil {
		core.Log.Warnf("Core", "Cannot determine executable path, using %q as-is: %v", path, err)
		return path
	}
	return filepath.Join(filepath.Dir(exe), path)
}
