package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kstaniek/can-udp-bridge/internal/bridge"
	"github.com/kstaniek/can-udp-bridge/internal/config"
	"github.com/kstaniek/can-udp-bridge/internal/metrics"
)

func main() { os.Exit(run(os.Args[1:])) }

func run(args []string) int {
	cfg, showVersion, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if showVersion {
		fmt.Printf("can-udp-bridge %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	bc, err := config.Load(cfg.configPath)
	if err != nil {
		l.Error("config_error", "path", cfg.configPath, "error", err)
		fmt.Fprintf(os.Stderr, "failed to load configuration %s: %v\n", cfg.configPath, err)
		return 1
	}
	l.Info("config_loaded",
		"path", cfg.configPath,
		"summary", bc.Summary(),
		"heartbeat_ms", bc.Server.HeartbeatMs,
		"reconnect_timeout_ms", bc.Server.ReconnectTimeoutMs,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	eng := bridge.New(bc,
		bridge.WithLogger(l),
		bridge.WithCapacity(cfg.maxPorts, cfg.maxChannels),
		bridge.WithPollInterval(cfg.pollInterval),
	)
	metrics.SetReadinessFunc(eng.Ready)
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	if err := eng.Initialize(); err != nil {
		l.Error("bridge_init_error", "error", err)
		fmt.Fprintf(os.Stderr, "failed to initialize bridge: %v\n", err)
		return 1
	}
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	cleanupMDNS, err := startMDNS(ctx, cfg, bc)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
	} else if cfg.mdnsEnable {
		l.Info("mdns_started", "service", mdnsServiceType, "name", mdnsInstance(cfg), "port", bc.Ports[0].ListenPort)
		defer cleanupMDNS()
	}

	var stop atomic.Bool
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			l.Info("shutdown_signal", "signal", s.String())
			stop.Store(true)
		case <-ctx.Done():
		}
	}()

	runErr := eng.Run(&stop)
	eng.Shutdown()
	cancel()
	wg.Wait()
	if runErr != nil {
		l.Error("bridge_run_error", "error", runErr)
		return 1
	}
	return 0
}
