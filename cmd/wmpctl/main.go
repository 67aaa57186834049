// Command wmpctl is an interactive console for WMP HVAC gateways.
//
// It connects to the gateways listed in a YAML config file (or a single
// gateway given on the command line), keeps the sessions alive, and
// offers an interactive prompt for commands, raw protocol lines, live
// traffic watching, and network discovery.
//
// Usage:
//
//	wmpctl [flags]
//
// Flags:
//
//	-config string     YAML configuration file path
//	-mac string        Gateway hardware identifier (single-gateway mode)
//	-address string    Gateway address (single-gateway mode)
//	-proxy string      Relay proxy address
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-trace string      Write a CBOR protocol trace to this file
//	-state string      JSON file for persisted gateway attributes
//
// Examples:
//
//	# Connect to one gateway directly
//	wmpctl -mac CC3F1D0163D5 -address 192.168.1.10
//
//	# Several gateways from a config file, with protocol tracing
//	wmpctl -config /etc/wmp/gateways.yaml -trace /tmp/wmp.cbor
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wmp-protocol/wmp-go/cmd/wmpctl/interactive"
	"github.com/wmp-protocol/wmp-go/pkg/discovery"
	"github.com/wmp-protocol/wmp-go/pkg/gateway"
	"github.com/wmp-protocol/wmp-go/pkg/log"
	"github.com/wmp-protocol/wmp-go/pkg/persistence"
	"github.com/wmp-protocol/wmp-go/pkg/scheduler"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

var (
	configPath string
	macFlag    string
	addrFlag   string
	proxyFlag  string
	logLevel   string
	traceFile  string
	statePath  string
)

func init() {
	flag.StringVar(&configPath, "config", "", "YAML configuration file path")
	flag.StringVar(&macFlag, "mac", "", "Gateway hardware identifier (single-gateway mode)")
	flag.StringVar(&addrFlag, "address", "", "Gateway address (single-gateway mode)")
	flag.StringVar(&proxyFlag, "proxy", "", "Relay proxy address")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&traceFile, "trace", "", "Write a CBOR protocol trace to this file")
	flag.StringVar(&statePath, "state", "", "JSON file for persisted gateway attributes")
}

// consoleProvisioner surfaces unknown gateways found by discovery.
type consoleProvisioner struct {
	logger *slog.Logger
}

func (p *consoleProvisioner) AnnounceGateway(rec wire.DiscoveryRecord) {
	p.logger.Info("unprovisioned gateway found",
		"model", rec.Model, "mac", rec.MAC, "ip", rec.IP, "name", rec.Name)
}

func main() {
	flag.Parse()

	logger := newLogger(logLevel)

	gateways, err := gatewayConfigs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// The watcher is a toggleable trace sink behind the console's
	// "watch" command; the file trace rides alongside it when enabled.
	watcher := interactive.NewWatcher()
	trace := log.Logger(watcher)
	if traceFile != "" {
		fl, err := log.NewFileLogger(traceFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening trace file: %v\n", err)
			os.Exit(1)
		}
		defer fl.Close()
		trace = log.NewMultiLogger(fl, watcher)
		logger.Info("protocol trace enabled", "file", traceFile)
	}

	// One shared store; attributes are grouped per gateway inside it.
	var store gateway.AttributeStore = gateway.NewMemoryStore()
	if statePath != "" {
		fs, err := persistence.NewFileStore(statePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening state file: %v\n", err)
			os.Exit(1)
		}
		store = fs
		logger.Info("attribute persistence enabled", "file", statePath)
	}

	sched := scheduler.New(logger)
	defer sched.Stop()

	registry := gateway.NewRegistry(&consoleProvisioner{logger: logger})
	registry.SetTrace(trace)

	resolver := &discovery.BroadcastResolver{Config: discovery.Config{
		Window: discovery.DefaultWindow,
		Logger: logger,
		Trace:  trace,
	}}

	for _, gc := range gateways {
		g, err := gateway.New(gateway.Config{
			MAC:       gc.MAC,
			Address:   gc.Address,
			ProxyAddr: gc.Proxy,
			Units:     gc.Units,
			ClockSync: gc.ClockSync,
			Scheduler: sched,
			Store:     store,
			Resolver:  resolver,
			Logger:    logger,
			Trace:     trace,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "gateway %s: %v\n", gc.MAC, err)
			os.Exit(1)
		}
		registry.Add(g)
		if err := g.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "starting gateway %s: %v\n", gc.MAC, err)
			os.Exit(1)
		}
		logger.Info("gateway configured", "mac", g.MAC(), "address", gc.Address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	console, err := interactive.New(registry, watcher, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		os.Exit(1)
	}
	go console.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	for _, g := range registry.Gateways() {
		g.Stop()
	}
}

// gatewayConfigs merges the config file and the single-gateway flags.
func gatewayConfigs() ([]GatewayConfig, error) {
	var gateways []GatewayConfig
	if configPath != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		gateways = cfg.Gateways
		if logLevel == "info" && cfg.LogLevel != "" {
			logLevel = cfg.LogLevel
		}
		if traceFile == "" {
			traceFile = cfg.TraceFile
		}
	}
	if macFlag != "" {
		if addrFlag == "" {
			return nil, fmt.Errorf("-mac requires -address")
		}
		gateways = append(gateways, GatewayConfig{
			MAC:     macFlag,
			Address: addrFlag,
			Proxy:   proxyFlag,
		})
	}
	if len(gateways) == 0 {
		return nil, fmt.Errorf("no gateways: pass -config or -mac/-address")
	}
	return gateways, nil
}

func newLogger(level string) *slog.Logger {
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
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
