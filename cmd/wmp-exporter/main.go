// Command wmp-exporter exposes WMP gateway and unit state as Prometheus
// metrics.
//
// It keeps a persistent session to each configured gateway and serves
// /metrics with connection state, signal strength, and per-unit power,
// mode, setpoint and ambient temperature.
//
// Usage:
//
//	wmp-exporter -config /etc/wmp/gateways.yaml [-listen :9643]
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/wmp-protocol/wmp-go/pkg/discovery"
	"github.com/wmp-protocol/wmp-go/pkg/gateway"
	"github.com/wmp-protocol/wmp-go/pkg/scheduler"
	"github.com/wmp-protocol/wmp-go/pkg/unit"
)

const (
	defaultListen    = ":9643"
	scrapeRefresh    = 15 * time.Second
	httpReadTimeout  = 15 * time.Second
	httpWriteTimeout = 15 * time.Second
	httpIdleTimeout  = 60 * time.Second
)

var (
	connectedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wmp_gateway_connected",
		Help: "Whether the session to the gateway is up (1) or down (0).",
	}, []string{"gateway"})

	failedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wmp_gateway_failed",
		Help: "Whether reconnects to the gateway are failing repeatedly.",
	}, []string{"gateway"})

	rssiGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wmp_gateway_rssi_dbm",
		Help: "WiFi signal strength reported by the gateway.",
	}, []string{"gateway"})

	powerGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wmp_unit_power",
		Help: "Whether the unit is switched on.",
	}, []string{"gateway", "unit"})

	modeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wmp_unit_mode",
		Help: "Unit operating mode, one series per mode with value 0 or 1.",
	}, []string{"gateway", "unit", "mode"})

	setpointGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wmp_unit_setpoint_celsius",
		Help: "Unit setpoint temperature.",
	}, []string{"gateway", "unit"})

	ambientGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wmp_unit_ambient_celsius",
		Help: "Unit ambient temperature.",
	}, []string{"gateway", "unit"})

	errorGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wmp_unit_error",
		Help: "Whether the unit reports an error condition.",
	}, []string{"gateway", "unit"})
)

// GatewayConfig describes one gateway in the config file.
type GatewayConfig struct {
	MAC     string `yaml:"mac"`
	Address string `yaml:"address"`
	Proxy   string `yaml:"proxy,omitempty"`
	Units   []int  `yaml:"units,omitempty"`
}

// FileConfig is the YAML configuration file layout.
type FileConfig struct {
	Listen   string          `yaml:"listen,omitempty"`
	Gateways []GatewayConfig `yaml:"gateways"`
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file path")
		listen     = flag.String("listen", "", "Listen address (default \":9643\")")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "missing -config")
		os.Exit(1)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	addr := defaultListen
	if cfg.Listen != "" {
		addr = cfg.Listen
	}
	if *listen != "" {
		addr = *listen
	}

	prometheus.MustRegister(connectedGauge, failedGauge, rssiGauge,
		powerGauge, modeGauge, setpointGauge, ambientGauge, errorGauge)

	sched := scheduler.New(logger)
	defer sched.Stop()

	registry := gateway.NewRegistry(nil)
	resolver := &discovery.BroadcastResolver{Config: discovery.Config{Logger: logger}}

	for _, gc := range cfg.Gateways {
		g, err := gateway.New(gateway.Config{
			MAC:       gc.MAC,
			Address:   gc.Address,
			ProxyAddr: gc.Proxy,
			Units:     gc.Units,
			Scheduler: sched,
			Store:     gateway.NewMemoryStore(),
			Resolver:  resolver,
			Logger:    logger,
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
	}

	stop := make(chan struct{})
	go collectLoop(registry, stop)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		IdleTimeout:  httpIdleTimeout,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(stop)
	server.Close()
	for _, g := range registry.Gateways() {
		g.Stop()
	}
}

func loadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Gateways) == 0 {
		return nil, fmt.Errorf("%s: no gateways configured", path)
	}
	for i, gw := range cfg.Gateways {
		if gw.MAC == "" || gw.Address == "" {
			return nil, fmt.Errorf("%s: gateway %d needs mac and address", path, i+1)
		}
	}
	return &cfg, nil
}

// collectLoop refreshes the gauges from gateway state on a fixed
// cadence. Metric reads are cheap copies; the loop never touches the
// network itself.
func collectLoop(registry *gateway.Registry, stop <-chan struct{}) {
	ticker := time.NewTicker(scrapeRefresh)
	defer ticker.Stop()

	collect(registry)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			collect(registry)
		}
	}
}

var exportedModes = []unit.Mode{
	unit.ModeOff, unit.ModeAuto, unit.ModeHeat,
	unit.ModeDry, unit.ModeFan, unit.ModeCool,
}

func collect(registry *gateway.Registry) {
	for _, g := range registry.Gateways() {
		mac := g.MAC()
		connectedGauge.WithLabelValues(mac).Set(boolValue(g.Connected()))
		failedGauge.WithLabelValues(mac).Set(boolValue(g.Failed()))
		rssiGauge.WithLabelValues(mac).Set(float64(g.RSSI()))

		for _, id := range g.UnitIDs() {
			s, ok := g.Unit(id)
			if !ok {
				continue
			}
			u := strconv.Itoa(id)

			powerGauge.WithLabelValues(mac, u).Set(boolValue(s.Power))
			for _, m := range exportedModes {
				modeGauge.WithLabelValues(mac, u, m.String()).Set(boolValue(s.Mode == m))
			}
			if s.HasSetpoint {
				setpointGauge.WithLabelValues(mac, u).Set(unit.ToCelsius(s.SetpointTenths))
			}
			if s.HasAmbient {
				ambientGauge.WithLabelValues(mac, u).Set(unit.ToCelsius(s.AmbientTenths))
			}
			errorGauge.WithLabelValues(mac, u).Set(boolValue(s.ErrStatus != "" && s.ErrStatus != "OK"))
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
