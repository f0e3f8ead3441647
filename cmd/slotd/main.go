// Command slotd serves a message slot registry over the network.
//
// Clients open a session on one of the 256 device instances, select a
// channel, and write or read the single message that channel holds.
// Messages live for as long as the daemon runs.
//
// Usage:
//
//	slotd [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-listen string        Listen address (default ":7380")
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write protocol events to this file
//	-metrics string       Serve Prometheus metrics on this address
//	-mdns                 Advertise the daemon over mDNS
//	-idle-timeout dur     Close connections idle for this long (0 disables)
//
// Examples:
//
//	# Start with defaults
//	slotd
//
//	# Start from a config file with debug logging
//	slotd -config /etc/msgslot/slotd.yaml -log-level debug
//
//	# Advertise on the local network and expose metrics
//	slotd -mdns -metrics :9380
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/msgslot/msgslot-go/pkg/config"
	"github.com/msgslot/msgslot-go/pkg/discovery"
	"github.com/msgslot/msgslot-go/pkg/log"
	"github.com/msgslot/msgslot-go/pkg/service"
	"github.com/msgslot/msgslot-go/pkg/slot"
	"github.com/msgslot/msgslot-go/pkg/transport"
)

type flags struct {
	configFile  string
	listen      string
	logLevel    string
	protocolLog string
	metrics     string
	mdns        bool
	idleTimeout time.Duration
}

func main() {
	var f flags
	flag.StringVar(&f.configFile, "config", "", "Configuration file path")
	flag.StringVar(&f.listen, "listen", "", "Listen address (overrides config)")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&f.protocolLog, "protocol-log", "", "Write protocol events to this file")
	flag.StringVar(&f.metrics, "metrics", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&f.mdns, "mdns", false, "Advertise the daemon over mDNS")
	flag.DurationVar(&f.idleTimeout, "idle-timeout", 0, "Close connections idle for this long (0 disables)")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "slotd: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	reg, err := slot.NewRegistry(slot.Config{
		MaxChannels:    int(cfg.Limits.MaxChannels),
		MaxBufferBytes: int(cfg.Limits.MaxBufferBytes),
	})
	if err != nil {
		return fmt.Errorf("create registry: %w", err)
	}
	defer reg.Close()

	svcConfig := service.DefaultServiceConfig()
	svcConfig.ListenAddress = cfg.ListenAddress
	svcConfig.MaxHandlesPerConn = cfg.MaxHandlesPerConn
	svcConfig.IdleTimeout = f.idleTimeout
	svcConfig.InstanceName = cfg.Discovery.Instance
	svcConfig.Logger = logger

	if cfg.TLS.Enabled() {
		tlsConfig, err := transport.LoadServerTLSConfig(&transport.TLSConfig{
			CertFile: cfg.TLS.CertFile,
			KeyFile:  cfg.TLS.KeyFile,
		})
		if err != nil {
			return err
		}
		svcConfig.TLSConfig = tlsConfig
	}

	protocolLogger, closeLog, err := protocolLogger(cfg.ProtocolLog, logger)
	if err != nil {
		return err
	}
	defer closeLog()
	svcConfig.ProtocolLogger = protocolLogger

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svcConfig.Registerer = promReg

	svc, err := service.NewSlotService(reg, svcConfig)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	svc.OnEvent(func(event service.Event) {
		logEvent(logger, event)
	})

	if cfg.Discovery.Enabled {
		advConfig := discovery.DefaultAdvertiserConfig()
		advConfig.Interface = cfg.Discovery.Interface
		svc.SetAdvertiser(discovery.NewMDNSAdvertiser(advConfig))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	logger.Info("slotd started",
		"addr", svc.Addr().String(),
		"tls", cfg.TLS.Enabled(),
		"mdns", cfg.Discovery.Enabled,
		"minors", slot.MaxMinors,
		"buffer_len", slot.BufferLen)

	var metricsServer *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg}))
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", cfg.MetricsAddress)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	if err := svc.Stop(); err != nil {
		logger.Warn("error stopping service", "error", err)
	}

	stats := reg.Stats()
	logger.Info("registry released", "channels", stats.Channels, "stored_bytes", stats.StoredBytes)
	return nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(f flags) (config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		var err error
		if cfg, err = config.Load(f.configFile); err != nil {
			return cfg, err
		}
	}

	if f.listen != "" {
		cfg.ListenAddress = f.listen
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.protocolLog != "" {
		cfg.ProtocolLog = f.protocolLog
	}
	if f.metrics != "" {
		cfg.MetricsAddress = f.metrics
	}
	if f.mdns {
		cfg.Discovery.Enabled = true
	}
	if f.idleTimeout < 0 {
		return cfg, fmt.Errorf("%w: negative idle timeout", config.ErrInvalid)
	}
	return cfg, cfg.Validate()
}

// protocolLogger builds the protocol event sink. Debug logging always
// mirrors events to slog; a file is added when path is set.
func protocolLogger(path string, logger *slog.Logger) (log.Logger, func(), error) {
	var loggers []log.Logger
	closeFn := func() {}

	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger).WithLevel(slog.LevelDebug))
	}
	if path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, closeFn, fmt.Errorf("open protocol log: %w", err)
		}
		loggers = append(loggers, fl)
		closeFn = func() {
			if dropped := fl.Dropped(); dropped > 0 {
				logger.Warn("protocol log dropped events", "count", dropped)
			}
			_ = fl.Close()
		}
		logger.Info("protocol logging enabled", "path", fl.Path())
	}

	switch len(loggers) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return loggers[0], closeFn, nil
	default:
		return log.NewMultiLogger(loggers...), closeFn, nil
	}
}

func logEvent(logger *slog.Logger, event service.Event) {
	switch event.Type {
	case service.EventConnected:
		logger.Info("client connected", "conn", event.ConnID, "remote", event.RemoteAddr)
	case service.EventDisconnected:
		logger.Info("client disconnected", "conn", event.ConnID, "remote", event.RemoteAddr)
	case service.EventHandleOpened:
		logger.Debug("session opened", "conn", event.ConnID, "handle", event.Handle, "minor", event.Minor)
	case service.EventChannelSelected:
		logger.Debug("channel selected", "conn", event.ConnID, "handle", event.Handle,
			"minor", event.Minor, "channel", event.Channel)
	case service.EventHandleClosed:
		logger.Debug("session closed", "conn", event.ConnID, "handle", event.Handle)
	}
}
