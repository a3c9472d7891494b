package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/irctrakz/wgexporter/pkg/command"
	"github.com/irctrakz/wgexporter/pkg/config"
	"github.com/irctrakz/wgexporter/pkg/exporter"
	"github.com/irctrakz/wgexporter/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	configPath   string
	writeConfig  string
	listen       string
	metricsPath  string
	interval     time.Duration
	timeout      time.Duration
	onlineWindow time.Duration
	command      string
	logLevel     string
}

func newRootCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wgexporter",
		Short: "Prometheus exporter for the WireGuard peer table",
		Long: `wgexporter periodically runs "wg show all dump", parses the peer and
interface tables and serves them as Prometheus metrics.

Configuration is read from defaults, then the optional --config file
(.yaml, .yml or .json), then WGEXPORTER_* / LOGGING_* environment
variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", os.Getenv("WGEXPORTER_CONFIG"), "path to a YAML or JSON config file")
	f.StringVar(&o.writeConfig, "write-config", "", "write the effective config to this .yaml or .json file and exit")
	f.StringVar(&o.listen, "listen", "", "address to serve metrics on (default :8000)")
	f.StringVar(&o.metricsPath, "metrics-path", "", "path of the metrics endpoint (default /metrics)")
	f.DurationVar(&o.interval, "interval", 0, "interval between status command runs (default 15s)")
	f.DurationVar(&o.timeout, "timeout", 0, "timeout of a single status command run (default 10s)")
	f.DurationVar(&o.onlineWindow, "online-window", 0, "handshake age under which a peer counts as online (default 10m)")
	f.StringVar(&o.command, "command", "", `status command (default "wg show all dump")`)
	f.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	return cmd
}

func main() {
	if err := newRootCmd(&options{}).Execute(); err != nil {
		logging.Fatalf("wgexporter: %v", err)
	}
}

func loadConfig(cmd *cobra.Command, o *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		if err := config.LoadFromFile(o.configPath, cfg); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Exporter.ListenAddress = o.listen
	}
	if f.Changed("metrics-path") {
		cfg.Exporter.MetricsPath = o.metricsPath
	}
	if f.Changed("interval") {
		cfg.Exporter.Interval = config.Duration(o.interval)
	}
	if f.Changed("timeout") {
		cfg.Exporter.Timeout = config.Duration(o.timeout)
	}
	if f.Changed("online-window") {
		cfg.Exporter.OnlineWindow = config.Duration(o.onlineWindow)
	}
	if f.Changed("command") {
		cfg.Exporter.Command = strings.Fields(o.command)
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, o *options) error {
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}
	if o.writeConfig != "" {
		if err := cfg.SaveToFile(o.writeConfig); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", o.writeConfig)
		return nil
	}
	logCloser, err := cfg.ApplyLogging()
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	e := cfg.Exporter

	registry := prometheus.NewRegistry()
	if e.EnableRuntimeMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	self := exporter.NewSelfMetrics(e.Namespace)
	if !e.DisableSelfMetrics {
		if err := self.Register(registry); err != nil {
			return fmt.Errorf("register exporter metrics: %w", err)
		}
	}

	store := exporter.NewStore()
	registry.MustRegister(exporter.NewCollector(store, exporter.CollectorOptions{
		Namespace:    e.Namespace,
		OnlineWindow: time.Duration(e.OnlineWindow),
		Metrics:      self,
	}))

	refresher := exporter.NewRefresher(command.NewOSRunner(), e.Command, store, self, exporter.RefresherOptions{
		Interval: time.Duration(e.Interval),
		Timeout:  time.Duration(e.Timeout),
	})
	srv := exporter.NewServer(registry, store, exporter.ServerOptions{
		ListenAddress:  e.ListenAddress,
		MetricsPath:    e.MetricsPath,
		HealthPath:     e.HealthPath,
		MaxConnections: e.MaxConnections,
	})

	logging.InfoWithFields(logrus.Fields{
		"listen":        e.ListenAddress,
		"metrics_path":  e.MetricsPath,
		"interval":      time.Duration(e.Interval).String(),
		"timeout":       time.Duration(e.Timeout).String(),
		"online_window": time.Duration(e.OnlineWindow).String(),
	}, "starting wgexporter")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		refresher.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logging.Infof("shutting down")
	case err := <-serveErr:
		stop()
		<-refreshDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warnf("http shutdown: %v", err)
	}
	<-refreshDone
	return nil
}
