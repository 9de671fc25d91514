// Command timelockd runs a timelock behind an HTTP API.
//
// Usage:
//
//	timelockd              Run the server
//	timelockd token -caller 0x...   Mint a bearer token for a caller
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moonshotcommons/timelock/api"
	"github.com/moonshotcommons/timelock/auth"
	"github.com/moonshotcommons/timelock/config"
	"github.com/moonshotcommons/timelock/events"
	"github.com/moonshotcommons/timelock/httpserver"
	"github.com/moonshotcommons/timelock/httpserver/tlsconfig"
	"github.com/moonshotcommons/timelock/listener"
	"github.com/moonshotcommons/timelock/observability"
	slogkit "github.com/moonshotcommons/timelock/slog"
	"github.com/moonshotcommons/timelock/timelock"
)

const appName = "timelockd"

// Set at build time
var appVersion = "dev"

var loadOpts = config.LoadConfigOpts{
	EnvVar:    "TIMELOCK_CONFIG",
	DirName:   "timelock",
	EnvPrefix: "TIMELOCK_",
	Optional:  true,
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.LogFatal(slog.Default())
		}
		slogkit.FatalError(slog.Default(), "Failed to load configuration", err)
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "token" {
		err = runToken(cfg, os.Args[2:], os.Stdout)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(2)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg)
	if err != nil {
		slogkit.FatalError(slog.Default(), "Fatal error", err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	err := config.LoadConfig(cfg, loadOpts)
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	instanceID, err := config.GetInstanceID()
	if err != nil {
		return nil, fmt.Errorf("failed to get instance ID: %w", err)
	}
	cfg.SetInstanceID(instanceID)

	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	log, shutdownLogs, err := observability.InitLogs(ctx, observability.InitLogsOpts{
		Level:      cfg.LogLevel,
		JSON:       cfg.LogAsJSON,
		Config:     cfg,
		AppName:    appName,
		AppVersion: appVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logs: %w", err)
	}
	slog.SetDefault(log)
	defer shutdown(log, "logs", shutdownLogs)

	if cfg.GetLoadedConfigPath() != "" {
		log.Info("Loaded configuration", slog.String("path", cfg.GetLoadedConfigPath()))
	}

	meter, shutdownMetrics, err := observability.InitMetrics(ctx, observability.InitMetricsOpts{
		Config:  cfg,
		AppName: appName,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer shutdown(log, "metrics", shutdownMetrics)

	_, shutdownTraces, err := observability.InitTraces(ctx, observability.InitTracesOpts{
		Config:  cfg,
		AppName: appName,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize traces: %w", err)
	}
	defer shutdown(log, "traces", shutdownTraces)

	st, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		err := closeStore()
		if err != nil {
			log.Warn("Failed to close state store", slog.Any("error", err))
		}
	}()
	log.Info("Opened state store", slog.String("store", cfg.Store.String()))

	ledger, dispatcher, err := newHost(cfg, log)
	if err != nil {
		return err
	}

	recorder := events.NewRecorder(events.RecorderOptions{})
	metricsSink, err := events.NewMetricsSink(meter)
	if err != nil {
		return err
	}

	tl, err := timelock.New(timelock.Options{
		Address:  cfg.GetAddress(),
		Store:    st,
		Caller:   dispatcher,
		Treasury: ledger,
		Sink: events.Fanout{
			recorder,
			events.LogSink{Logger: log},
			metricsSink,
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	replay := auth.NewReplayCache(auth.ReplayCacheOptions{})
	defer replay.Stop()
	verifier, err := auth.NewVerifier(authOptions(cfg, replay))
	if err != nil {
		return err
	}

	handler, err := api.NewServer(api.Options{
		TimeLock:    tl,
		Verifier:    verifier,
		Recorder:    recorder,
		MaxBodySize: cfg.Server.MaxBodySize,
		HostID:      cfg.GetInstanceID(),
		Logger:      log,
		Meter:       meter,
	})
	if err != nil {
		return err
	}

	return serve(ctx, cfg, handler, log)
}

func serve(ctx context.Context, cfg *config.Config, handler http.Handler, log *slog.Logger) error {
	lnOpts := listener.Options{
		Bind:   cfg.Server.Bind,
		Port:   cfg.Server.Port,
		Logger: log,
	}
	if cfg.Tailscale.Enabled {
		lnOpts.Tailscale = &listener.TailscaleOptions{
			Hostname:  cfg.Tailscale.Hostname,
			AuthKey:   cfg.Tailscale.AuthKey,
			Ephemeral: cfg.Tailscale.Ephemeral,
			StateDir:  cfg.Tailscale.StateDir,
			Tags:      cfg.Tailscale.Tags,
			Port:      cfg.Tailscale.Port,
			Debug:     cfg.LogLevel == "debug",
		}
	}
	ln, err := listener.Open(ctx, lnOpts)
	if err != nil {
		return err
	}
	defer ln.Close() //nolint:errcheck

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	serveTLS := false
	if !ln.TLS {
		tlsCfg, watchTLS, err := tlsconfig.Load(cfg.Server.TLSPath, cfg.Server.TLSCertPEM, cfg.Server.TLSKeyPEM)
		if err != nil {
			return err
		}
		if watchTLS != nil {
			err = watchTLS(ctx)
			if err != nil {
				return err
			}
		}
		if tlsCfg != nil {
			srv.TLSConfig = tlsCfg
			serveTLS = true
		}
	}

	return httpserver.Serve(ctx, srv, ln, httpserver.ServeOpts{
		TLS:    serveTLS,
		Logger: log,
	})
}

func authOptions(cfg *config.Config, replay *auth.ReplayCache) auth.Options {
	return auth.Options{
		Secret: []byte(cfg.Auth.TokenSecret),
		Issuer: cfg.Auth.Issuer,
		MaxTTL: cfg.Auth.MaxTokenTTL,
		Replay: replay,
	}
}

func shutdown(log *slog.Logger, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := fn(ctx)
	if err != nil {
		log.Warn("Failed to shut down OpenTelemetry provider", slog.String("signal", name), slog.Any("error", err))
	}
}
