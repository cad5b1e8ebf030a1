package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/yndnr/clinvault/internal/infra/buildinfo"
	"github.com/yndnr/clinvault/internal/infra/confloader"
	"github.com/yndnr/clinvault/internal/infra/shutdown"
	"github.com/yndnr/clinvault/internal/server/config"
	"github.com/yndnr/clinvault/internal/server/httpserver"
	"github.com/yndnr/clinvault/internal/storage"
	"github.com/yndnr/clinvault/internal/telemetry/logger"
	"github.com/yndnr/clinvault/internal/telemetry/metric"
	"github.com/yndnr/clinvault/internal/telemetry/tracer"
)

const serviceName = "clinvault-server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		logLevel    = flag.String("log-level", "", "Override log.level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", serviceName, buildinfo.String())
		return nil
	}

	loader := newLoader(*configFile, *logLevel)
	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	slogLogger := logger.Slog(log)

	log.Info("starting "+serviceName, buildinfo.LogAttrs()...)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx := context.Background()

	tp, err := tracer.New(ctx, cfg.TracerConfig(serviceName, buildinfo.Version))
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	registry := metric.NewRegistry()
	var ops *metric.StorageOps
	if cfg.Telemetry.MetricsEnabled {
		if ops, err = metric.NewStorageOps(registry.Registerer()); err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
	}

	engine := storage.NewEngine(
		storage.NewSelector(cfg.StorageOptions(slogLogger, registry.Registerer())),
		storage.Config{
			Cache:   cfg.CacheConfig(),
			Logger:  slogLogger,
			Metrics: ops,
		},
	)
	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if engine.IsDegraded() {
		log.Warn("storage is running on the ephemeral fallback; data will not survive a restart",
			"error", engine.LastInitError())
	}
	if cfg.Telemetry.MetricsEnabled {
		registry.Registerer().MustRegister(metric.NewCollector(engine))
	}

	var servers []*adminServer
	if cfg.Server.AdminAddr != "" {
		router := httpserver.NewRouter(&httpserver.RouterConfig{
			Store:          engine,
			Metrics:        metricsHandler(cfg, registry),
			Logger:         slogLogger,
			AdminAllowList: cfg.Server.AdminAllowList,
			RateLimit:      cfg.Server.AdminRateLimit,
		})
		servers = append(servers, &adminServer{srv: httpserver.New(cfg.Server.AdminAddr, router, slogLogger)})
	}
	if cfg.Server.AdminSocket != "" {
		router := httpserver.NewRouter(&httpserver.RouterConfig{
			Store:   engine,
			Metrics: metricsHandler(cfg, registry),
			Logger:  slogLogger,
		})
		servers = append(servers, &adminServer{srv: httpserver.NewUnix(cfg.Server.AdminSocket, router, slogLogger)})
	}
	for _, s := range servers {
		if s.ln, err = s.srv.Listen(); err != nil {
			for _, started := range servers {
				if started.ln != nil {
					_ = started.ln.Close()
				}
			}
			_ = engine.Close()
			return fmt.Errorf("admin listener: %w", err)
		}
	}

	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout, slogLogger)

	// Registered in startup order; hooks run in reverse.
	shutdownHandler.OnShutdown("logger", func(context.Context) error {
		return logger.Close(log)
	})
	shutdownHandler.OnShutdown("tracer", tp.Shutdown)
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		return engine.Close()
	})
	for _, s := range servers {
		shutdownHandler.OnShutdown("admin "+s.ln.Addr().String(), s.srv.Shutdown)
	}

	if watcher := watchConfig(loader, slogLogger); watcher != nil {
		shutdownHandler.OnShutdown("config watcher", func(context.Context) error {
			return watcher.Stop()
		})
	}

	for _, s := range servers {
		go func(s *adminServer) {
			if err := s.srv.Serve(s.ln); err != nil {
				log.Error("admin server error", "addr", s.ln.Addr().String(), "error", err)
				shutdownHandler.Trigger()
			}
		}(s)
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		return err
	}
	return nil
}

type adminServer struct {
	srv *httpserver.Server
	ln  net.Listener
}

func newLoader(configFile, logLevel string) *confloader.Loader {
	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if logLevel != "" {
		opts = append(opts, confloader.WithOverrides(map[string]any{"log.level": logLevel}))
	}
	return confloader.NewLoader(opts...)
}

// loadConfig layers file and environment over the defaults and validates
// the result.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func metricsHandler(cfg *config.ServerConfig, registry *metric.Registry) http.Handler {
	if !cfg.Telemetry.MetricsEnabled {
		return nil
	}
	return registry.Handler()
}

// watchConfig applies log level changes from the config file. Other
// settings need a restart.
func watchConfig(loader *confloader.Loader, log *slog.Logger) *confloader.Watcher {
	path := loader.FilePath()
	if path == "" {
		return nil
	}

	watcher, err := confloader.NewWatcher(path, confloader.WithWatcherLogger(log))
	if err != nil {
		log.Warn("config watcher disabled", "error", err)
		return nil
	}

	confloader.OnReload(watcher, loader, config.Default, func(cfg *config.ServerConfig, err error) {
		if err == nil {
			err = config.Verify(cfg)
		}
		if err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		if cfg.Log.Level != logger.Level() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	watcher.Start()
	return watcher
}
