package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dormoron/deskweb"
	"github.com/dormoron/deskweb/config"
	"github.com/dormoron/deskweb/internal/desk"
	"github.com/dormoron/deskweb/internal/deskapi"
	"github.com/dormoron/deskweb/logging"
	"github.com/dormoron/deskweb/observers/accesslog"
	"github.com/dormoron/deskweb/observers/opentelemetry"
	"github.com/dormoron/deskweb/observers/prometheus"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML, JSON or TOML configuration file")
	watch := flag.Bool("watch", true, "reload the log level when the configuration file changes")
	flag.Parse()

	if err := run(*configFile, *watch); err != nil {
		fmt.Fprintln(os.Stderr, "deskweb:", err)
		os.Exit(1)
	}
}

func run(configFile string, watch bool) error {
	cfg, settings, err := config.Load(configFile, config.WithWatch(watch))
	if err != nil {
		return err
	}
	defer cfg.Close()

	logger := logging.New(settings.Logging)
	cfg.AddChangeListener(func(string) {
		next, err := config.Decode(cfg)
		if err != nil {
			logger.Warn("ignoring invalid configuration", "error", err)
			return
		}
		logger.SetLevel(next.Logging.Level)
		logger.Info("log level updated", "level", next.Logging.Level)
	})

	d, err := desk.New(settings.Desk, logger.With("component", "desk"))
	if err != nil {
		return err
	}

	var observers []deskweb.Observer
	if settings.Tracing.Enabled {
		observers = append(observers, &opentelemetry.ObserverBuilder{})
	}
	var metrics *prometheus.Collector
	if settings.Metrics.Enabled {
		metrics, err = prometheus.InitObserverBuilder(settings.Metrics.Namespace, "http",
			"request_duration_microseconds", "HTTP request latency by route pattern.").Build()
		if err != nil {
			return err
		}
		observers = append(observers, metrics)
	}
	if settings.Logging.Access {
		observers = append(observers, accesslog.InitObserverBuilder(logger.Logger))
	}

	srv := deskweb.InitHTTPServer(
		deskweb.WithLogger(logger.Logger),
		deskweb.WithServerConfig(deskweb.ServerConfig{
			ReadTimeout:       settings.Server.ReadTimeout,
			WriteTimeout:      settings.Server.WriteTimeout,
			IdleTimeout:       settings.Server.IdleTimeout,
			ReadHeaderTimeout: settings.Server.ReadHeaderTimeout,
			MaxHeaderBytes:    settings.Server.MaxHeaderBytes,
			MaxBodyBytes:      settings.Server.MaxBodyBytes,
		}),
		deskweb.WithMatchCacheSize(settings.Server.MatchCacheSize),
		deskweb.WithObservers(observers...),
		deskweb.WithLoader(deskweb.Modules{
			"handlers": deskapi.Handlers(d, logger.With("component", "handlers")),
		}),
	)

	// 单个处理函数注册失败只记录日志，其余路由照常服务
	for _, module := range settings.Modules {
		if err = srv.AddModule(module); err != nil {
			var cfgErr *deskweb.ConfigurationError
			if !errors.As(err, &cfgErr) {
				return err
			}
			logger.Error("module registered with errors", "module", module, "error", err)
		}
	}
	for _, m := range settings.Static {
		var opts []deskweb.StaticOption
		if m.CacheControl != "" {
			opts = append(opts, deskweb.StaticWithCacheControl(m.CacheControl))
		}
		if err = srv.AddStatic(m.Prefix, m.Dir, opts...); err != nil {
			return err
		}
	}
	if metrics != nil {
		if err = srv.Passthrough(http.MethodGet, settings.Metrics.Path, metrics.Handler()); err != nil {
			return err
		}
	}

	shutdownError := make(chan error, 1)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server")
		d.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
		defer cancel()
		shutdownError <- srv.Shutdown(ctx)
	}()

	switch {
	case settings.Server.HTTP3:
		err = srv.StartHTTP3(settings.Server.Addr, settings.Server.CertFile, settings.Server.KeyFile, deskweb.DefaultHTTP3Config())
	case settings.Server.CertFile != "":
		err = srv.StartTLS(settings.Server.Addr, settings.Server.CertFile, settings.Server.KeyFile)
	default:
		err = srv.Start(settings.Server.Addr)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err = <-shutdownError; err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
