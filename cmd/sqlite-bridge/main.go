package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codex-k8s/sqlite-bridge/configs"
	"github.com/codex-k8s/sqlite-bridge/internal/app"
	"github.com/codex-k8s/sqlite-bridge/internal/audit"
	"github.com/codex-k8s/sqlite-bridge/internal/bridge"
	"github.com/codex-k8s/sqlite-bridge/internal/commands"
	"github.com/codex-k8s/sqlite-bridge/internal/config"
	"github.com/codex-k8s/sqlite-bridge/internal/constants"
	"github.com/codex-k8s/sqlite-bridge/internal/dsl"
	"github.com/codex-k8s/sqlite-bridge/internal/engine"
	commandshttp "github.com/codex-k8s/sqlite-bridge/internal/http/commands"
	"github.com/codex-k8s/sqlite-bridge/internal/log"
	"github.com/codex-k8s/sqlite-bridge/internal/otel"
	"github.com/codex-k8s/sqlite-bridge/internal/render"
	"github.com/codex-k8s/sqlite-bridge/internal/runtime"
	"github.com/codex-k8s/sqlite-bridge/internal/templates"
)

func main() {
	embeddedConfig := flag.String("embedded-config", "", "Use embedded config from configs/ (filename)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.LogLevel)

	dslCfg, err := loadConfig(cfg, *embeddedConfig, logger)
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	go func() {
		sig := <-sigCh
		logger.Warn("shutdown requested", "signal", sig.String())
		cancel()
	}()

	if err := run(baseCtx, cfg, dslCfg, logger); err != nil {
		logger.Error("runtime error", "error", err)
		cancel()
		os.Exit(1)
	}
}

// loadConfig renders and parses the YAML document: the file named by the
// environment, the requested embedded config, or the embedded default.
func loadConfig(cfg config.Config, embedded string, logger *slog.Logger) (*dsl.Config, error) {
	opts := render.Options{DataDir: cfg.DataDir}

	var (
		rendered render.Result
		err      error
	)
	if cfg.ConfigPath != "" && embedded == "" {
		rendered, err = render.RenderFile(cfg.ConfigPath, opts)
	} else {
		name := embedded
		if name == "" {
			name = configs.DefaultName
		}
		raw, loadErr := configs.Load(name)
		if loadErr != nil {
			return nil, loadErr
		}
		rendered, err = render.RenderBytes(name, raw, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	logger.Debug("config rendered", "env", rendered.Used)
	return dsl.Load(rendered.Data)
}

func run(ctx context.Context, cfg config.Config, dslCfg *dsl.Config, logger *slog.Logger) error {
	shutdownTracing, err := otel.Setup(ctx, otel.Settings{
		Enabled:        cfg.OTelEnabled,
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    config.AppName,
		ServiceVersion: dslCfg.Server.Version,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	eng, err := engine.New(engine.Options{
		Driver:      dslCfg.Database.Driver,
		BusyTimeout: dslCfg.Database.BusyTimeoutDuration(),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	if target := dslCfg.Database.Target; target != "" {
		if _, err := eng.Connect(ctx, target, dslCfg.Database.IsURI, dslCfg.Database.AutocommitEnabled()); err != nil {
			return fmt.Errorf("open initial target: %w", err)
		}
		logger.Info("database target opened", "driver", eng.Driver(), "target", target)
	}

	registry, err := commands.NewRegistry(eng, dslCfg.CommandOptions())
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	lang := dslCfg.Audit.Lang
	if cfg.Lang != "" {
		lang = cfg.Lang
	}
	messages, err := templates.Load(lang)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	var console io.Writer
	if dslCfg.Audit.ConsoleEnabled() {
		console = os.Stderr
	}
	sink, err := audit.New(audit.Options{
		Path:     dslCfg.Audit.AuditPath(cfg.DataDir),
		Console:  console,
		Messages: messages,
		Events:   logger,
	})
	if err != nil {
		return err
	}
	defer sink.Close()

	dispatcher, err := bridge.New(bridge.Options{
		Registry:         registry,
		Audit:            sink,
		Logger:           logger,
		MaxSubjectLength: dslCfg.Audit.MaxSubjectLength,
	})
	if err != nil {
		return err
	}

	server, err := runtime.Builder{Logger: logger, Dispatcher: dispatcher}.Build(dslCfg.Server)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	logger.Info("bridge ready",
		"transport", dslCfg.Server.Transport,
		"commands", registry.Names(),
		"audit", dslCfg.Audit.AuditPath(cfg.DataDir),
		"lang", messages.Lang(),
	)

	switch dslCfg.Server.Transport {
	case constants.TransportStdio:
		return runStdio(ctx, server)
	default:
		return runHTTP(ctx, cfg, dslCfg, server, dispatcher, eng, logger)
	}
}

func runStdio(ctx context.Context, server *mcp.Server) error {
	err := server.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runHTTP(ctx context.Context, envCfg config.Config, dslCfg *dsl.Config, server *mcp.Server, dispatcher *bridge.Dispatcher, eng *engine.SQLite, logger *slog.Logger) error {
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{
		Stateless: dslCfg.Server.HTTP.Stateless,
	})

	routes := app.Routes{
		MCP:      mcpHandler,
		Commands: commandshttp.New(dslCfg.Server.HTTP.CommandsPath, dispatcher, logger),
		Ready: func(ctx context.Context) error {
			// No target before establish-database-target is a valid state.
			if err := eng.Ping(ctx); err != nil && !errors.Is(err, engine.ErrNotConnected) {
				return err
			}
			return nil
		},
	}

	application, err := app.New(ctx, dslCfg.Server, routes, logger, envCfg.ShutdownTimeout)
	if err != nil {
		return err
	}

	return application.Run(ctx)
}
