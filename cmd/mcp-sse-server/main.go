// Command mcp-sse-server serves the echo and render tools over the MCP
// HTTP+SSE transport.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/mcp-sse-server-go/content"
	"github.com/ggoodman/mcp-sse-server-go/internal/catalog"
	"github.com/ggoodman/mcp-sse-server-go/internal/config"
	"github.com/ggoodman/mcp-sse-server-go/internal/logctx"
	"github.com/ggoodman/mcp-sse-server-go/internal/metrics"
	"github.com/ggoodman/mcp-sse-server-go/mcp"
	"github.com/ggoodman/mcp-sse-server-go/mcpservice"
	"github.com/ggoodman/mcp-sse-server-go/ssehttp"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	var configPath string
	flagSet := pflag.NewFlagSet("mcp-sse-server", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to a .toml or .yaml config file")
	config.AddFlags(flagSet)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyFlags(flagSet); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, log)
}

func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch cfg.LogFormat {
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(logctx.NewHandler(h)), nil
}

func openContent(ctx context.Context, cfg config.Config, log *slog.Logger) (content.Provider, func(), error) {
	pol, err := content.ParsePolicy(cfg.ContentPolicy)
	if err != nil {
		return nil, nil, err
	}

	var (
		base    content.Provider = content.Default()
		cleanup                  = func() {}
	)
	if cfg.ContentDir != "" {
		dir, err := content.OpenDir(ctx, cfg.ContentDir, content.WithDirLogger(log))
		if err != nil {
			return nil, nil, err
		}
		base = dir
		cleanup = func() { _ = dir.Close() }
	}

	p, err := content.Apply(ctx, pol, base, catalog.RequiredAssets()...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	provider, closeContent, err := openContent(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeContent()

	srv := mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: cfg.ServerName, Version: cfg.ServerVersion}),
		mcpservice.WithToolsCapability(catalog.Tools(provider)),
		mcpservice.WithResourcesCapability(mcpservice.NewContentResources(provider)),
	)

	probe, err := ssehttp.ParseProbePolicy(cfg.ProbePolicy)
	if err != nil {
		return err
	}

	m := metrics.New()
	h, err := ssehttp.New(srv,
		ssehttp.WithLogger(log),
		ssehttp.WithMetrics(m, cfg.MetricsPath),
		ssehttp.WithBaseURL(cfg.BaseURL),
		ssehttp.WithPaths(cfg.SSEPath, cfg.MessagePath),
		ssehttp.WithKeepAlive(cfg.KeepAlive),
		ssehttp.WithExplicitHeaderFlush(cfg.ExplicitHeaderFlush),
		ssehttp.WithProbePolicy(probe),
		ssehttp.WithMaxMessageBytes(cfg.MaxMessageBytes),
	)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "server.listen",
			slog.String("addr", cfg.Addr),
			slog.String("sse_path", cfg.SSEPath),
			slog.String("message_path", cfg.MessagePath),
		)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = h.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("server.shutdown.start")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Streams never finish on their own, so they are ended before Shutdown
	// waits for active connections.
	_ = h.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server.shutdown.done")
	return nil
}
