package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/core"
	"github.com/joseph-ayodele/docproc/internal/entity"
	"github.com/joseph-ayodele/docproc/internal/ingest"
	"github.com/joseph-ayodele/docproc/internal/observability"
	"github.com/joseph-ayodele/docproc/internal/render"
	repo "github.com/joseph-ayodele/docproc/internal/repository"
)

// app holds what a command run needs. close releases it.
type app struct {
	cfg    common.Config
	logger *slog.Logger
	format render.Format
	proc   *core.Processor

	db    *sql.DB
	store repo.ResultStore

	metrics *observability.Prometheus
	server  *http.Server
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	loaded, err := common.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	cfg := *loaded
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	format, err := render.ParseFormat(flags.format)
	if err != nil {
		return nil, common.NewAppError("INVALID_INPUT", err.Error(), common.ErrInvalidInput)
	}

	logger := newLogger(cfg.Log, flags.verbose, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, format: format}
	var opts []core.Option

	if addr := cfg.Metrics.Addr; addr != "" {
		a.metrics, err = observability.InitPrometheus()
		if err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		opts = append(opts, core.WithMetrics(a.metrics))
		a.serveMetrics(addr)
	}

	if path := cfg.Store.Path; path != "" {
		a.db, err = repo.Open(ctx, repo.Config{Path: path}, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := repo.HealthCheck(ctx, a.db, 5*time.Second); err != nil {
			a.close()
			return nil, fmt.Errorf("store health: %w", err)
		}
		a.store = repo.NewResultStore(a.db, logger)
	}

	a.proc = core.NewProcessor(cfg, logger, opts...)
	return a, nil
}

func applyFlags(cmd *cobra.Command, cfg *common.Config) {
	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	if changed("temp-dir") {
		cfg.Processing.TempDir = flags.tempDir
	}
	if changed("keep-temps") {
		cfg.Processing.KeepTemps = flags.keepTemps
	}
	if changed("max-memory") {
		cfg.Processing.MemoryLimitMB = flags.maxMemoryMB
	}
	if changed("timeout") {
		cfg.Processing.TimeoutSeconds = flags.timeoutSec
	}
	if changed("workers") {
		cfg.Processing.Workers = flags.workers
	}
	if changed("no-compress") {
		cfg.Image.Compression = !flags.noCompress
	}
	if changed("store") {
		cfg.Store.Path = flags.storePath
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = flags.metricsAddr
	}
	if flags.verbose {
		cfg.Log.Level = "debug"
	}
}

func newLogger(cfg common.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.logger.Info("metrics.serving", "addr", addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.server != nil {
		_ = a.server.Shutdown(ctx)
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics shutdown", "error", err)
		}
	}
	repo.Close(a.db, a.logger)
}

// archive stores q under the file's content hash when a store is configured.
// An empty hash is computed from path.
func (a *app) archive(ctx context.Context, hashHex, path string, q *entity.Query, procErr error) {
	if a.store == nil || q == nil {
		return
	}
	if hashHex == "" {
		var err error
		if hashHex, err = ingest.HashFile(path); err != nil {
			a.logger.Warn("archive skipped: hash failed", "file", path, "error", err)
			return
		}
	}
	if err := a.store.Save(ctx, hashHex, q, procErr); err != nil {
		a.logger.Warn("archive failed", "file", path, "error", err)
	}
}

// writeResult renders q next to its source, or into outDir when set, and
// returns the written path.
func (a *app) writeResult(outDir, src string, q *entity.Query) (string, error) {
	dir := outDir
	if dir == "" {
		dir = filepath.Dir(src)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(dir, filepath.Base(src)+"."+a.format.Ext())
	if err := renderFile(out, a.format, q); err != nil {
		return "", err
	}
	return out, nil
}

// renderFile writes q to path. The file is only good once Close succeeds.
func renderFile(path string, format render.Format, q *entity.Query) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := render.Write(f, format, q); err != nil {
		_ = f.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output %s: %w", path, err)
	}
	return nil
}

// isResult reports whether path looks like a result this app wrote, such as
// "scan.pdf.html", so directory runs never feed outputs back in.
func (a *app) isResult(path string) bool {
	src, ok := strings.CutSuffix(path, "."+a.format.Ext())
	return ok && filepath.Ext(src) != "" && constants.SupportedExt(src)
}
