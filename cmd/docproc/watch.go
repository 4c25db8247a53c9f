package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docproc/internal/core/async"
	"github.com/joseph-ayodele/docproc/internal/ingest"
)

var watchOpts struct {
	outDir      string
	debounce    time.Duration
	initialScan bool
	force       bool
	jobs        int
}

var watchCmd = &cobra.Command{
	Use:   "watch DIR...",
	Short: "Process documents as they appear under directories",
	Long: `Watches each DIR recursively and processes new or changed supported files
through a worker queue until interrupted. Set --metrics-addr to expose
Prometheus metrics while watching.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchOpts.outDir, "out-dir", "", "write results here instead of next to each source")
	f.DurationVar(&watchOpts.debounce, "debounce", 500*time.Millisecond, "coalesce bursts of file events")
	f.BoolVar(&watchOpts.initialScan, "initial-scan", false, "process files already present at start")
	f.BoolVar(&watchOpts.force, "force", false, "process files even if already archived")
	f.IntVarP(&watchOpts.jobs, "jobs", "j", 2, "documents processed concurrently")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ing := ingest.NewFSIngestor(nil, a.logger)
	if a.store != nil {
		ing.Seen = a.store
	}

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       args,
		InitialScan: watchOpts.initialScan,
		SkipHidden:  true,
		Debounce:    watchOpts.debounce,
	}, a.logger)
	if err != nil {
		return err
	}

	queue := async.NewProcessorQueue(a.proc, a.logger,
		async.WithWorkers(watchOpts.jobs),
		async.WithProcessTimeout(a.cfg.Processing.Timeout()+time.Minute),
		async.WithResultHandler(func(r async.Result) {
			a.archive(context.Background(), r.Job.ContentHash, r.Job.Path, r.Query, r.Err)
			if r.Query == nil {
				return
			}
			out, err := a.writeResult(watchOpts.outDir, r.Job.Path, r.Query)
			if err != nil {
				a.logger.Error("watch.write.failed", "file", r.Job.Path, "error", err)
				return
			}
			cmd.Printf("%s -> %s\n", r.Job.Path, out)
		}),
	)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		queue.Shutdown(sctx)
	}()

	a.logger.Info("watch.started", "roots", args)
	for {
		select {
		case path, ok := <-events:
			if !ok {
				return nil
			}
			if a.isResult(path) {
				continue
			}
			res, err := ing.IngestPath(ctx, path)
			if err != nil {
				a.logger.Warn("watch.ingest.failed", "file", path, "error", err)
				continue
			}
			if res.Deduplicated && !watchOpts.force {
				a.logger.Debug("watch.skip.archived", "file", path, "hash", res.HashHex)
				continue
			}
			job := async.NewJob(res.SourcePath, "")
			job.ContentHash = res.HashHex
			job.Force = watchOpts.force
			if err := queue.Enqueue(ctx, job); err != nil {
				a.logger.Warn("watch.enqueue.failed", "file", path, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			a.logger.Warn("watch.error", "error", err)
		case <-ctx.Done():
			a.logger.Info("watch.stopping")
			return nil
		}
	}
}
