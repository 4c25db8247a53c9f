package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docproc/internal/core/async"
	"github.com/joseph-ayodele/docproc/internal/export"
	"github.com/joseph-ayodele/docproc/internal/ingest"
)

var batchOpts struct {
	outDir        string
	summary       string
	force         bool
	includeHidden bool
	exts          []string
	jobs          int
}

var batchCmd = &cobra.Command{
	Use:   "batch DIR",
	Short: "Process every supported document under a directory",
	Long: `Walks DIR, skips hidden entries and unsupported extensions, and processes
each file through a worker queue. Files whose content is already archived in
the store are skipped unless --force is set. Each result is written next to its
source (or into --out-dir) and an XLSX summary is written at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.StringVar(&batchOpts.outDir, "out-dir", "", "write results here instead of next to each source")
	f.StringVar(&batchOpts.summary, "summary", "", "XLSX summary path (default docproc-summary.xlsx beside DIR)")
	f.BoolVar(&batchOpts.force, "force", false, "process files even if already archived")
	f.BoolVar(&batchOpts.includeHidden, "include-hidden", false, "descend into hidden files and directories")
	f.StringSliceVar(&batchOpts.exts, "ext", nil, "only these extensions (default: every supported one)")
	f.IntVarP(&batchOpts.jobs, "jobs", "j", 2, "documents processed concurrently")
	rootCmd.AddCommand(batchCmd)
}

// batchCollector gathers queue results from worker goroutines.
type batchCollector struct {
	mu      sync.Mutex
	results []export.BatchResult
}

func (c *batchCollector) add(r export.BatchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	root := args[0]
	ing := ingest.NewFSIngestor(nil, a.logger)
	if a.store != nil {
		ing.Seen = a.store
	}
	ing.AllowedExts = ingest.ParseExts(batchOpts.exts)

	files, stats, err := ing.IngestDirectory(ctx, root, !batchOpts.includeHidden)
	if err != nil {
		return err
	}

	var collected batchCollector
	queue := async.NewProcessorQueue(a.proc, a.logger,
		async.WithWorkers(batchOpts.jobs),
		async.WithProcessTimeout(a.cfg.Processing.Timeout()+time.Minute),
		async.WithResultHandler(func(r async.Result) {
			a.archive(context.Background(), r.Job.ContentHash, r.Job.Path, r.Query, r.Err)
			if r.Query != nil {
				if out, err := a.writeResult(batchOpts.outDir, r.Job.Path, r.Query); err != nil {
					a.logger.Error("batch.write.failed", "file", r.Job.Path, "error", err)
				} else {
					a.logger.Debug("batch.write.done", "file", r.Job.Path, "output", out)
				}
			}
			collected.add(export.BatchResult{Path: r.Job.Path, ContentHash: r.Job.ContentHash, Query: r.Query, Err: r.Err})
		}),
	)

	summaryPath := batchOpts.summary
	if summaryPath == "" {
		summaryPath = filepath.Join(filepath.Dir(filepath.Clean(root)), "docproc-summary.xlsx")
	}
	summaryAbs, _ := filepath.Abs(summaryPath)

	for _, f := range files {
		if a.isResult(f.SourcePath) || f.SourcePath == summaryAbs {
			continue
		}
		switch {
		case f.Err != "":
			collected.add(export.BatchResult{Path: f.SourcePath, Err: errors.New(f.Err)})
			continue
		case f.Deduplicated && !batchOpts.force:
			collected.add(export.BatchResult{Path: f.SourcePath, ContentHash: f.HashHex, Skipped: true})
			continue
		}
		job := async.NewJob(f.SourcePath, "")
		job.ContentHash = f.HashHex
		job.Force = batchOpts.force
		if err := queue.Enqueue(ctx, job); err != nil {
			collected.add(export.BatchResult{Path: f.SourcePath, ContentHash: f.HashHex, Err: err})
		}
	}
	queue.Shutdown(context.Background())

	results := collected.results
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	data, err := export.SummaryXLSX(results, a.logger)
	if err != nil {
		return fmt.Errorf("build summary: %w", err)
	}
	if err := os.WriteFile(summaryPath, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status()]++
	}
	cmd.Printf("Scanned %d entries, matched %d files.\n", stats.Scanned, stats.Matched)
	cmd.Printf("success: %d, warning: %d, failed: %d, skipped: %d\n",
		counts["success"], counts["warning"], counts["failed"], counts["skipped"])
	cmd.Printf("Summary written to %s\n", summaryPath)
	return nil
}
