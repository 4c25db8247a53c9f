// Package governor runs pipeline steps inside a resource envelope: a deadline
// for the whole document, a sampled memory ceiling, a bounded worker count and
// a step-scoped temp directory.
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/metrics"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/docproc/internal/common"
)

// Budget is the envelope handed to a running step.
type Budget struct {
	Deadline         time.Time // zero when the document has no deadline
	Workers          int
	TempDir          string // exists for the duration of the step only
	MemoryLimitBytes uint64 // 0 = unlimited
}

// Usage is what the governor measured around one step.
type Usage struct {
	Duration  time.Duration
	PeakBytes uint64 // peak heap above the step's starting point
}

// MemoryMB rounds peak usage up to whole megabytes.
func (u Usage) MemoryMB() int64 {
	return int64((u.PeakBytes + (1<<20 - 1)) >> 20)
}

// MemorySampler reports current memory use in bytes.
type MemorySampler func() uint64

// HeapSampler reads live heap bytes from runtime/metrics. Memory held by
// external engine processes is not visible here.
func HeapSampler() MemorySampler {
	return func() uint64 {
		s := []metrics.Sample{{Name: "/memory/classes/heap/objects:bytes"}}
		metrics.Read(s)
		if s[0].Value.Kind() == metrics.KindUint64 {
			return s[0].Value.Uint64()
		}
		return 0
	}
}

type Config struct {
	Timeout          time.Duration // whole-document deadline, 0 = none
	MemoryLimitBytes uint64
	Workers          int
	TempDir          string
	KeepTemps        bool
}

type Governor struct {
	cfg      Config
	sample   MemorySampler
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger
}

type Option func(*Governor)

func WithSampler(s MemorySampler) Option {
	return func(g *Governor) {
		if s != nil {
			g.sample = s
		}
	}
}

func WithSampleInterval(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.interval = d
		}
	}
}

// WithGracePeriod bounds how long an aborted step may take to unwind before
// its temp directory is removed anyway.
func WithGracePeriod(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.grace = d
		}
	}
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Governor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	g := &Governor{
		cfg:      cfg,
		sample:   HeapSampler(),
		interval: 50 * time.Millisecond,
		grace:    2 * time.Second,
		logger:   logger,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Governor) Workers() int { return g.cfg.Workers }

// Begin starts the deadline for one document. Every step run with the
// returned context shares it.
func (g *Governor) Begin(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, g.cfg.Timeout, common.ErrTimeout)
}

// Run executes fn as the step called name. It returns fn's result, the usage
// measured around it and, when the step was aborted for time or memory, a
// fatal ProcessError (the result is then the zero value). The step's temp
// directory is removed on every path unless KeepTemps is set.
func Run[T any](ctx context.Context, g *Governor, name string, fn func(ctx context.Context, b Budget) T) (T, Usage, error) {
	var zero T
	start := time.Now()

	if ctx.Err() != nil {
		return zero, Usage{}, g.abortErr(ctx, name)
	}

	dir, err := os.MkdirTemp(g.cfg.TempDir, "docproc-"+name+"-*")
	if err != nil {
		return zero, Usage{Duration: time.Since(start)}, common.NewProcessError(common.ErrIO, name, "create temp dir", err)
	}
	defer g.cleanup(name, dir)

	stepCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	baseline := g.sample()
	var peak atomic.Uint64
	peak.Store(baseline)
	stop := make(chan struct{})
	sampling := make(chan struct{})
	go g.watchMemory(name, cancel, baseline, &peak, stop, sampling)

	b := Budget{
		Workers:          g.cfg.Workers,
		TempDir:          dir,
		MemoryLimitBytes: g.cfg.MemoryLimitBytes,
	}
	if d, ok := ctx.Deadline(); ok {
		b.Deadline = d
	}

	done := make(chan T, 1)
	go func() { done <- fn(stepCtx, b) }()

	var (
		res    T
		runErr error
	)
	select {
	case res = <-done:
		// a step that returns because its budget ran out is still aborted
		if stepCtx.Err() != nil {
			res = zero
			runErr = g.abortErr(stepCtx, name)
		}
	case <-stepCtx.Done():
		runErr = g.abortErr(stepCtx, name)
		select {
		case <-done:
		case <-time.After(g.grace):
			g.logger.Warn("governor.step.unresponsive", "step", name, "grace_ms", g.grace.Milliseconds())
		}
	}
	if runErr != nil {
		g.logger.Warn("governor.step.aborted", "step", name, "error", runErr)
	}
	close(stop)
	<-sampling

	usage := Usage{Duration: time.Since(start)}
	if p := peak.Load(); p > baseline {
		usage.PeakBytes = p - baseline
	}
	return res, usage, runErr
}

// watchMemory aborts the step once the heap has grown more than the limit
// above baseline. Memory the process already held is not charged to it.
func (g *Governor) watchMemory(name string, cancel context.CancelCauseFunc, baseline uint64, peak *atomic.Uint64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(g.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			cur := g.sample()
			if cur > peak.Load() {
				peak.Store(cur)
			}
			if cur <= baseline || g.cfg.MemoryLimitBytes == 0 {
				continue
			}
			if growth := cur - baseline; growth > g.cfg.MemoryLimitBytes {
				cancel(common.NewProcessError(common.ErrMemoryLimitExceeded, name,
					fmt.Sprintf("grew %d MB, limit %d MB", growth>>20, g.cfg.MemoryLimitBytes>>20), nil))
				return
			}
		}
	}
}

func (g *Governor) abortErr(ctx context.Context, name string) error {
	cause := context.Cause(ctx)
	var pe *common.ProcessError
	switch {
	case errors.As(cause, &pe):
		return pe
	case errors.Is(cause, common.ErrTimeout), errors.Is(cause, context.DeadlineExceeded):
		return common.NewProcessError(common.ErrTimeout, name, "processing deadline exceeded", nil)
	default:
		return common.NewProcessError(common.ErrTimeout, name, "canceled", cause)
	}
}

func (g *Governor) cleanup(name, dir string) {
	if g.cfg.KeepTemps {
		g.logger.Info("keeping temp files", "step", name, "dir", dir)
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		g.logger.Warn("failed to remove temp dir", "step", name, "dir", dir, "error", err)
	}
}
