// Package orchestrator wires the index reader, fetcher, image pipeline,
// and saving barrier into the concurrent producer/worker pipeline that
// drives a single fetch run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/APTlantis/rskachka/internal/archive"
	"github.com/APTlantis/rskachka/internal/barrier"
	"github.com/APTlantis/rskachka/internal/config"
	"github.com/APTlantis/rskachka/internal/fetch"
	"github.com/APTlantis/rskachka/internal/imagepipe"
	"github.com/APTlantis/rskachka/internal/index"
	"github.com/APTlantis/rskachka/internal/item"
	"github.com/APTlantis/rskachka/internal/linecount"
	"github.com/APTlantis/rskachka/internal/metrics"
	"github.com/APTlantis/rskachka/internal/sidecar"
)

// State names the orchestrator's run phases.
type State int

const (
	Starting State = iota
	Running
	Draining
	Done
	Aborted
	Failed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stats counts run outcomes. The Orchestrator guards its own copy with a
// mutex and hands out snapshots; a Stats value itself is not synchronized.
type Stats struct {
	Processed int64
	Saved     int64
	Skipped   int64
	Failed    int64
}

// Orchestrator runs one fetch pipeline: stream the index, fetch each
// item's bytes, run them through the image pipeline, and save the result.
type Orchestrator struct {
	cfg      config.Config
	client   *fetch.Client
	barrier  *barrier.Barrier
	bundler  *archive.Bundler
	stopped  atomic.Bool
	state    atomic.Int32
	stats    Stats
	statsMu  sync.Mutex
	progress func(Stats)
}

// New builds an Orchestrator from a validated Config.
func New(cfg config.Config) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		client:  fetch.NewClient(cfg.Timeout(), cfg.WorkerCount),
		barrier: barrier.New(),
	}
}

// SetProgressFunc installs a callback invoked after every processed
// record, whatever its outcome. Intended for a CLI progress line.
func (o *Orchestrator) SetProgressFunc(fn func(Stats)) {
	o.progress = fn
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	slog.Info("state transition", "state", s.String())
}

// State reports the orchestrator's current phase.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Run streams cfg.IndexPath, fetching and saving every record until the
// index is exhausted or a SIGINT is observed. It returns the final
// Stats and, for the Failed transition, the error that caused it.
func (o *Orchestrator) Run(ctx context.Context) (Stats, error) {
	o.setState(Starting)

	if err := os.MkdirAll(o.cfg.OutputRoot, 0o755); err != nil {
		o.setState(Failed)
		return o.snapshot(), fmt.Errorf("creating output root: %w", err)
	}

	if o.cfg.Bundle {
		b, err := archive.NewBundler(o.cfg.BundlesOut, o.cfg.BundleSizeGB)
		if err != nil {
			o.setState(Failed)
			return o.snapshot(), fmt.Errorf("initializing bundler: %w", err)
		}
		o.bundler = b
	}

	total, err := o.sizeIndex(ctx)
	if err != nil {
		slog.Warn("could not size index for progress reporting", "err", err)
	}
	slog.Info("starting", "index", o.cfg.IndexPath, "out", o.cfg.OutputRoot, "workers", o.cfg.WorkerCount, "entries", total)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	shutdownDone := make(chan struct{})
	go o.handleSignal(sigCh, shutdownDone)

	o.setState(Running)
	workCh := make(chan item.Record, o.cfg.WorkerCount)

	var producerErr error
	go func() {
		defer close(workCh)
		producerErr = index.Stream(ctx, o.cfg.IndexPath, o.cfg.NoHeader, func(rec item.Record) (bool, error) {
			if o.stopped.Load() {
				return false, nil
			}
			workCh <- rec
			return true, nil
		})
	}()

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runWorker(ctx, workCh)
		}()
	}
	wg.Wait()

	if producerErr != nil {
		slog.Warn("producer stopped early", "err", producerErr)
	}

	if o.stopped.Load() {
		o.setState(Aborted)
		<-shutdownDone
		return o.snapshot(), nil
	}

	if o.bundler != nil {
		if err := archive.BundleStore(o.bundler, o.cfg.OutputRoot); err != nil {
			slog.Error("bundling store failed", "err", err)
		}
		if err := o.bundler.Close(); err != nil {
			slog.Error("closing bundler failed", "err", err)
		}
	}

	o.setState(Done)
	stats := o.snapshot()
	slog.Info("done", "processed", stats.Processed, "saved", stats.Saved, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

// handleSignal mirrors the Rust Ctrl-C handler: set the cooperative stop
// flag, wait for every in-flight save to drain, then signal completion.
func (o *Orchestrator) handleSignal(sigCh <-chan os.Signal, done chan<- struct{}) {
	if _, ok := <-sigCh; !ok {
		return
	}
	slog.Warn("waiting for the workers to shut down...")
	o.stopped.Store(true)
	o.setState(Draining)
	o.barrier.Wait()
	slog.Warn("done")
	close(done)
}

func (o *Orchestrator) runWorker(ctx context.Context, workCh <-chan item.Record) {
	for rec := range workCh {
		if err := o.processRecord(ctx, rec); err != nil && !errors.Is(err, imagepipe.ErrShutdown) {
			slog.Warn("record failed", "err", err)
		}
	}
}

func (o *Orchestrator) processRecord(ctx context.Context, rec item.Record) error {
	o.incProcessed()
	if o.progress != nil {
		defer func() { o.progress(o.snapshot()) }()
	}

	it, err := item.FromRecord(rec, o.cfg.Fields, o.cfg.URLField, o.cfg.OutputRoot, o.cfg.Extension)
	if err != nil {
		metrics.ImagesFailedTotal.WithLabelValues("parse").Inc()
		o.incFailed()
		return fmt.Errorf("parsing record: %w", err)
	}

	if o.cfg.Resume {
		if _, statErr := os.Stat(it.Path); statErr == nil {
			o.incSkipped()
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(it.Path), 0o755); err != nil {
		metrics.ImagesFailedTotal.WithLabelValues("mkdir").Inc()
		o.incFailed()
		return fmt.Errorf("creating directories for %s: %w", it.Path, err)
	}

	if o.stopped.Load() {
		return imagepipe.ErrShutdown
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout())
	start := time.Now()
	raw, err := o.client.Get(fetchCtx, it.URL)
	cancel()
	metrics.FetchDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("error").Inc()
		metrics.ImagesFailedTotal.WithLabelValues("fetch").Inc()
		o.incFailed()
		return fmt.Errorf("fetching %s: %w", it.URL, err)
	}
	metrics.FetchRequestsTotal.WithLabelValues("ok").Inc()
	metrics.ImageBytesTotal.Add(float64(len(raw)))

	if o.stopped.Load() {
		return imagepipe.ErrShutdown
	}

	metrics.SavingInflight.Inc()
	err = imagepipe.Save(raw, it.Path, imagepipe.Options{
		MaxSize:    o.cfg.MaxSize,
		Extension:  o.cfg.Extension,
		Quality:    o.cfg.Quality,
		ShouldStop: o.stopped.Load,
		Barrier:    o.barrier,
	})
	metrics.SavingInflight.Dec()
	if err != nil {
		if errors.Is(err, imagepipe.ErrShutdown) {
			return err
		}
		metrics.ImagesFailedTotal.WithLabelValues("image").Inc()
		o.incFailed()
		return fmt.Errorf("saving %s: %w", it.URL, err)
	}

	metrics.ImagesSavedTotal.Inc()
	o.incSaved()

	if o.cfg.SidecarMetadata {
		if err := sidecar.Write(sidecar.Record{ID: it.ID, URL: it.URL, Path: it.Path, FetchedAt: start}); err != nil {
			slog.Warn("sidecar write failed", "path", it.Path, "err", err)
		}
	}
	return nil
}

func (o *Orchestrator) sizeIndex(ctx context.Context) (int64, error) {
	lines, err := linecount.CountFile(ctx, o.cfg.IndexPath)
	if err != nil {
		return 0, err
	}
	if index.HasHeader(o.cfg.NoHeader) {
		lines--
	}
	if lines < 0 {
		lines = 0
	}
	return lines, nil
}

func (o *Orchestrator) incProcessed() {
	o.statsMu.Lock()
	o.stats.Processed++
	o.statsMu.Unlock()
}

func (o *Orchestrator) incSaved() {
	o.statsMu.Lock()
	o.stats.Saved++
	o.statsMu.Unlock()
}

func (o *Orchestrator) incSkipped() {
	o.statsMu.Lock()
	o.stats.Skipped++
	o.statsMu.Unlock()
}

func (o *Orchestrator) incFailed() {
	o.statsMu.Lock()
	o.stats.Failed++
	o.statsMu.Unlock()
}

func (o *Orchestrator) snapshot() Stats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return o.stats
}
