// Command rskachka fetches images named by a delimited-text index into a
// content-addressed store, and offers index-reconciliation and
// store-verification as additional subcommands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/APTlantis/rskachka/internal/config"
	"github.com/APTlantis/rskachka/internal/metrics"
	"github.com/APTlantis/rskachka/internal/orchestrator"
	"github.com/APTlantis/rskachka/internal/reconcile"
	"github.com/APTlantis/rskachka/internal/verify"
)

func initLogging(verbose int) {
	lvl := slog.LevelWarn
	switch {
	case verbose >= 2:
		lvl = slog.LevelDebug
	case verbose == 1:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func fetchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "optional TOML file overlaying flag defaults"},
		&cli.StringFlag{Name: "index-path", Aliases: []string{"source-path"}, Usage: "path to the delimited-text input"},
		&cli.StringFlag{Name: "output-root", Usage: "root directory for saved images"},
		&cli.StringFlag{Name: "fields", Usage: "comma-separated id-field indices (signed)", Value: "0"},
		&cli.IntFlag{Name: "url-field", Usage: "url field index (signed; negative = from end)", Value: -1},
		&cli.UintFlag{Name: "max-size", Usage: "max output edge in pixels", Value: 640},
		&cli.StringFlag{Name: "extension", Usage: "jpg or webp", Value: "webp"},
		&cli.IntFlag{Name: "quality", Aliases: []string{"jpeg-quality"}, Usage: "jpeg quality 0-100", Value: 90},
		&cli.IntFlag{Name: "timeout", Usage: "per-request read timeout in seconds", Value: 5},
		&cli.IntFlag{Name: "worker-count", Usage: "parallel workers (0 = 2x CPU count)"},
		&cli.BoolFlag{Name: "resume", Usage: "skip items whose output already exists"},
		&cli.BoolFlag{Name: "no-header", Usage: "input has no header row"},
		&cli.BoolFlag{Name: "progress", Usage: "log periodic progress (mutually exclusive with verbose)"},
		&cli.IntFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log verbosity: 0=warn 1=info 2=debug"},
		&cli.StringFlag{Name: "listen", Usage: "serve Prometheus metrics and pprof at this address"},
		&cli.BoolFlag{Name: "bundle", Usage: "roll the store into rotating .tar.zst bundles after the run"},
		&cli.Int64Flag{Name: "bundle-size-gb", Usage: "target bundle size in GB", Value: 8},
		&cli.StringFlag{Name: "bundles-out", Usage: "directory for .tar.zst bundles", Value: "bundles"},
		&cli.BoolFlag{Name: "sidecar-metadata", Usage: "write a JSON provenance sidecar next to every saved image"},
	}
}

func parseFields(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	fields := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(p, "%d", &v); err != nil {
			return nil, fmt.Errorf("parsing field index %q: %w", p, err)
		}
		fields = append(fields, v)
	}
	return fields, nil
}

func configFromContext(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		if err := config.LoadDefaultsFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	if c.IsSet("index-path") {
		cfg.IndexPath = c.String("index-path")
	}
	if c.IsSet("output-root") {
		cfg.OutputRoot = c.String("output-root")
	}
	if c.IsSet("fields") {
		fields, err := parseFields(c.String("fields"))
		if err != nil {
			return cfg, err
		}
		cfg.Fields = fields
	}
	if c.IsSet("url-field") {
		cfg.URLField = c.Int("url-field")
	}
	if c.IsSet("max-size") {
		cfg.MaxSize = c.Uint("max-size")
	}
	if c.IsSet("extension") {
		cfg.Extension = c.String("extension")
	}
	if c.IsSet("quality") {
		cfg.Quality = c.Int("quality")
	}
	if c.IsSet("timeout") {
		cfg.TimeoutSecs = c.Int("timeout")
	}
	if c.IsSet("worker-count") && c.Int("worker-count") > 0 {
		cfg.WorkerCount = c.Int("worker-count")
	}
	if c.IsSet("resume") {
		cfg.Resume = c.Bool("resume")
	}
	if c.IsSet("no-header") {
		cfg.NoHeader = c.Bool("no-header")
	}
	if c.IsSet("progress") {
		cfg.Progress = c.Bool("progress")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Int("verbose")
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("bundle") {
		cfg.Bundle = c.Bool("bundle")
	}
	if c.IsSet("bundle-size-gb") {
		cfg.BundleSizeGB = c.Int64("bundle-size-gb")
	}
	if c.IsSet("bundles-out") {
		cfg.BundlesOut = c.String("bundles-out")
	}
	if c.IsSet("sidecar-metadata") {
		cfg.SidecarMetadata = c.Bool("sidecar-metadata")
	}
	return cfg, nil
}

func runFetch(c *cli.Context) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}
	initLogging(cfg.Verbose)
	if err := cfg.Validate(); err != nil {
		return err
	}

	metrics.Serve(cfg.Listen)

	o := orchestrator.New(cfg)
	if cfg.Progress {
		o.SetProgressFunc(func(s orchestrator.Stats) {
			if s.Processed%100 == 0 {
				fmt.Fprintf(os.Stderr, "progress: processed=%d saved=%d skipped=%d failed=%d\n", s.Processed, s.Saved, s.Skipped, s.Failed)
			}
		})
	}

	stats, err := o.Run(c.Context)
	if err != nil {
		return err
	}
	slog.Info("run complete", "state", o.State().String(), "processed", stats.Processed, "saved", stats.Saved, "skipped", stats.Skipped, "failed", stats.Failed)
	return nil
}

func runReconcile(c *cli.Context) error {
	initLogging(c.Int("verbose"))

	opts := reconcile.Options{
		SourcePath:  c.String("source-path"),
		IndexPath:   c.String("index-path"),
		MissingPath: c.String("missing-path"),
		OutputRoot:  c.String("output-root"),
		Extension:   c.String("extension"),
		URLField:    c.Int("url-field"),
		NoHeader:    c.Bool("no-header"),
	}
	if opts.SourcePath == "" || opts.IndexPath == "" || opts.OutputRoot == "" {
		return fmt.Errorf("source-path, index-path, and output-root are required")
	}

	res, err := reconcile.Run(opts)
	if err != nil {
		return err
	}
	slog.Info("reconcile complete", "found", res.Found, "missing", res.Missing, "skipped", res.Skipped)
	return nil
}

func runVerifyStore(c *cli.Context) error {
	initLogging(c.Int("verbose"))

	root := c.String("root")
	if root == "" {
		return fmt.Errorf("root is required")
	}

	digests, err := verify.WalkStore(root)
	if err != nil {
		return err
	}

	var keyID, signature string
	if c.Bool("sign") {
		entity, err := verify.LoadOrGenerateKey(c.String("key-file"))
		if err != nil {
			return fmt.Errorf("loading signing key: %w", err)
		}
		sig, err := verify.Sign(entity, verify.DigestsToSign(root, digests))
		if err != nil {
			return fmt.Errorf("signing manifest: %w", err)
		}
		keyID = verify.KeyID(entity)
		signature = sig
	}

	manifestPath := c.String("manifest")
	if manifestPath == "" {
		manifestPath = "manifest.toml"
	}
	if err := verify.WriteManifest(manifestPath, root, digests, keyID, signature); err != nil {
		return err
	}
	slog.Info("verify-store complete", "files", len(digests), "manifest", manifestPath, "signed", c.Bool("sign"))
	return nil
}

func main() {
	app := &cli.App{
		Name:  "rskachka",
		Usage: "fetch, reconcile, and verify a content-addressed image store",
		Commands: []*cli.Command{
			{
				Name:   "fetch",
				Usage:  "run the acquisition pipeline",
				Flags:  fetchFlags(),
				Action: runFetch,
			},
			{
				Name:  "reconcile",
				Usage: "split a source index into found/missing CSVs against an output root",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source-path", Required: true},
					&cli.StringFlag{Name: "index-path", Required: true},
					&cli.StringFlag{Name: "missing-path"},
					&cli.StringFlag{Name: "output-root", Required: true},
					&cli.StringFlag{Name: "extension", Value: "webp"},
					&cli.IntFlag{Name: "url-field", Value: -1},
					&cli.BoolFlag{Name: "no-header"},
					&cli.IntFlag{Name: "verbose", Aliases: []string{"v"}},
				},
				Action: runReconcile,
			},
			{
				Name:  "verify-store",
				Usage: "recompute content digests for every file under the store and write a manifest",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "root", Required: true},
					&cli.StringFlag{Name: "manifest", Value: "manifest.toml"},
					&cli.BoolFlag{Name: "sign"},
					&cli.StringFlag{Name: "key-file", Usage: "armored OpenPGP private key; generated fresh if empty"},
					&cli.IntFlag{Name: "verbose", Aliases: []string{"v"}},
				},
				Action: runVerifyStore,
			},
		},
		DefaultCommand: "fetch",
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		slog.Error("rskachka failed", "err", err)
		os.Exit(1)
	}
}
