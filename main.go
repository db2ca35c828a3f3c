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

	"github.com/sirupsen/logrus"

	"github.com/lvcoi/ytdl-web/internal/config"
	"github.com/lvcoi/ytdl-web/internal/db"
	"github.com/lvcoi/ytdl-web/internal/downloader"
	"github.com/lvcoi/ytdl-web/internal/formats"
	"github.com/lvcoi/ytdl-web/internal/jobs"
	"github.com/lvcoi/ytdl-web/internal/logging"
	"github.com/lvcoi/ytdl-web/internal/metrics"
	"github.com/lvcoi/ytdl-web/internal/publish"
	"github.com/lvcoi/ytdl-web/internal/tags"
	"github.com/lvcoi/ytdl-web/internal/web"
	"github.com/lvcoi/ytdl-web/internal/ws"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	var code int
	switch {
	case len(args) > 0 && args[0] == "watch":
		code = runWatch(ctx, args[1:])
	case len(args) > 0 && args[0] == "serve":
		code = runServe(ctx, args[1:])
	default:
		code = runServe(ctx, args)
	}
	stop()
	os.Exit(code)
}

func runServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	overrides := config.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	overrides.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}

	if err := serve(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("server stopped")
		return exitError
	}
	return exitOK
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	engine, err := downloader.NewEngine(ctx, downloader.Options{
		Kind:        cfg.Engine,
		YtdlpPath:   cfg.YtdlpPath,
		Install:     cfg.YtdlpInstall,
		HTTPTimeout: cfg.HTTPTimeout,
		Logger:      log.WithField("component", "engine"),
	})
	if err != nil {
		return err
	}
	defer downloader.CloseIdleConnections()

	collector := metrics.New()
	lister := formats.NewLister(engine, log.WithField("component", "formats"),
		formats.WithTimeout(cfg.ProbeTimeout),
		formats.WithRecorder(collector),
	)

	hub := ws.NewHub(log.WithField("component", "ws"))
	go hub.Run(ctx)

	var finalizers []jobs.Finalizer
	if cfg.TagAudio {
		finalizers = append(finalizers, tags.NewTagger(log.WithField("component", "tags")))
	}
	var catalog *db.Catalog
	if cfg.CatalogPath != "" {
		catalog, err = db.Open(cfg.CatalogPath)
		if err != nil {
			return err
		}
		defer catalog.Close()
		finalizers = append(finalizers, catalog)
	}
	if cfg.S3.Enabled() {
		publisher, err := publish.NewS3Publisher(ctx, publish.S3Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, log.WithField("component", "s3"))
		if err != nil {
			return err
		}
		finalizers = append(finalizers, publisher)
	}

	store := jobs.NewStore()
	store.StartCleanup(ctx, cfg.JobCleanupInterval, cfg.JobCompletedTTL, cfg.JobErroredTTL)

	manager := jobs.NewManager(ctx, store, engine, jobs.Options{
		OutputDir:  cfg.OutputDir,
		MaxWorkers: cfg.MaxWorkers,
		MaxQueued:  cfg.MaxQueued,
		Observers:  []jobs.Observer{hub, collector},
		Finalizers: finalizers,
		Logger:     log.WithField("component", "jobs"),
	})
	defer manager.Wait()

	webOpts := web.Options{
		Formats:        lister,
		Jobs:           manager,
		Live:           http.HandlerFunc(hub.HandleWS),
		Metrics:        collector.Handler(),
		OutputDir:      cfg.OutputDir,
		StrictNotFound: cfg.StrictNotFound,
		SessionSecret:  cfg.SessionSecret,
		Logger:         log,
	}
	if catalog != nil {
		webOpts.Catalog = catalog
	}
	server, err := web.New(webOpts)
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx, cfg.Addr)
}
