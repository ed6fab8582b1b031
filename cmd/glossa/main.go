package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/glossa/internal/anthropic"
	"github.com/MikeSquared-Agency/glossa/internal/api"
	"github.com/MikeSquared-Agency/glossa/internal/backfill"
	"github.com/MikeSquared-Agency/glossa/internal/config"
	"github.com/MikeSquared-Agency/glossa/internal/extractor"
	"github.com/MikeSquared-Agency/glossa/internal/gemini"
	"github.com/MikeSquared-Agency/glossa/internal/hermes"
	"github.com/MikeSquared-Agency/glossa/internal/morph"
	"github.com/MikeSquared-Agency/glossa/internal/processor"
	"github.com/MikeSquared-Agency/glossa/internal/slack"
	"github.com/MikeSquared-Agency/glossa/internal/speech"
	"github.com/MikeSquared-Agency/glossa/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "import" {
		err = runImport(ctx, cfg, os.Args[2:])
	} else {
		err = serve(ctx, cfg)
	}
	if err != nil && ctx.Err() == nil {
		slog.Error("glossa failed", "error", err)
		os.Exit(1)
	}
	slog.Info("glossa stopped")
}

// app holds the wired pipeline shared by the server and the import command.
type app struct {
	proc    *processor.Processor
	events  *hermes.Client
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, withEvents bool) (*app, error) {
	a := &app{}
	logger := slog.Default()

	// History log
	var log store.TabularLog
	switch cfg.StoreDriver {
	case "postgres":
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return a, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		log = pg
	case "sqlite":
		lite, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return a, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = lite.Close() })
		log = lite
	default:
		slog.Warn("using in-memory history, entries are lost on exit")
		log = store.NewMemoryLog()
	}
	slog.Info("history store ready", "driver", cfg.StoreDriver)

	// Model client
	var llm extractor.Generator
	switch cfg.ModelProvider {
	case "gemini":
		g, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, "")
		if err != nil {
			return a, fmt.Errorf("create gemini client: %w", err)
		}
		llm = g
		slog.Info("gemini client ready", "model", cfg.GeminiModel)
	default:
		llm = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		slog.Info("anthropic client ready", "model", cfg.AnthropicModel)
	}

	// Extractor
	opts := extractor.Options{
		TargetLanguage:   cfg.TargetLanguage,
		FallbackLanguage: cfg.FallbackLanguage,
		Timeout:          cfg.ModelTimeout,
	}
	if cfg.MorphEnabled {
		enricher, err := morph.New(logger)
		if err != nil {
			slog.Warn("morphology disabled", "error", err)
		} else {
			opts.Enricher = enricher
		}
	}
	ext := extractor.New(llm, opts, logger)
	history := store.New(log, ext.Parser(), logger)

	// Speech
	var synth speech.Synthesizer = speech.NewHTTPSynth(cfg.TTSURL)
	if cfg.SpeechCacheEnabled() {
		cache, err := speech.NewS3Cache(ctx, speech.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err == nil {
			err = cache.EnsureBucket(ctx)
		}
		if err != nil {
			slog.Warn("speech cache disabled", "error", err)
		} else {
			synth = speech.NewCachedSynth(synth, cache, logger)
			slog.Info("speech cache ready", "bucket", cfg.S3Bucket)
		}
	}

	// NATS/Hermes (optional)
	var events processor.Publisher
	if withEvents && cfg.NatsURL != "" {
		client, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return a, fmt.Errorf("connect nats: %w", err)
		}
		a.events = client
		a.closers = append(a.closers, client.Close)
		events = client
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	loc, err := cfg.Location()
	if err != nil {
		return a, err
	}
	a.proc = processor.New(history, ext, synth, events, loc, logger)
	return a, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	slog.Info("glossa starting", "port", cfg.Port)

	a, err := build(ctx, cfg, true)
	defer a.close()
	if err != nil {
		return err
	}

	if a.events != nil {
		if err := a.events.Subscribe(hermes.SubjectAnalysisRequested, a.proc.HandleAnalysisRequested); err != nil {
			return fmt.Errorf("subscribe %s: %w", hermes.SubjectAnalysisRequested, err)
		}
	}

	srv := api.NewServer(cfg.Port, cfg.APIToken, a.proc, slog.Default())
	if a.events != nil {
		srv.SetEvents(a.events)
	}
	if cfg.APIToken == "" {
		slog.Warn("GLOSSA_API_TOKEN not set, API is unauthenticated")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	slog.Info("glossa ready", "port", cfg.Port)
	return g.Wait()
}

func runImport(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	user := fs.String("user", "", "user recorded for plain-text lines")
	dryRun := fs.Bool("dry-run", false, "list sentences without analysing them")
	statePath := fs.String("state", cfg.ImportStatePath, "progress file for resumable runs (empty disables)")
	delay := fs.Duration("delay", cfg.ImportDelay, "pause between model calls")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: glossa import [flags] FILE...")
	}

	a, err := build(ctx, cfg, false)
	defer a.close()
	if err != nil {
		return err
	}

	var notify backfill.Notifier
	if cfg.SlackEnabled() {
		notify = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
	}

	runner := backfill.NewRunner(backfill.Config{
		Files:     fs.Args(),
		StatePath: *statePath,
		User:      *user,
		DryRun:    *dryRun,
		Delay:     *delay,
	}, a.proc, notify, slog.Default())

	sum, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d, failed %d, skipped %d\n", sum.Imported, sum.Failed, sum.Skipped)
	return nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
