package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/feedforge/app/advisor"
	"github.com/lysyi3m/feedforge/app/api"
	"github.com/lysyi3m/feedforge/app/cfg"
	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/extract"
	"github.com/lysyi3m/feedforge/app/feed"
	"github.com/lysyi3m/feedforge/app/intake"
	"github.com/lysyi3m/feedforge/app/novelty"
	"github.com/lysyi3m/feedforge/app/refresh"
	"github.com/lysyi3m/feedforge/app/render"
	"github.com/lysyi3m/feedforge/app/seeds"
	"github.com/lysyi3m/feedforge/app/tasks"
)

func main() {
	config, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if config == nil {
		return
	}

	setupLogging(config.Debug)

	slog.Info("Starting feedforge", "version", config.Version)

	db, err := database.NewConnection(config.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Connected to database", "path", config.DBPath)

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations applied", "version", version, "dirty", dirty)

	sourceRepo := database.NewSourceRepository(db)
	itemRepo := database.NewItemRepository(db)
	snapshotRepo := database.NewSnapshotRepository(db)
	jobRepo := database.NewJobRepository(db)
	runRepo := database.NewFetchRunRepository(db)

	httpClient := &http.Client{Timeout: config.FetchTimeout}

	var browser render.Browser
	if !config.BrowserDisabled {
		browser = render.NewChromeBrowser(config.UserAgent)
	} else {
		slog.Info("Headless browser disabled, pages are fetched statically")
	}
	renderer := render.NewRenderer(browser, httpClient, config.UserAgent, config.FetchTimeout)

	extractor := extract.NewExtractor(renderer, extract.Settings{
		EnrichMinChars: config.EnrichMinChars,
		EnrichMaxLinks: config.EnrichMaxLinks,
		EnrichTimeout:  config.EnrichTimeout,
	})

	adapter, err := advisor.NewAdapter(advisor.Options{
		Kind:    config.LLMAdapter,
		APIKey:  config.LLMAPIKey,
		Model:   config.LLMModel,
		BaseURL: config.LLMBaseURL,
		Timeout: config.LLMTimeout,
	})
	if err != nil {
		slog.Error("Failed to configure adapter", "adapter", config.LLMAdapter, "error", err)
		os.Exit(1)
	}
	ruleAdvisor := advisor.New(adapter)
	slog.Info("Adapter configured", "adapter", config.LLMAdapter, "enabled", ruleAdvisor.Enabled())

	fetcher := feed.NewFetcher(httpClient, config.UserAgent, config.FetchTimeout)
	classifier := novelty.NewClassifier(ruleAdvisor, snapshotRepo)

	engine := refresh.NewEngine(
		refresh.Repositories{
			Sources:   sourceRepo,
			Items:     itemRepo,
			Snapshots: snapshotRepo,
			Runs:      runRepo,
		},
		fetcher,
		feed.NewParser(),
		renderer,
		extractor,
		classifier,
		refresh.NewSourceLocks(),
		refresh.Settings{
			RSSMinChars:       config.RSSMinChars,
			RSSEnrichMaxItems: config.RSSEnrichMaxItems,
			DetailTimeout:     config.EnrichTimeout,
			SemanticBudget:    config.SemanticBudget,
		},
	)

	batchOpts := refresh.BatchOptions{
		BatchSize:  config.RefreshBatchSize,
		MaxSources: config.RefreshLimit,
	}

	slog.Info("Starting background scheduler", "workers", config.WorkerCount, "interval", config.SchedulerInterval)
	scheduler := tasks.NewScheduler(tasks.Config{
		WorkerCount: config.WorkerCount,
		Interval:    time.Duration(config.SchedulerInterval) * time.Second,
		Batch:       batchOpts,
	}, engine)
	scheduler.Start()
	defer scheduler.Stop()

	runner := intake.NewRunner(
		intake.Repositories{
			Jobs:      jobRepo,
			Sources:   sourceRepo,
			Items:     itemRepo,
			Snapshots: snapshotRepo,
		},
		feed.NewDiscoverer(fetcher),
		renderer,
		extractor,
		ruleAdvisor,
		scheduler,
		engine,
		intake.Settings{ConversionTimeout: config.ConversionTimeout},
	)

	if config.SeedsFile != "" {
		importSeeds(config.SeedsFile, sourceRepo, runner)
	}

	handler := api.NewHandler(api.Dependencies{
		Sources:   sourceRepo,
		Items:     itemRepo,
		Runs:      runRepo,
		Generator: feed.NewGenerator(config.BaseUrl, config.Version),
		Intake:    runner,
		Refresher: engine,
		Batch:     batchOpts,
		Version:   config.Version,
	})
	server := api.NewServer(handler, config.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", config.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func importSeeds(path string, sources seeds.SourceLookup, runner *intake.Runner) {
	subs, err := seeds.NewLoader(path).LoadAll()
	if err != nil {
		slog.Error("Failed to load seeds", "path", path, "error", err)
		return
	}

	submitted, err := seeds.Import(context.Background(), subs, sources, runner)
	if err != nil {
		slog.Error("Failed to import seeds", "path", path, "error", err)
		return
	}

	slog.Info("Seeds imported", "path", path, "subscriptions", len(subs), "submitted", submitted)
}
