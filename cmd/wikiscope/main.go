// Command wikiscope runs semantic search, clustering and tagging for wikis.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/custodia-labs/wikiscope/internal/adapters/driven/ai"
	"github.com/custodia-labs/wikiscope/internal/adapters/driven/config/file"
	"github.com/custodia-labs/wikiscope/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/wikiscope/internal/adapters/driving/cli"
	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
	"github.com/custodia-labs/wikiscope/internal/core/services"
	"github.com/custodia-labs/wikiscope/internal/logger"
	"github.com/custodia-labs/wikiscope/internal/postprocessors"
)

// version is set at build time via ldflags.
var version = "dev"

// homeEnv overrides the ~/.wikiscope base directory.
const homeEnv = "WIKISCOPE_HOME"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	home := os.Getenv(homeEnv)

	configStore, err := file.NewConfigStore(home)
	if err != nil {
		return report(fmt.Errorf("opening config: %w", err))
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	settings, err := settingsService.Get()
	if err != nil {
		return report(fmt.Errorf("loading settings: %w", err))
	}

	store, err := sqlite.NewStore(subdir(home, "data"))
	if err != nil {
		return report(fmt.Errorf("opening store: %w", err))
	}
	defer store.Close()

	aiServices := ai.Init(settings)
	defer aiServices.Close()

	chunker, err := buildChunker(settings.Chunking)
	if err != nil {
		return report(err)
	}

	pages := services.NewPageService(store.PageStore())
	embeddings := services.NewEmbeddingService(
		store.EmbeddingTracker(), aiServices.EmbeddingService, chunker, settings.Worker)
	search := services.NewSearchService(
		store.KeywordSearch(), store.VectorIndex(), aiServices.EmbeddingService, store.PageStore())
	clusters := services.NewClusterService(store.VectorIndex(), store.ClusterStore(), settings.Clustering)
	tags := services.NewTagService(store.TagStore())

	// Interfaces stay untyped nil without a language model.
	var (
		tagging driving.TaggingService
		watcher cli.PromptWatcher
	)
	if aiServices.LLMService != nil {
		tagger := services.NewTaggingService(
			store.ClusterStore(), store.PageStore(), store.TagStore(), aiServices.LLMService, settings.Tagging)
		prompts, err := file.NewPromptStore(subdir(home, "prompts"))
		if err != nil {
			logger.Warn("using built-in prompts: %v", err)
		} else {
			tagger.SetPromptStore(prompts)
			watcher = prompts
		}
		tagging = tagger
	}

	scheduler := services.NewScheduler(
		settingsService.GetSchedulerConfig(), store.SchedulerStore(), store.PageStore(),
		embeddings, clusters, tagging)

	cli.SetVersion(version)
	cli.SetServices(cli.Services{
		Search:         search,
		Pages:          pages,
		Embeddings:     embeddings,
		Clusters:       clusters,
		Tagging:        tagging,
		Tags:           tags,
		Settings:       settingsService,
		Scheduler:      scheduler,
		Watcher:        watcher,
		SearchDefaults: settings.Search,
		ServerAddr:     settings.Server.Addr,
	})

	return cli.Execute(ctx)
}

// buildChunker resolves the configured chunking strategy.
func buildChunker(cfg domain.ChunkingSettings) (driven.Chunker, error) {
	registry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(registry)

	name := cfg.Strategy
	if name == "" {
		name = postprocessors.DefaultChunker
	}
	chunker, err := registry.Build(name, map[string]any{
		"chunk_size": cfg.Size,
		"overlap":    cfg.Overlap,
	})
	if err != nil {
		return nil, fmt.Errorf("chunking strategy %q (available: %v): %w", name, registry.Names(), err)
	}
	return chunker, nil
}

func subdir(home, name string) string {
	if home == "" {
		return ""
	}
	return filepath.Join(home, name)
}

// report prints setup errors, which happen before cobra can print them.
func report(err error) error {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return err
}
