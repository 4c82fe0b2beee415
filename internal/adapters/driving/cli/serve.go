package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/wikiscope/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/logger"
)

var (
	serveAddr      string
	serveNoWorkers bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with background workers",
	Long: `Runs the HTTP API together with the embedding workers, the scheduler
and the prompt file watcher. Stops cleanly on Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (default from settings)")
	serveCmd.Flags().BoolVar(&serveNoWorkers, "no-workers", false, "do not start embedding workers")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	server, err := httpapi.NewServer(httpapi.Services{
		Search:         searchService,
		Pages:          pageService,
		Embeddings:     embeddingService,
		Clusters:       clusterService,
		Tagging:        taggingService,
		Tags:           tagService,
		SearchDefaults: searchDefaults,
	})
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = serverAddr
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	// run starts fn in the background. A failure stops everything else.
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("%s stopped: %v", name, err)
				errMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", name, err)
				}
				errMu.Unlock()
				cancel()
			}
		}()
	}

	if scheduler != nil {
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("stopping scheduler: %v", err)
			}
		}()
	}

	if embeddingService != nil && !serveNoWorkers {
		run("embedding workers", func(ctx context.Context) error {
			err := embeddingService.RunWorkers(ctx)
			if errors.Is(err, domain.ErrEmbeddingUnavailable) {
				// Search keeps serving keyword results without an embedder.
				logger.Warn("Embedding workers not started: %v", err)
				return nil
			}
			return err
		})
	}

	if promptWatcher != nil {
		// A broken watcher only loses hot reload.
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := promptWatcher.Watch(ctx, func() { logger.Info("Prompt templates reloaded") }); err != nil {
				logger.Warn("prompt watcher stopped: %v", err)
			}
		}()
	}

	cmd.Printf("wikiscope API listening on http://%s\n", addr)
	run("http server", func(ctx context.Context) error {
		return server.ListenAndServe(ctx, addr)
	})

	wg.Wait()
	return firstErr
}
