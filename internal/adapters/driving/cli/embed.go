package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

var (
	embedPendingLimit int
	embedLimit        int
	embedWiki         string
	embedFailed       bool
	embedStatus       string
	embedJSON         bool
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Manage page embeddings",
	Long:  `Embed pages, inspect the embedding queue and retry failures.`,
}

var embedPageCmd = &cobra.Command{
	Use:   "page [page-id]",
	Short: "Embed one page now",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmbedPage,
}

var embedPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Embed pages waiting in the queue",
	Args:  cobra.NoArgs,
	RunE:  runEmbedPending,
}

var embedRetryCmd = &cobra.Command{
	Use:   "retry [page-id]",
	Short: "Re-queue failed pages",
	Long: `Re-queues one failed page, or every failed page with --failed.
Use --wiki to restrict --failed to one wiki.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEmbedRetry,
}

var embedStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show embedding queue counts",
	Args:  cobra.NoArgs,
	RunE:  runEmbedStatus,
}

var embedWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run embedding workers until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runEmbedWorker,
}

func init() {
	embedPendingCmd.Flags().IntVarP(&embedPendingLimit, "limit", "n", 0, "maximum pages to embed (0 = worker batch size)")
	embedRetryCmd.Flags().BoolVar(&embedFailed, "failed", false, "retry every failed page")
	embedRetryCmd.Flags().StringVarP(&embedWiki, "wiki", "w", "", "restrict to one wiki")
	embedStatusCmd.Flags().StringVarP(&embedWiki, "wiki", "w", "", "restrict to one wiki")
	embedStatusCmd.Flags().StringVarP(&embedStatus, "status", "s", "", "also list pages in this state")
	embedStatusCmd.Flags().IntVarP(&embedLimit, "limit", "n", 50, "maximum pages to list")
	embedStatusCmd.Flags().BoolVar(&embedJSON, "json", false, "output as JSON")

	embedCmd.AddCommand(embedPageCmd)
	embedCmd.AddCommand(embedPendingCmd)
	embedCmd.AddCommand(embedRetryCmd)
	embedCmd.AddCommand(embedStatusCmd)
	embedCmd.AddCommand(embedWorkerCmd)
	rootCmd.AddCommand(embedCmd)
}

func runEmbedPage(cmd *cobra.Command, args []string) error {
	if embeddingService == nil {
		return errors.New("embedding service not configured")
	}

	if err := embeddingService.EmbedPage(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to embed page: %w", err)
	}
	cmd.Printf("Embedded page %s\n", args[0])
	return nil
}

func runEmbedPending(cmd *cobra.Command, _ []string) error {
	if embeddingService == nil {
		return errors.New("embedding service not configured")
	}

	run, err := embeddingService.EmbedPending(cmd.Context(), embedPendingLimit)
	if err != nil {
		return fmt.Errorf("failed to embed pending pages: %w", err)
	}
	cmd.Printf("Claimed %d, completed %d, failed %d, stale %d\n",
		run.Claimed, run.Completed, run.Failed, run.Stale)
	return nil
}

func runEmbedRetry(cmd *cobra.Command, args []string) error {
	if embeddingService == nil {
		return errors.New("embedding service not configured")
	}

	switch {
	case embedFailed:
		n, err := embeddingService.RetryFailed(cmd.Context(), embedWiki)
		if err != nil {
			return fmt.Errorf("failed to retry pages: %w", err)
		}
		cmd.Printf("Re-queued %d failed pages\n", n)
		return nil
	case len(args) == 1:
		if err := embeddingService.Retry(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to retry page: %w", err)
		}
		cmd.Printf("Re-queued page %s\n", args[0])
		return nil
	default:
		return errors.New("give a page id or --failed")
	}
}

func runEmbedStatus(cmd *cobra.Command, _ []string) error {
	if embeddingService == nil {
		return errors.New("embedding service not configured")
	}

	counts, err := embeddingService.StatusCounts(cmd.Context(), embedWiki)
	if err != nil {
		return fmt.Errorf("failed to count pages: %w", err)
	}

	var pages []domain.Page
	if embedStatus != "" {
		pages, err = embeddingService.ListByStatus(cmd.Context(), domain.EmbeddingStatus(embedStatus), embedWiki, embedLimit)
		if err != nil {
			return fmt.Errorf("failed to list pages: %w", err)
		}
	}

	if embedJSON {
		out := struct {
			Counts map[string]int `json:"counts"`
			Pages  []domain.Page  `json:"pages,omitempty"`
		}{Counts: make(map[string]int)}
		for _, s := range domain.AllEmbeddingStatuses() {
			out.Counts[s.String()] = counts[s]
		}
		for i := range pages {
			pages[i].Content = ""
		}
		out.Pages = pages
		return printJSON(cmd, out)
	}

	rows := make([][]string, 0, len(domain.AllEmbeddingStatuses()))
	for _, s := range domain.AllEmbeddingStatuses() {
		rows = append(rows, []string{s.String(), strconv.Itoa(counts[s])})
	}
	printTable(cmd, []string{"Status", "Pages"}, rows)

	if embedStatus != "" {
		if len(pages) == 0 {
			cmd.Printf("No %s pages.\n", embedStatus)
			return nil
		}
		rows = make([][]string, len(pages))
		for i := range pages {
			rows[i] = []string{pages[i].ID, pages[i].WikiID, pages[i].Title, pages[i].EmbeddingError}
		}
		printTable(cmd, []string{"Page", "Wiki", "Title", "Error"}, rows)
	}
	return nil
}

func runEmbedWorker(cmd *cobra.Command, _ []string) error {
	if embeddingService == nil {
		return errors.New("embedding service not configured")
	}

	cmd.Println("Embedding workers running. Press Ctrl+C to stop.")
	if err := embeddingService.RunWorkers(cmd.Context()); err != nil {
		return fmt.Errorf("embedding workers stopped: %w", err)
	}
	return nil
}
