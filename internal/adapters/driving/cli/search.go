package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

var (
	searchWiki      string
	searchLimit     int
	searchOffset    int
	searchMode      string
	searchThreshold float64
	searchWeight    float64
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search wiki pages",
	Long: `Searches wiki pages by keyword, by meaning or both.

Modes:
  keyword  - full-text (BM25) ranking only
  semantic - vector similarity between the query and page chunks
  hybrid   - blend of both; falls back to keyword when embeddings are unavailable`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchWiki, "wiki", "w", "", "restrict results to one wiki")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "number of results to skip")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "", "semantic, keyword or hybrid (default from settings)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum semantic similarity (default from settings)")
	searchCmd.Flags().Float64Var(&searchWeight, "weight", 0, "hybrid semantic weight (default from settings)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if searchService == nil {
		return errors.New("search service not configured")
	}

	opts := searchDefaults.Options()
	opts.WikiID = searchWiki
	opts.Limit = searchLimit
	opts.Offset = searchOffset
	if searchMode != "" {
		opts.Mode = domain.SearchMode(searchMode)
	}
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = searchThreshold
	}
	if cmd.Flags().Changed("weight") {
		opts.SemanticWeight = searchWeight
	}

	resp, err := searchService.Search(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, resp)
	}

	outputSearchResults(cmd, resp)
	return nil
}

func outputSearchResults(cmd *cobra.Command, resp *domain.SearchResponse) {
	for _, w := range resp.Warnings {
		cmd.Printf("Warning: %s\n", w)
	}

	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Printf("Results (%s, %d of %d):\n", resp.Mode, len(resp.Results), resp.Total)
	cmd.Println()
	for i := range resp.Results {
		r := &resp.Results[i]
		title := r.Title
		if title == "" {
			title = r.PageID
		}

		cmd.Printf("  [%d] %s (%.3f)\n", i+1, title, r.CombinedScore)
		if len(r.HeadingPath) > 0 {
			cmd.Printf("      Section: %s\n", strings.Join(r.HeadingPath, " > "))
		}
		if r.ChunkPreview != "" {
			cmd.Printf("      %s\n", preview(r.ChunkPreview, 160))
		}
		cmd.Println()
	}
}

// preview collapses whitespace and truncates to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
