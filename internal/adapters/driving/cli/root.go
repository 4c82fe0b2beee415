// Package cli provides the wikiscope command line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
	"github.com/custodia-labs/wikiscope/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var verbose bool

// Services wired by main. Commands check for nil before use.
var (
	searchService    driving.SearchService
	pageService      driving.PageService
	embeddingService driving.EmbeddingService
	clusterService   driving.ClusterService
	taggingService   driving.TaggingService
	tagService       driving.TagService
	settingsService  driving.SettingsService
	scheduler        driving.Scheduler
	promptWatcher    PromptWatcher
	searchDefaults   = domain.DefaultAppSettings().Search
	serverAddr       = domain.DefaultServerAddr
)

// PromptWatcher reloads prompt templates when their files change.
type PromptWatcher interface {
	Watch(ctx context.Context, onReload func()) error
}

// Services holds everything the commands need.
// Tagging and Watcher are nil when no language model is configured.
type Services struct {
	Search         driving.SearchService
	Pages          driving.PageService
	Embeddings     driving.EmbeddingService
	Clusters       driving.ClusterService
	Tagging        driving.TaggingService
	Tags           driving.TagService
	Settings       driving.SettingsService
	Scheduler      driving.Scheduler
	Watcher        PromptWatcher
	SearchDefaults domain.SearchSettings
	ServerAddr     string
}

// SetServices installs the services used by the commands.
func SetServices(s Services) {
	searchService = s.Search
	pageService = s.Pages
	embeddingService = s.Embeddings
	clusterService = s.Clusters
	taggingService = s.Tagging
	tagService = s.Tags
	settingsService = s.Settings
	scheduler = s.Scheduler
	promptWatcher = s.Watcher
	searchDefaults = s.SearchDefaults
	if s.ServerAddr != "" {
		serverAddr = s.ServerAddr
	}
}

// SetVersion overrides the reported version.
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "wikiscope",
	Short: "Semantic search and topic tagging for wikis",
	Long: `wikiscope embeds wiki pages, answers keyword, semantic and hybrid
searches, groups pages into topic clusters and proposes tags for them.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func printTable(cmd *cobra.Command, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	cmd.Println(t.String())
}
