package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

var (
	pageWiki  string
	pageTitle string
	pageFile  string
	pageJSON  bool
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Manage wiki pages",
	Long:  `Store, inspect and remove the page content wikiscope indexes.`,
}

var pagePutCmd = &cobra.Command{
	Use:   "put [page-id]",
	Short: "Store page content",
	Long: `Stores a page. Content is read from --file, or from stdin when --file is "-"
or omitted. Changed content is queued for embedding.`,
	Args: cobra.ExactArgs(1),
	RunE: runPagePut,
}

var pageGetCmd = &cobra.Command{
	Use:   "get [page-id]",
	Short: "Show a page",
	Args:  cobra.ExactArgs(1),
	RunE:  runPageGet,
}

var pageDeleteCmd = &cobra.Command{
	Use:   "delete [page-id]",
	Short: "Remove a page with its embeddings and tag links",
	Args:  cobra.ExactArgs(1),
	RunE:  runPageDelete,
}

func init() {
	pagePutCmd.Flags().StringVarP(&pageWiki, "wiki", "w", "", "wiki the page belongs to")
	pagePutCmd.Flags().StringVarP(&pageTitle, "title", "t", "", "page title")
	pagePutCmd.Flags().StringVarP(&pageFile, "file", "f", "-", "file holding the page content")
	_ = pagePutCmd.MarkFlagRequired("wiki")
	pageGetCmd.Flags().BoolVar(&pageJSON, "json", false, "output page as JSON")

	pageCmd.AddCommand(pagePutCmd)
	pageCmd.AddCommand(pageGetCmd)
	pageCmd.AddCommand(pageDeleteCmd)
	rootCmd.AddCommand(pageCmd)
}

func runPagePut(cmd *cobra.Command, args []string) error {
	if pageService == nil {
		return errors.New("page service not configured")
	}

	content, err := readContent(cmd, pageFile)
	if err != nil {
		return err
	}

	page, changed, err := pageService.Put(cmd.Context(), domain.Page{
		ID:      args[0],
		WikiID:  pageWiki,
		Title:   pageTitle,
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("failed to store page: %w", err)
	}

	if changed {
		cmd.Printf("Stored page %s (%s)\n", page.ID, page.EmbeddingStatus)
	} else {
		cmd.Printf("Page %s unchanged\n", page.ID)
	}
	return nil
}

func readContent(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return string(data), nil
}

func runPageGet(cmd *cobra.Command, args []string) error {
	if pageService == nil {
		return errors.New("page service not configured")
	}

	page, err := pageService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get page: %w", err)
	}

	if pageJSON {
		return printJSON(cmd, page)
	}

	cmd.Printf("ID:        %s\n", page.ID)
	cmd.Printf("Wiki:      %s\n", page.WikiID)
	cmd.Printf("Title:     %s\n", page.Title)
	cmd.Printf("Status:    %s\n", page.EmbeddingStatus)
	if page.EmbeddingError != "" {
		cmd.Printf("Error:     %s\n", page.EmbeddingError)
	}
	cmd.Printf("Updated:   %s\n", page.UpdatedAt.Format("2006-01-02 15:04:05"))

	if tagService != nil {
		tags, err := tagService.ListForPage(cmd.Context(), page.ID)
		if err == nil && len(tags) > 0 {
			names := make([]string, len(tags))
			for i := range tags {
				names[i] = tags[i].Name
			}
			cmd.Printf("Tags:      %v\n", names)
		}
	}
	return nil
}

func runPageDelete(cmd *cobra.Command, args []string) error {
	if pageService == nil {
		return errors.New("page service not configured")
	}

	if err := pageService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}
	cmd.Printf("Deleted page %s\n", args[0])
	return nil
}
