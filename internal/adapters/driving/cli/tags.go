package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

var (
	tagsColor string
	tagsPage  string
	tagsJSON  bool
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Manage tags",
	Long:  `List, create and verify the tags of a wiki.`,
}

var tagsListCmd = &cobra.Command{
	Use:   "list [wiki-id]",
	Short: "List the tags of a wiki, or of one page with --page",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTagsList,
}

var tagsCreateCmd = &cobra.Command{
	Use:   "create [wiki-id] [name]",
	Short: "Create a human tag",
	Args:  cobra.ExactArgs(2),
	RunE:  runTagsCreate,
}

var tagsVerifyCmd = &cobra.Command{
	Use:   "verify [tag-id]",
	Short: "Mark a tag as verified",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagsVerify,
}

func init() {
	tagsListCmd.Flags().StringVarP(&tagsPage, "page", "p", "", "list the tags of this page")
	tagsListCmd.Flags().BoolVar(&tagsJSON, "json", false, "output tags as JSON")
	tagsCreateCmd.Flags().StringVarP(&tagsColor, "color", "c", "", "display colour")

	tagsCmd.AddCommand(tagsListCmd)
	tagsCmd.AddCommand(tagsCreateCmd)
	tagsCmd.AddCommand(tagsVerifyCmd)
	rootCmd.AddCommand(tagsCmd)
}

func runTagsList(cmd *cobra.Command, args []string) error {
	if tagService == nil {
		return errors.New("tag service not configured")
	}

	var (
		tags []domain.Tag
		err  error
	)
	switch {
	case tagsPage != "":
		tags, err = tagService.ListForPage(cmd.Context(), tagsPage)
	case len(args) == 1:
		tags, err = tagService.List(cmd.Context(), args[0])
	default:
		return errors.New("give a wiki id or --page")
	}
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}

	if tagsJSON {
		if tags == nil {
			tags = []domain.Tag{}
		}
		return printJSON(cmd, tags)
	}

	if len(tags) == 0 {
		cmd.Println("No tags.")
		return nil
	}

	rows := make([][]string, len(tags))
	for i := range tags {
		rows[i] = tagRow(&tags[i])
	}
	printTable(cmd, []string{"ID", "Name", "Source", "Confidence", "Verified"}, rows)
	return nil
}

func tagRow(t *domain.Tag) []string {
	confidence := "-"
	if t.Confidence != nil {
		confidence = strconv.FormatFloat(*t.Confidence, 'f', 2, 64)
	}
	verified := "no"
	if t.Verified {
		verified = "yes"
	}
	return []string{t.ID, t.Name, string(t.Source), confidence, verified}
}

func runTagsCreate(cmd *cobra.Command, args []string) error {
	if tagService == nil {
		return errors.New("tag service not configured")
	}

	tag, err := tagService.Create(cmd.Context(), args[0], args[1], tagsColor)
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	cmd.Printf("Tag %s (%s)\n", tag.Name, tag.ID)
	return nil
}

func runTagsVerify(cmd *cobra.Command, args []string) error {
	if tagService == nil {
		return errors.New("tag service not configured")
	}

	tag, err := tagService.Verify(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to verify tag: %w", err)
	}
	cmd.Printf("Verified tag %s\n", tag.Name)
	return nil
}
