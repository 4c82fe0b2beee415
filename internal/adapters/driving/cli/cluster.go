package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

var (
	clusterTag  bool
	clusterJSON bool
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Group pages into topic clusters",
	Long:  `Run k-means over page embeddings and propose tags for the resulting clusters.`,
}

var clusterRunCmd = &cobra.Command{
	Use:   "run [wiki-id]",
	Short: "Recompute clusters for a wiki",
	Long: `Recomputes the clusters of a wiki from its completed page embeddings.
The new generation replaces the previous one. With --tag, each new cluster
is sent to the language model for tag proposals.`,
	Args: cobra.ExactArgs(1),
	RunE: runClusterRun,
}

var clusterListCmd = &cobra.Command{
	Use:   "list [wiki-id]",
	Short: "List the current clusters of a wiki",
	Args:  cobra.ExactArgs(1),
	RunE:  runClusterList,
}

var clusterTagCmd = &cobra.Command{
	Use:   "tag [cluster-id]",
	Short: "Propose tags for one cluster",
	Args:  cobra.ExactArgs(1),
	RunE:  runClusterTag,
}

func init() {
	clusterRunCmd.Flags().BoolVar(&clusterTag, "tag", false, "propose tags for the new clusters")
	clusterListCmd.Flags().BoolVar(&clusterJSON, "json", false, "output clusters as JSON")

	clusterCmd.AddCommand(clusterRunCmd)
	clusterCmd.AddCommand(clusterListCmd)
	clusterCmd.AddCommand(clusterTagCmd)
	rootCmd.AddCommand(clusterCmd)
}

func runClusterRun(cmd *cobra.Command, args []string) error {
	if clusterService == nil {
		return errors.New("cluster service not configured")
	}
	if clusterTag && taggingService == nil {
		return fmt.Errorf("tagging: %w", domain.ErrLLMUnavailable)
	}

	run, err := clusterService.Run(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("clustering failed: %w", err)
	}
	cmd.Printf("Generation %d: %d pages in %d clusters (%d cached tag sets carried over)\n",
		run.Generation, run.Pages, len(run.Clusters), run.CarriedTags)

	if !clusterTag {
		return nil
	}

	tagRun, err := taggingService.TagWiki(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("tagging failed: %w", err)
	}
	cmd.Printf("Tagged %d of %d clusters (%d cached, %d failed), %d tags applied\n",
		tagRun.Tagged, tagRun.Clusters, tagRun.Cached, tagRun.Failed, tagRun.Applied)
	return nil
}

func runClusterList(cmd *cobra.Command, args []string) error {
	if clusterService == nil {
		return errors.New("cluster service not configured")
	}

	clusters, err := clusterService.List(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list clusters: %w", err)
	}

	if clusterJSON {
		if clusters == nil {
			clusters = []domain.Cluster{}
		}
		return printJSON(cmd, clusters)
	}

	if len(clusters) == 0 {
		cmd.Println("No clusters. Run 'wikiscope cluster run' first.")
		return nil
	}

	rows := make([][]string, len(clusters))
	for i := range clusters {
		c := &clusters[i]
		names := make([]string, len(c.Tags))
		for j := range c.Tags {
			names[j] = c.Tags[j].Name
		}
		rows[i] = []string{
			c.ID,
			strconv.Itoa(len(c.MemberPageIDs)),
			strings.Join(c.RepresentativePageIDs, ", "),
			strings.Join(names, ", "),
		}
	}
	printTable(cmd, []string{"Cluster", "Pages", "Representatives", "Tags"}, rows)
	return nil
}

func runClusterTag(cmd *cobra.Command, args []string) error {
	if taggingService == nil {
		return fmt.Errorf("tagging: %w", domain.ErrLLMUnavailable)
	}

	result, err := taggingService.TagCluster(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("tagging failed: %w", err)
	}

	if result.Cached {
		cmd.Println("Membership unchanged, using cached proposals.")
	}
	if len(result.Candidates) == 0 {
		cmd.Println("No tags proposed.")
		return nil
	}

	rows := make([][]string, len(result.Candidates))
	for i, c := range result.Candidates {
		rows[i] = []string{c.Name, string(c.Category), strconv.FormatFloat(c.Confidence, 'f', 2, 64), c.Rationale}
	}
	printTable(cmd, []string{"Tag", "Category", "Confidence", "Rationale"}, rows)
	cmd.Printf("%d tags applied to cluster pages\n", len(result.Applied))
	return nil
}
