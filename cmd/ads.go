package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/jobads"
	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

// newAdsCmd creates the 'ads' subcommand, which backfills historical
// job advertisements.
func newAdsCmd() *cobra.Command {
	var after, before string
	var occupationGroup, region string
	var snapshot bool

	cmd := &cobra.Command{
		Use:   "ads",
		Short: "Backfill historical job advertisements",
		Long: `Pages through the historical ad search API for the given window,
stores the flattened ads, extracts skill terms, and writes yearly
vacancy facts.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			params := jobads.SearchParams{
				OccupationGroup: occupationGroup,
				Region:          region,
				PageSize:        cfg.JobAds.PageSize,
				MaxPages:        cfg.JobAds.MaxPages,
			}
			if after != "" {
				t, err := time.Parse("2006-01-02", after)
				if err != nil {
					return fmt.Errorf("--after must be YYYY-MM-DD: %w", err)
				}
				params.PublishedAfter = t
			}
			if before != "" {
				t, err := time.Parse("2006-01-02", before)
				if err != nil {
					return fmt.Errorf("--before must be YYYY-MM-DD: %w", err)
				}
				params.PublishedBefore = t
			}

			var summary pipeline.RunSummary
			if snapshot {
				// The snapshot endpoint ignores search filters; it dumps
				// every currently published ad.
				summary, err = appInstance.Runner().SnapshotAds(cmd.Context())
			} else {
				summary, err = appInstance.Runner().IngestAds(cmd.Context(), params)
			}
			if err != nil {
				return fmt.Errorf("ingest ads: %w", err)
			}
			appInstance.Logger().Info("ad backfill complete",
				zap.String("run_id", summary.RunID),
				zap.Int("rows", summary.Batches[0].RowsWritten))
			return nil
		},
	}

	cmd.Flags().StringVar(&after, "after", "", "only ads published after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&before, "before", "", "only ads published before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&occupationGroup, "occupation-group", "", "filter by SSYK group or concept ID")
	cmd.Flags().StringVar(&region, "region", "", "filter by region concept ID")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "ingest all currently published ads instead of searching")
	return cmd
}
