package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/scb"
)

// newIngestCmd creates the 'ingest' subcommand, which runs the full
// salary cube extraction.
func newIngestCmd() *cobra.Command {
	var years []string
	var occupations []string
	var dispersion bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest salary statistics from the cube API",
		Long: `Chunks the configured occupation and year selection into batches that
fit the API's cell limit, fetches each batch, and upserts tidy fact
rows. Failed batches are reported and skipped; the run continues.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			logger := appInstance.Logger()

			params := scb.QueryParams{
				Occupations: cfg.SCB.Occupations,
				Regions:     cfg.SCB.Regions,
				Genders:     cfg.SCB.Genders,
				Sectors:     cfg.SCB.Sectors,
				Measures:    cfg.SCB.Measures,
				Years:       cfg.SCB.Years,
			}
			if len(occupations) > 0 {
				params.Occupations = occupations
			}
			if len(years) > 0 {
				params.Years = years
			}

			ingest := appInstance.Runner().IngestSalaries
			if dispersion {
				// The dispersion table carries percentile measures and
				// no region dimension.
				params.Measures = cfg.SCB.DispersionMeasures
				params.Regions = nil
				ingest = appInstance.Runner().IngestDispersion
			}

			summary, err := ingest(cmd.Context(), params, cfg.SCB.MaxCells)
			if err != nil {
				return fmt.Errorf("ingest salaries: %w", err)
			}

			logger.Info("run complete",
				zap.String("run_id", summary.RunID),
				zap.Int("succeeded", summary.Succeeded()),
				zap.Int("failed", summary.Failed()))
			if summary.Failed() > 0 {
				return fmt.Errorf("%d of %d batches failed", summary.Failed(), len(summary.Batches))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&years, "years", nil, "override configured years")
	cmd.Flags().StringSliceVar(&occupations, "occupations", nil, "override configured occupation codes")
	cmd.Flags().BoolVar(&dispersion, "dispersion", false, "ingest salary percentile measures from the dispersion table")
	return cmd
}
