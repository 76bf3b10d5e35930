package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newPollCmd creates the 'poll' subcommand, which advances the ad
// stream checkpoint once. Run it from cron or a scheduler.
func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll the ad stream for changes since the last checkpoint",
		Long: `Fetches every ad created, updated, or removed since the stored
checkpoint, applies the changes, and advances the checkpoint. Safe to
re-run: replayed changes upsert by ad ID.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := appInstance.Runner().PollAds(cmd.Context())
			if err != nil {
				return fmt.Errorf("poll ads: %w", err)
			}
			appInstance.Logger().Info("poll complete", zap.Int("changes", n))
			return nil
		},
	}
}
