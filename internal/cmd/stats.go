package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lingualens/lingualens/internal/config"
	"github.com/lingualens/lingualens/internal/core"
	"github.com/lingualens/lingualens/internal/core/store"
	"github.com/lingualens/lingualens/internal/output"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show analyzed and toxic counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(_ *config.Config, db *store.Store) error {
			stats := store.NewStats(db)
			if reset, _ := cmd.Flags().GetBool("reset"); reset {
				if err := stats.Reset(cmd.Context()); err != nil {
					return err
				}
				return writeView(cmd, "stats", output.StatsView(core.Stats{}))
			}

			current, err := stats.Get(cmd.Context())
			if err != nil {
				return err
			}
			return writeView(cmd, "stats", output.StatsView(current))
		})
	},
}

func init() {
	statsCmd.Flags().Bool("reset", false, "Reset the counters to zero")
	addOutputFlags(statsCmd)
	rootCmd.AddCommand(statsCmd)
}
