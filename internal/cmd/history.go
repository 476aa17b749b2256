package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lingualens/lingualens/internal/config"
	"github.com/lingualens/lingualens/internal/core/store"
	"github.com/lingualens/lingualens/internal/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse recent analyses and translations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List history entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		return withStore(cmd, func(cfg *config.Config, db *store.Store) error {
			entries, err := db.ListHistory(cmd.Context(), kind, limit)
			if err != nil {
				return err
			}
			return writeView(cmd, "history", output.HistoryView(entries))
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one history entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(cfg *config.Config, db *store.Store) error {
			entry, err := db.GetHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeView(cmd, "history."+args[0], output.HistoryEntryView(entry))
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete one history entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(cfg *config.Config, db *store.Store) error {
			if err := db.DeleteHistory(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted history entry %s\n", args[0])
			return err
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every history entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("clear requires --yes")
		}
		return withStore(cmd, func(cfg *config.Config, db *store.Store) error {
			removed, err := db.ClearHistory(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s history entries\n", strconv.FormatInt(removed, 10))
			return err
		})
	},
}

// withStore loads config, opens the store and closes it after fn.
func withStore(cmd *cobra.Command, fn func(*config.Config, *store.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup
	return fn(cfg, db)
}

func init() {
	historyListCmd.Flags().String("type", "", "Only show entries of this type (analyze|translate)")
	historyListCmd.Flags().Int("limit", 20, "Maximum entries to show (0 for all)")
	addOutputFlags(historyListCmd)
	addOutputFlags(historyShowCmd)
	historyClearCmd.Flags().Bool("yes", false, "Confirm deleting all history")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
