package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lingualens/lingualens/internal/config"
	"github.com/lingualens/lingualens/internal/core/store"
	"github.com/lingualens/lingualens/internal/output"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and change user preferences",
	Long: fmt.Sprintf(`Read and change user preferences stored alongside the cache.

Settings: %s`, strings.Join(store.SettingNames(), ", ")),
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [NAME]",
	Short: "Show one setting, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(cfg *config.Config, db *store.Store) error {
			settings := userSettings(cfg, db)
			if len(args) == 1 {
				value, err := settings.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeView(cmd, "settings", output.SettingsView(map[string]string{args[0]: value}))
			}

			current, err := settings.Load(cmd.Context())
			if err != nil {
				return err
			}
			return writeView(cmd, "settings", output.SettingsView(store.Values(current)))
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set NAME VALUE",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(cfg *config.Config, db *store.Store) error {
			settings := userSettings(cfg, db)
			if err := settings.Set(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			value, err := settings.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], value)
			return err
		})
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset NAME",
	Short: "Restore a setting to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(cfg *config.Config, db *store.Store) error {
			settings := userSettings(cfg, db)
			if err := settings.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			value, err := settings.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (default)\n", args[0], value)
			return err
		})
	},
}

func init() {
	addOutputFlags(settingsGetCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd, settingsResetCmd)
	rootCmd.AddCommand(settingsCmd)
}
