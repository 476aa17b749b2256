package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lingualens/lingualens/internal/core"
	"github.com/lingualens/lingualens/internal/output"
)

var translateCmd = &cobra.Command{
	Use:   "translate [TEXT]",
	Short: "Translate text",
	Long: `Translate text through the local cache and rate limiter.

--from and --to default to the source_lang and target_lang settings
("auto" and "en" unless changed).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(cmd, args)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), cfg, func(a *app) error {
			prefs := a.preferences(cmd.Context())
			req := core.TranslateRequest{Text: text, SourceLang: prefs.SourceLang, TargetLang: prefs.TargetLang}
			if cmd.Flags().Changed("from") {
				req.SourceLang, _ = cmd.Flags().GetString("from")
			}
			if cmd.Flags().Changed("to") {
				req.TargetLang, _ = cmd.Flags().GetString("to")
			}

			outcome, err := a.gateway.Translate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeView(cmd, "translate", output.OutcomeView(outcome))
		})
	},
}

func init() {
	rootCmd.AddCommand(translateCmd)
	translateCmd.Flags().String("from", "auto", "Source language code")
	translateCmd.Flags().String("to", "en", "Target language code")
	addOutputFlags(translateCmd)
}
