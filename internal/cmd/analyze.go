package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lingualens/lingualens/internal/core"
	"github.com/lingualens/lingualens/internal/output"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [TEXT]",
	Short: "Analyze text for language, sentiment and toxicity",
	Long: `Analyze text through the local cache and rate limiter.

Text is taken from the argument, or from stdin when the argument is "-" or
omitted. Repeated calls with the same text and options are served from the
response cache without spending quota.`,
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
			compact := prefs.CompactMode
			if cmd.Flags().Changed("compact") {
				compact, _ = cmd.Flags().GetBool("compact")
			}

			outcome, err := a.gateway.Analyze(cmd.Context(), core.AnalyzeRequest{Text: text, CompactMode: compact})
			if err != nil {
				return err
			}
			return writeView(cmd, "analyze", output.OutcomeView(outcome))
		})
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().Bool("compact", true, "Request the compact analysis payload (default from settings)")
	addOutputFlags(analyzeCmd)
}

// readText takes the first argument, or stdin when it is "-" or missing.
func readText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", fmt.Errorf("no text given: pass TEXT or pipe it on stdin")
		}
	}
	raw, err := io.ReadAll(io.LimitReader(in, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
