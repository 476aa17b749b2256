package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lingualens/lingualens/internal/core/engine"
	"github.com/lingualens/lingualens/internal/output"
	"github.com/lingualens/lingualens/internal/server/handlers"
)

// maxBatchLine bounds a single input line; longer text fails sanitizing anyway.
const maxBatchLine = 64 * 1024

var batchCmd = &cobra.Command{
	Use:   "batch [FILE|-]",
	Short: "Analyze many texts, one per line",
	Long: `Analyze each line of FILE (or stdin) in order.

Blank lines and lines starting with # are skipped. Every line gets a row:
items denied by the local rate limiter or failed upstream are reported with
their error code and the run continues. Use -o csv to export the table.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		texts, err := loadBatchTexts(cmd, args)
		if err != nil {
			return err
		}
		if len(texts) == 0 {
			return fmt.Errorf("no texts to analyze")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), cfg, func(a *app) error {
			ctx := cmd.Context()
			compact := a.preferences(ctx).CompactMode
			if cmd.Flags().Changed("compact") {
				compact, _ = cmd.Flags().GetBool("compact")
			}

			opts := engine.BatchOptions{
				CompactMode: compact,
				Classify: func(err error) string {
					return handlers.GatewayErrorEnvelope(ctx, err).Code
				},
			}
			if showProgress, _ := cmd.Flags().GetBool("progress"); showProgress {
				stderr := cmd.ErrOrStderr()
				opts.Progress = func(done, total int) {
					_, _ = fmt.Fprintf(stderr, "analyzed %d/%d\n", done, total)
				}
			}

			result, err := a.gateway.AnalyzeBatch(ctx, texts, opts)
			if result != nil {
				if writeErr := writeView(cmd, "batch", output.BatchView(result)); writeErr != nil && err == nil {
					err = writeErr
				}
			}
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().Bool("compact", true, "Request the compact analysis payload (default from settings)")
	batchCmd.Flags().Bool("progress", false, "Report progress on stderr")
	addOutputFlags(batchCmd)
}

func loadBatchTexts(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) == 1 && args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("open batch file: %w", err)
		}
		defer func() { _ = file.Close() }()
		return readBatchTexts(file)
	}
	return readBatchTexts(cmd.InOrStdin())
}

// readBatchTexts returns the trimmed non-empty lines of r, skipping
// # comments.
func readBatchTexts(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxBatchLine)

	var texts []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		texts = append(texts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batch input: %w", err)
	}
	return texts, nil
}
