package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lingualens/lingualens/internal/output"
)

var extensions = map[output.Format]string{
	output.FormatJSON:     "json",
	output.FormatYAML:     "yaml",
	output.FormatMarkdown: "md",
	output.FormatCSV:      "csv",
}

func outputExtension(format output.Format) string {
	if ext, ok := extensions[format]; ok {
		return ext
	}
	return "txt"
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := nonFilename.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	if clean = strings.Trim(clean, "-."); clean == "" {
		return "output"
	}
	return clean
}

// addOutputFlags registers the shared rendering flags on cmd.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output-format", "o", string(output.FormatTable), "Output format: table|json|markdown|yaml|csv")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to <dir>/<command>.<ext>")
}

// viewTarget is where and how a command's view is written.
type viewTarget struct {
	format output.Format
	// path is empty for stdout.
	path string
}

var errOutConflict = errors.New("--out and --out-dir are mutually exclusive")

// targetFromFlags reads the output flags. name picks the file name under
// --out-dir.
func targetFromFlags(cmd *cobra.Command, name string) (viewTarget, error) {
	flags := cmd.Flags()
	raw, _ := flags.GetString("output-format")
	format, err := output.ParseFormat(raw)
	if err != nil {
		return viewTarget{}, err
	}

	file, _ := flags.GetString("out")
	dir, _ := flags.GetString("out-dir")
	file, dir = strings.TrimSpace(file), strings.TrimSpace(dir)

	target := viewTarget{format: format}
	switch {
	case file != "" && dir != "":
		return viewTarget{}, errOutConflict
	case dir != "":
		target.path = filepath.Join(dir, sanitizeFilename(name)+"."+outputExtension(format))
	case file != "-":
		target.path = file
	}
	return target, nil
}

// write renders view and sends it to stdout or the target file, creating
// parent directories as needed.
func (t viewTarget) write(stdout io.Writer, view output.View) error {
	rendered, err := output.Render(t.format, view)
	if err != nil {
		return err
	}
	if t.path == "" {
		_, err = fmt.Fprintln(stdout, rendered)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return os.WriteFile(t.path, []byte(rendered+"\n"), 0o644)
}

// writeView renders view per the command's output flags.
func writeView(cmd *cobra.Command, name string, view output.View) error {
	target, err := targetFromFlags(cmd, name)
	if err != nil {
		return err
	}
	return target.write(cmd.OutOrStdout(), view)
}
