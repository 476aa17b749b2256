package cmd

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lingualens/lingualens/internal/output"
	"github.com/lingualens/lingualens/internal/server/handlers"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect and reset quota state on a running host",
	Long: `Inspect and reset quota state on a running host.

Limiter state lives in the serve process, so these commands talk to it over
HTTP (see --server).`,
}

var rateLimitListCmd = &cobra.Command{
	Use:   "list [POLICY]",
	Short: "List quota usage per policy",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		host := newHostClient(cmd, cfg)

		path := "/v1/rate-limits"
		if len(args) == 1 {
			path += "/" + url.PathEscape(strings.TrimSpace(args[0]))
		}

		var resp handlers.RateLimitsResponse
		if err := host.do(cmd.Context(), http.MethodGet, path, &resp); err != nil {
			return err
		}
		return writeView(cmd, "rate-limit.list", output.StatusView(resp.Policies, time.Now()))
	},
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset [POLICY]",
	Short: "Clear quota usage and backoff",
	Long: `Clear quota usage and backoff for one policy, or for every policy with --all.

With --key only that endpoint key of POLICY is cleared (for example /analyze).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 1) {
			return errors.New("specify a POLICY or --all")
		}
		key, _ := cmd.Flags().GetString("key")
		key = strings.TrimSpace(key)
		if all && key != "" {
			return errors.New("--key requires a POLICY")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		host := newHostClient(cmd, cfg)

		path := "/v1/rate-limits"
		if !all {
			path += "/" + url.PathEscape(strings.TrimSpace(args[0]))
			if key != "" {
				path += "?" + url.Values{"key": {key}}.Encode()
			}
		}

		var resp struct {
			Reset []string `json:"reset"`
			Key   string   `json:"key,omitempty"`
		}
		if err := host.do(cmd.Context(), http.MethodDelete, path, &resp); err != nil {
			return err
		}

		view := output.View{Title: "Rate limits reset", Header: []string{"Policy", "Key"}, Data: resp}
		for _, policy := range resp.Reset {
			scope := resp.Key
			if scope == "" {
				scope = "*"
			}
			view.Rows = append(view.Rows, []string{policy, scope})
		}
		return writeView(cmd, "rate-limit.reset", view)
	},
}

func init() {
	rateLimitResetCmd.Flags().Bool("all", false, "Reset every policy")
	rateLimitResetCmd.Flags().String("key", "", "Reset only this endpoint key of POLICY")

	for _, c := range []*cobra.Command{rateLimitListCmd, rateLimitResetCmd} {
		addServerFlags(c)
		addOutputFlags(c)
		rateLimitCmd.AddCommand(c)
	}
	rootCmd.AddCommand(rateLimitCmd)
}
