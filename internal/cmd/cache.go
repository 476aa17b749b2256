package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lingualens/lingualens/internal/core/store"
	"github.com/lingualens/lingualens/internal/metrics"
	"github.com/lingualens/lingualens/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
	Long: `Manage the response cache.

clean removes expired entries from the configured backend. list and clear
work on the persisted store table (cache.backend=store).`,
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.Cache.CleanOnStart = false

		return withApp(cmd.Context(), cfg, func(a *app) error {
			removed := a.cache.CleanExpired(cmd.Context())
			metrics.RecordCacheSweep(removed)
			return writeView(cmd, "cache.clean", output.View{
				Title:  "Cache clean",
				Header: []string{"Removed"},
				Rows:   [][]string{{strconv.Itoa(removed)}},
				Data:   map[string]int{"removed": removed},
			})
		})
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := cacheQueryFromFlags(cmd)
		if err != nil {
			return err
		}
		if !query.All && query.Endpoint == "" && query.Prefix == "" {
			query.All = true
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		rows, err := db.ListCache(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeView(cmd, "cache.list", output.CacheView(rows, time.Now()))
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete stored cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := cacheQueryFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := query.Validate(); err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if query.All && !yes && !dryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountCache(cmd.Context(), query)
		if err != nil {
			return err
		}

		var deleted int64
		if !dryRun {
			deleted, err = db.ClearCache(cmd.Context(), query)
			if err != nil {
				return err
			}
		}

		summary := fmt.Sprintf("Deleted %d/%d cache entries", deleted, matched)
		if dryRun {
			summary = fmt.Sprintf("Would delete %d cache entries", matched)
		}
		return writeView(cmd, "cache.clear", output.View{
			Title:  "Cache clear",
			Header: []string{"Matched", "Deleted", "Dry Run"},
			Rows:   [][]string{{strconv.Itoa(matched), strconv.FormatInt(deleted, 10), strconv.FormatBool(dryRun)}},
			Footer: summary,
			Data:   map[string]any{"matched": matched, "deleted": deleted, "dry_run": dryRun},
		})
	},
}

func cacheQueryFromFlags(cmd *cobra.Command) (store.CacheQuery, error) {
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return store.CacheQuery{}, err
	}
	endpoint, _ := cmd.Flags().GetString("endpoint")
	prefix, _ := cmd.Flags().GetString("prefix")

	endpoint = strings.TrimSpace(endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return store.CacheQuery{All: all, Endpoint: endpoint, Prefix: strings.TrimSpace(prefix)}, nil
}

func init() {
	for _, c := range []*cobra.Command{cacheListCmd, cacheClearCmd} {
		c.Flags().Bool("all", false, "Match every entry")
		c.Flags().String("endpoint", "", "Match one endpoint, e.g. /analyze")
		c.Flags().String("prefix", "", "Match cache keys with this prefix")
	}
	cacheClearCmd.Flags().Bool("yes", false, "Confirm destructive clear")
	cacheClearCmd.Flags().Bool("dry-run", false, "Show what would be deleted")

	for _, c := range []*cobra.Command{cacheCleanCmd, cacheListCmd, cacheClearCmd} {
		addOutputFlags(c)
		cacheCmd.AddCommand(c)
	}
	rootCmd.AddCommand(cacheCmd)
}
