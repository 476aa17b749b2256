package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lingualens/lingualens/internal/appid"
	"github.com/lingualens/lingualens/internal/config"
	"github.com/lingualens/lingualens/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display version, runtime, configuration and effective quota policies.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		version := crucible.GetVersion()
		identity := appid.Get()

		log.Info("=== LinguaLens Environment Information ===")
		log.Info("Application:")
		log.Info("  Name:       " + identity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Env Prefix: " + appid.EnvPrefix())
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info(fmt.Sprintf("  Platform:   %s/%s", runtime.GOOS, runtime.GOARCH))
		log.Info("")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		log.Info("Configuration:")
		log.Info("  Config File:  "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		log.Info("  API URL:      "+cfg.API.BaseURL, zap.String("api_url", cfg.API.BaseURL))
		log.Info("  API Timeout:  " + cfg.API.Timeout.String())
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  DB URL:       "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			log.Info("  DB Path:      "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		log.Info("  Cache:        "+cfg.Cache.Backend+" (ttl "+cfg.Cache.TTL.String()+")", zap.String("cache_backend", cfg.Cache.Backend))
		if strings.EqualFold(cfg.Cache.Backend, "redis") {
			log.Info("  Redis URL:    " + cfg.Redis.URL)
		}
		log.Info(fmt.Sprintf("  Server:       %s:%d (auth %t)", cfg.Server.Host, cfg.Server.Port, cfg.Server.AuthSecret != ""))
		log.Info("  Log Level:    " + cfg.Logging.Level)
		log.Info("")

		registry, err := buildRegistry(cfg)
		if err != nil {
			return &configError{err: err}
		}
		log.Info(fmt.Sprintf("Quota Policies (margin %.2f):", cfg.RateLimitMargin))
		for _, status := range registry.Snapshot() {
			log.Info(fmt.Sprintf("  %-10s %d/min", status.Policy, status.Limit),
				zap.String("policy", status.Policy), zap.Int("limit", status.Limit))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
