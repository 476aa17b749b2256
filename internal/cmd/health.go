package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lingualens/lingualens/internal/config"
	"github.com/lingualens/lingualens/internal/core/client"
	"github.com/lingualens/lingualens/internal/core/store"
	"github.com/lingualens/lingualens/internal/observability"
	"github.com/lingualens/lingualens/internal/output"
)

// healthCheck is one row of the health report.
type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Latency string `json:"latency,omitempty"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check configuration, the store and the remote API",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.CLILogger
		var checks []healthCheck

		cfg, err := loadConfig(cmd)
		if err != nil {
			checks = append(checks, healthCheck{Name: "config", Status: "fail", Detail: err.Error()})
			_ = writeView(cmd, "health", healthView(checks))
			return err
		}
		checks = append(checks, healthCheck{Name: "config", Status: "ok"})

		checks = append(checks, timedCheck("store", func() (string, error) {
			return checkStore(cmd.Context(), cfg)
		}))

		timeout, _ := cmd.Flags().GetDuration("timeout")
		checks = append(checks, timedCheck("api", func() (string, error) {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			status, err := client.New(cfg.API.BaseURL, timeout).Health(ctx)
			if err != nil {
				return cfg.API.BaseURL, err
			}
			return fmt.Sprintf("%s (%s)", cfg.API.BaseURL, status.Status), nil
		}))

		var failed int
		for _, check := range checks {
			if check.Status != "ok" {
				failed++
				if logger != nil {
					logger.Debug("Health check failed", zap.String("check", check.Name), zap.String("detail", check.Detail))
				}
			}
		}

		if err := writeView(cmd, "health", healthView(checks)); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d health check(s) failed", failed)
		}
		return nil
	},
}

func checkStore(ctx context.Context, cfg *config.Config) (string, error) {
	db, err := openStore(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	stats, err := store.NewStats(db).Get(ctx)
	if err != nil {
		return db.Driver(), err
	}
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return db.Driver(), err
	}
	return fmt.Sprintf("%s, schema v%d, %d analyzed", db.Driver(), version, stats.AnalyzedCount), nil
}

func timedCheck(name string, run func() (string, error)) healthCheck {
	start := time.Now()
	detail, err := run()
	check := healthCheck{Name: name, Status: "ok", Detail: detail, Latency: time.Since(start).Round(time.Millisecond).String()}
	if err != nil {
		check.Status = "fail"
		check.Detail = err.Error()
	}
	return check
}

func healthView(checks []healthCheck) output.View {
	view := output.View{Title: "Health", Header: []string{"Check", "Status", "Detail", "Latency"}, Data: checks}
	for _, c := range checks {
		view.Rows = append(view.Rows, []string{c.Name, c.Status, c.Detail, c.Latency})
	}
	return view
}

func init() {
	healthCmd.Flags().Duration("timeout", 5*time.Second, "Timeout for the remote API check")
	addOutputFlags(healthCmd)
	rootCmd.AddCommand(healthCmd)
}
