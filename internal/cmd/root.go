package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lingualens/lingualens/internal/appid"
	"github.com/lingualens/lingualens/internal/config"
	"github.com/lingualens/lingualens/internal/observability"
)

var (
	cfgFile  string
	verbose  bool
	logLevel string

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   appid.Get().BinaryName,
	Short: appid.Get().Description,
	Long: fmt.Sprintf(`%s - %s

Every API call goes through a local response cache and a per-policy
sliding-window rate limiter before it reaches the remote service.`, appid.Get().BinaryName, appid.Get().Description),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Keep global telemetry quiet for CLI runs; serve installs the real system.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is %s)", config.DefaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
}

func initConfig() {
	observability.InitCLILogger(appid.Get().BinaryName, verbose, logLevel)
	config.SetConfigFile(cfgFile)

	if cfgFile != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", cfgFile))
	}
}

// loadConfig reads configuration for commands that need it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, &configError{err: err}
	}
	return cfg, nil
}

type configError struct {
	err error
}

func (e *configError) Error() string { return "load config: " + e.err.Error() }
func (e *configError) Unwrap() error { return e.err }
