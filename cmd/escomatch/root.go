package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/config"
	logpkg "github.com/kailas-cloud/escomatch/internal/logger"
	"github.com/kailas-cloud/escomatch/internal/metrics"
	"github.com/kailas-cloud/escomatch/internal/version"
)

const app = "escomatch"

// cli is the state shared by all subcommands once the root pre-run has loaded it.
type cli struct {
	v      *viper.Viper
	env    string
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           app,
		Short:         "escomatch maps job postings to ESCO occupations and ISCO-08 codes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.init()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("env", "", "environment name, selects config/{env}.yaml (default $ENV or local)")
	flags.String("config-dir", "", "directory holding the {env}.yaml config files")
	flags.String("log-level", "", "log level override: debug, info, warn, error")
	flags.String("log-format", "", "log format override: json, console")

	c.v.SetEnvPrefix(app)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	for _, name := range []string{"env", "config-dir", "log-level", "log-format"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newBuildIndexCmd(c),
		newValidateCmd(c),
		newMatchCmd(c),
		newGoldCmd(c),
		newServeCmd(c),
		newVersionCmd(),
	)
	return root
}

// init loads configuration and builds the logger. Every command except
// version runs it exactly once.
func (c *cli) init() error {
	c.env = c.v.GetString("env")
	if c.env == "" {
		c.env = config.GetEnv()
	}

	cfg, err := config.LoadFrom(c.v.GetString("config-dir"), c.env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg

	level := c.v.GetString("log-level")
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logpkg.NewLogger(c.env, logpkg.Options{Level: level, Format: c.v.GetString("log-format")})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	c.logger = logger

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterMatchingMetrics()

	logger.Debug("Configuration loaded",
		zap.String("version", version.Version),
		zap.String("env", c.env),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Bool("warehouse", cfg.Warehouse.Enabled()),
	)
	return nil
}
