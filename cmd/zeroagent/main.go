package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/presenter"
)

func init() {
	viper.SetEnvPrefix("ZEROAGENT")
	viper.AutomaticEnv()

	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.zeroagent")
	viper.AddConfigPath(".")

	// the config file is optional
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "zeroagent",
	Short: "ZeroAgent runs installable skills on demand, on a schedule or on a trigger",
	Long: `ZeroAgent is a local agent that installs skills from the marketplace, git hosts,
npm or a URL, and runs them on demand, on a cron schedule, or whenever a watched
condition becomes true.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			return err
		}
		logger.SetLogFormat(viper.GetString("log_format"))

		shutdown, err := initTracing(cmd.Context())
		if err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("failed to initialize tracing")
			return nil
		}
		flushTraces = shutdown
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().String("home", "", "Agent home directory (default $HOME/.zeroagent)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text or json)")

	viper.BindPFlag("home", rootCmd.PersistentFlags().Lookup("home"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(
		withTracing(startCmd),
		withTracing(installCmd),
		withTracing(runCmd),
		listCmd,
		findCmd,
		withTracing(removeCmd),
		statusCmd,
		withTracing(scheduleCmd),
		withTracing(triggerCmd),
		tierCmd,
		upgradeCmd,
		renameCmd,
		whoamiCmd,
		historyCmd,
		schemaCmd,
		versionCmd,
	)

	ctx := context.Background()
	err := rootCmd.ExecuteContext(ctx)
	if flushTraces != nil {
		if serr := flushTraces(ctx); serr != nil {
			logger.G(ctx).WithError(serr).Warn("failed to flush traces")
		}
	}
	if err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}
