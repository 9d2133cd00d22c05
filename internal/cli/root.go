package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/leozhang/finsight/internal/config"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "finsight",
	Short: "Finsight - A-share stock and fund analysis toolkit",
	Long: `Finsight runs LLM-backed analysis tools over A-share stocks and funds.
It dispatches one-shot analyses, plans multi-step research from a goal, and
serves a WebSocket gateway with scheduled recurring runs.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.finsight/finsight.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// initLogging points the global logger at stderr so command output on
// stdout stays clean. serve replaces it with the configured file logger.
func initLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// loadConfig loads the effective configuration for the current flags.
// A missing config file yields the documented defaults.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// effectiveLogLevel prefers an explicit --log-level flag over the
// configured level.
func effectiveLogLevel(cfg *config.Config) string {
	if rootCmd.PersistentFlags().Changed("log-level") {
		return logLevel
	}
	if cfg.Logging.Level != "" {
		return cfg.Logging.Level
	}
	return logLevel
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
