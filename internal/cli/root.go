package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/cadence/internal/config"
)

// Set at build time with -ldflags "-X github.com/watzon/cadence/internal/cli.version=...".
var version = "0.1.0-dev"

var (
	cfgFile  string
	dbPath   string
	verbose  bool
	logLevel string

	// cfg is the effective configuration, loaded before every command.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Policy-driven schedule evaluation",
	Long: `Cadence decides whether a scheduled job may fire right now.

Each schedule (one-time, interval or calendar) is judged against a policy
overlay of blackout dates, excluded weekdays, allowed time windows, cooldowns
and per-window limits. Every decision carries the reason it was blocked and
when the schedule is next eligible.

Evaluate a document offline:
  cadence evaluate -f request.yaml

Load schedules and start the runner:
  cadence schedules import schedules.yaml
  cadence run`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.Database.Path = dbPath
		}
		cfg = loaded

		setupLogging(cmd.ErrOrStderr(), cfg.Logging)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cadence.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "database", "", "database path (overrides database.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// setupLogging configures the global zerolog logger from the logging section.
// --verbose and --log-level take precedence over the file.
func setupLogging(out io.Writer, lc config.LoggingConfig) {
	level := lc.Level
	if logLevel != "" {
		level = logLevel
	}
	if verbose {
		level = "debug"
	}

	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	var w io.Writer = out
	if lc.Format != "json" {
		w = zerolog.ConsoleWriter{Out: out, NoColor: out != os.Stderr}
	}

	logCtx := zerolog.New(w).With()
	if lc.Timestamp {
		logCtx = logCtx.Timestamp()
	}
	if lc.Caller {
		logCtx = logCtx.Caller()
	}
	log.Logger = logCtx.Logger()
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// Version returns the version string.
func Version() string {
	return fmt.Sprintf("cadence version %s", version)
}
