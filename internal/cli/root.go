// Package cli wires the single-subcommand `update` tool described in
// spec.md §6, following the cobra/viper init pattern of cmd/nosctl/main.go:
// persistent flags bound through viper, a package-level zerolog logger
// configured from -v, and a thin main that just calls Execute.
package cli

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	verbose bool
	force   bool
)

// NewRootCommand builds the root command tree: update and validate-schedule.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "snapvault",
		Short: "differential filesystem snapshot backup planner",
		Long: `snapvault maintains a tree of differential filesystem snapshots in
object storage: it creates new read-only snapshots, uploads them as full or
incremental backup streams, enforces a time-bucketed retention schedule, and
reclaims snapshots and objects no longer required by that schedule.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	_ = viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(newUpdateCommand())
	root.AddCommand(newValidateScheduleCommand())

	return root
}

func initConfig() {
	viper.SetEnvPrefix("SNAPVAULT")
	viper.AutomaticEnv()
}

// logger returns a console-writer logger when attached to a TTY and a
// plain JSON logger otherwise, matching the level to -v.
func logger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	var out zerolog.ConsoleWriter
	var base zerolog.Logger
	if isatty.IsTerminal(os.Stderr.Fd()) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		base = zerolog.New(out)
	} else {
		base = zerolog.New(os.Stderr)
	}
	return base.Level(level).With().Timestamp().Logger()
}
