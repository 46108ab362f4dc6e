package cli

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var validateScheduleCount int

// newValidateScheduleCommand validates the cron/systemd-timer expression an
// operator plans to wrap this binary with and prints its next fire times.
// It never drives a scheduler itself — spec.md explicitly forbids a
// continuous daemon.
func newValidateScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-schedule <cron-expression>",
		Short: "validate an external cron expression and print its next fire times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateSchedule(args[0])
		},
	}
	cmd.Flags().IntVar(&validateScheduleCount, "count", 5, "number of upcoming fire times to print")
	return cmd
}

func runValidateSchedule(expr string) error {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	next := time.Now()
	for i := 0; i < validateScheduleCount; i++ {
		next = schedule.Next(next)
		fmt.Println(next.Format(time.RFC3339))
	}
	return nil
}
