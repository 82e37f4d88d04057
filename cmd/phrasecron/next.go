package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"phrasecron/internal/task/scheduler"
	"phrasecron/pkg/phrase"
)

const timeLayout = "2006-01-02 15:04:05 Mon"

func newNextCommand() *cobra.Command {
	var (
		nowFlag string
		count   int
	)
	cmd := &cobra.Command{
		Use:   "next SCHEDULE...",
		Short: "Print the next instants of a schedule",
		Long: `Print the next instants of a schedule strictly after now.

SCHEDULE is a phrase ("every friday at 17:00"), a cron expression
("cron:0 2 * * *") or an interval ("every:15m"). Words are joined with
spaces, so quoting is optional.`,
		Example: `  phrasecron next every monday at 09:00
  phrasecron next -n 3 --now 2024-02-01T00:00:00Z on the last day of the month at 23:00`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if nowFlag != "" {
				t, err := time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				now = t
			}
			return printNext(cmd.OutOrStdout(), strings.Join(args, " "), now, count)
		},
	}
	cmd.Flags().StringVar(&nowFlag, "now", "", "reference instant in RFC3339 (default: current time)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of instants to print")
	return cmd
}

func printNext(w io.Writer, raw string, now time.Time, n int) error {
	if n <= 0 {
		n = 1
	}
	spec, err := scheduler.ParseSchedule(raw)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	times, err := scheduler.Upcoming(phrase.Default(), spec, now, n)
	if err != nil {
		return err
	}
	for _, t := range times {
		fmt.Fprintf(w, "%s  (%s)\n", t.Format(timeLayout), humanize.RelTime(t, now, "ago", "from now"))
	}
	return nil
}
