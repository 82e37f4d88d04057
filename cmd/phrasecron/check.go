package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"phrasecron/internal/config"
	"phrasecron/internal/task/scheduler"
	"phrasecron/pkg/phrase"
)

func newCheckCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate a config file and preview each job",
		Long: `Decode and validate the config file, reporting every problem with its
field path, then list each job with its next run. Exits 2 when the config
is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewConfigManager(g.config).Parse()
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			if err := config.Validate(cfg); err != nil {
				return &exitError{code: 2, err: fmt.Errorf("invalid config %s:\n%w", g.config, err)}
			}
			return printJobs(cmd.OutOrStdout(), cfg, time.Now())
		},
	}
}

func printJobs(w io.Writer, cfg *config.Config, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSCHEDULE\tACTION\tNEXT")
	for _, j := range cfg.Jobs {
		next := "disabled"
		spec, err := scheduler.ParseSchedule(j.Schedule)
		if err != nil {
			return err
		}
		if j.IsEnabled() {
			times, err := scheduler.Upcoming(phrase.Default(), spec, now, 1)
			switch {
			case err != nil:
				next = "error: " + err.Error()
			case len(times) == 0:
				next = "never"
			default:
				next = times[0].Format(timeLayout) + " (" + humanize.RelTime(times[0], now, "ago", "from now") + ")"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.Name, spec.Kind, spec.String(), jobAction(j), next)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !cfg.Scheduler.Enabled {
		fmt.Fprintln(w, "\nnote: scheduler.enabled is false; no job will fire")
	}
	return nil
}

func jobAction(j config.JobConfig) string {
	if j.Unit != nil {
		return j.Unit.Action + " " + j.Unit.Name
	}
	return j.Command.String()
}
