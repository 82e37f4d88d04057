package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"phrasecron/internal/app"
	"phrasecron/internal/config"
	"phrasecron/internal/storage"
	logx "phrasecron/pkg/logx"
)

func newHistoryCommand(g *globalFlags) *cobra.Command {
	var (
		job   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewConfigManager(g.config).Parse()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cfg, logx.Nop())
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("no run journal configured (storage.driver is empty or none)")
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context(), storage.Filter{Job: job, Limit: limit})
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs, time.Now())
		},
	}
	cmd.Flags().StringVarP(&job, "job", "j", "", "only show runs of this job")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

func printRuns(w io.Writer, runs []storage.RunRecord, now time.Time) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tJOB\tSTATUS\tTOOK\tTRIES\tERROR")
	for _, r := range runs {
		started := r.Started.Local().Format(timeLayout) + " (" + humanize.RelTime(r.Started, now, "ago", "from now") + ")"
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			started, r.Job, r.Status, r.Duration.Round(time.Millisecond), r.Attempts, r.Error)
	}
	return tw.Flush()
}
