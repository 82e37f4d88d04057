package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"phrasecron/internal/config"
	"phrasecron/internal/jobs"
	"phrasecron/internal/task/invoker"
	logx "phrasecron/pkg/logx"
	"phrasecron/pkg/unitctl"
)

type watchFlags struct {
	shell       bool
	maxRuns     int
	stopOnError bool
	minSpacing  time.Duration
	timeout     time.Duration
}

func newWatchCommand(g *globalFlags) *cobra.Command {
	var f watchFlags
	cmd := &cobra.Command{
		Use:   "watch PHRASE... -- COMMAND [ARG...]",
		Short: "Run a command at every instant of a phrase, in the foreground",
		Long: `Run COMMAND at every instant PHRASE resolves to, one run at a time.

Instants missed while a run was still going are skipped. The loop ends on
SIGINT/SIGTERM, after --max-runs runs, or on the first failure with
--stop-on-error.`,
		Example: `  phrasecron watch every 5 minutes -- /usr/local/bin/sync --quiet
  phrasecron watch --shell everyday at 02:00 -- 'tar czf /backup/home.tgz /home'`,
		Args: func(cmd *cobra.Command, args []string) error {
			dash := cmd.ArgsLenAtDash()
			if dash < 1 || dash >= len(args) {
				return errors.New("usage: phrasecron watch PHRASE... -- COMMAND [ARG...]")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dash := cmd.ArgsLenAtDash()
			phr := strings.Join(args[:dash], " ")
			job := watchJob(phr, args[dash:], f.shell)

			log := g.logger()
			action, err := jobs.NewBuilder(log, unitctl.New()).Build(job)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, log, phr, action, f)
		},
	}
	cmd.Flags().BoolVar(&f.shell, "shell", false, "join COMMAND and run it with /bin/sh -c")
	cmd.Flags().IntVar(&f.maxRuns, "max-runs", 0, "stop after this many runs (0 = unlimited)")
	cmd.Flags().BoolVar(&f.stopOnError, "stop-on-error", false, "stop at the first failed run")
	cmd.Flags().DurationVar(&f.minSpacing, "min-spacing", invoker.DefaultMinSpacing, "minimum time between two runs")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-run timeout (0 = none)")
	return cmd
}

func watchJob(phr string, command []string, shell bool) config.JobConfig {
	j := config.JobConfig{Name: "watch", Schedule: phr}
	if shell {
		j.Command = config.Command{Shell: strings.Join(command, " ")}
	} else {
		j.Command = config.Command{Args: command}
	}
	return j
}

func runWatch(ctx context.Context, log logx.Logger, phr string, action jobs.Action, f watchFlags) error {
	fn := func(ctx context.Context, at time.Time) error {
		if f.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.timeout)
			defer cancel()
		}
		log.Info("run", logx.Time("scheduled", at))
		return action(ctx)
	}
	iv, err := invoker.New(phr, fn,
		invoker.WithStrategy(invoker.Blocking),
		invoker.WithMinSpacing(f.minSpacing),
		invoker.WithStopOnError(f.stopOnError),
		invoker.WithMaxRuns(f.maxRuns),
		invoker.WithLogger(log),
	)
	if err != nil {
		return err
	}
	_, err = iv.Invoke(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("watch %q: %w", phr, err)
	}
	return nil
}
