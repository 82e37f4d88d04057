package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	logx "phrasecron/pkg/logx"
)

type globalFlags struct {
	logLevel string
	config   string
}

func (g *globalFlags) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&g.logLevel, "log-level", "warn", "console log level for one-shot commands (trace, debug, info, warn, error)")
	fs.StringVarP(&g.config, "config", "c", "./phrasecron.yaml", "path to the config file (JSON or YAML)")
}

func (g *globalFlags) logger() logx.Logger {
	return logx.NewConsole(g.logLevel)
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "phrasecron",
		Short:         "Run jobs on plain English schedules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	g.addFlags(root.PersistentFlags())

	root.AddCommand(
		newNextCommand(),
		newWatchCommand(g),
		newRunCommand(g),
		newCheckCommand(g),
		newHistoryCommand(g),
	)
	return root
}
