package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var (
		dbDriver string
		dbDSN    string
		logLevel string
	)

	ctx := newCommandContext(&dbDriver, &dbDSN, &logLevel)

	rootCmd := &cobra.Command{
		Use:           "imagectl",
		Short:         "Store and inspect image notes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "Database driver (sqlite or postgres); overrides PIXELNOTE_DB_DRIVER")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "", "Database path or DSN; overrides PIXELNOTE_DB_DSN")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr")

	rootCmd.AddCommand(newSaveCommand(ctx))
	rootCmd.AddCommand(newUpdateCommand(ctx))
	rootCmd.AddCommand(newRevisionsCommand(ctx))
	rootCmd.AddCommand(newOriginalsCommand(ctx))
	rootCmd.AddCommand(newOptionCommand(ctx))
	rootCmd.AddCommand(newKeygenCommand())

	return rootCmd
}
