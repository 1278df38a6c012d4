package main

import (
	"github.com/spf13/cobra"

	"github.com/alvarorichard/9anime-dl/internal/version"
)

func newRootCommand() *cobra.Command {
	var opts runOptions
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:           "9anime-dl <show-url>",
		Short:         "Download a range of episodes from a 9anime show page",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				version.ShowVersion(cmd.OutOrStdout())
				return nil
			}
			opts.url = args[0]
			return run(cmd.Context(), opts)
		},
	}

	rootCmd.Flags().BoolVar(&opts.dub, "dub", false, "Download the dubbed version")
	rootCmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging and stage timings")
	rootCmd.Flags().StringVarP(&opts.configDir, "config", "c", "", "Directory containing config.yaml")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version information")

	return rootCmd
}
