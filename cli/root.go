package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mijorus/collector/cli/helpers"
	"github.com/mijorus/collector/pkg/config"
)

const defaultConfigFile = "collector.yaml"

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "collector",
		Short: "Collect dropped files, text and links into a scratch window",
		Long: `collector gathers files, text snippets, links and images into a per-window
scratch directory, resolves image links, renders thumbnails and can export
the whole collection at once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return reportError(cmd, SetupGlobalConfig(cmd))
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if m := config.ManagerFromContext(cmd.Context()); m != nil {
				return m.Close(cmd.Context())
			}
			return nil
		},
	}

	addGlobalFlags(root.PersistentFlags())
	root.MarkFlagsMutuallyExclusive("download", "no-download")
	root.AddCommand(
		DropCmd(),
		PasteCmd(),
		ConfigCmd(),
		VersionCmd(),
	)

	return root
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.String("config", defaultConfigFile, "Path to the configuration file")
	flags.String("env-file", ".env", "Path to an environment file loaded before configuration")
	flags.String("cache-dir", "", "Directory holding the window scratch folders")
	flags.Int("window", 0, "Window number; its scratch folder is purged on open")
	flags.String("export", "", "Copy every collected item into this directory")
	flags.Bool("keep", false, "Keep the scratch folder after exporting")
	flags.StringP("format", "f", "auto", "Output format (table, json, auto)")

	flags.Bool("collect-text", false, "Aggregate plain text drops into a CSV file")
	flags.Bool("download", true, "Download images behind dropped links")
	flags.Bool("no-download", false, "Never download images behind dropped links")
	flags.Bool("google-images", false, "Unwrap Google Images result links")
	flags.String("size-display", "", "Size display (total, per-item, hidden)")

	flags.String("log-level", "info", "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Log in JSON format")
	flags.Bool("log-source", false, "Include the source location in log lines")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := RootCmd().Execute(); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			helpers.OutputError(os.Stderr, err, helpers.ModeTable, false)
		}
		return 1
	}
	return 0
}
