package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chronostore/chronostore/cmd/audit"
	"github.com/chronostore/chronostore/cmd/check"
	"github.com/chronostore/chronostore/cmd/history"
	"github.com/chronostore/chronostore/cmd/revision"
	"github.com/chronostore/chronostore/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chronostore",
		Short: "Chronostore CLI",
		Long:  "Inspect and maintain a chronostore database: audit trails, version history, revisions and store health.",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		audit.Command(settings),
		history.Command(settings),
		revision.Command(settings),
		check.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines global flags for the root command and binds them to the
// configuration so command-line arguments take precedence over file and
// environment settings.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&settings.Main.Schema, "schema", "s", settings.Main.Schema, "Path to the collection schema file")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		cobra.CheckErr(err)
	}
}
