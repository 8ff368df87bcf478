package history

import (
	"github.com/spf13/cobra"

	"github.com/chronostore/chronostore/internal/command"
	"github.com/chronostore/chronostore/internal/conf"
)

// Command creates the history subcommand, which prints the full version
// history of records in a versioned collection.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		filters []string
		last    bool
	)

	cmd := &cobra.Command{
		Use:   "history [collection]",
		Short: "Print the version history of a collection",
		Long:  "Print every version of the matching records, most recently closed first and live versions last. With --last only the most recently created version is printed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			collection, closeStore, err := command.OpenCollection(ctx, settings, args[0])
			if err != nil {
				return err
			}
			defer closeStore()

			pred, err := command.ParseFilters(collection, filters)
			if err != nil {
				return err
			}
			if last {
				record, err := collection.GetLast(ctx, pred)
				if err != nil {
					return err
				}
				return command.PrintJSON(record)
			}
			records, err := collection.GetHistory(ctx, pred)
			if err != nil {
				return err
			}
			return command.PrintJSON(records)
		},
	}

	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Filter expression field=value, repeatable")
	cmd.Flags().BoolVarP(&last, "last", "l", false, "Print only the most recently created version")
	return cmd
}
