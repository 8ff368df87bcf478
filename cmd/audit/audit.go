package audit

import (
	"github.com/spf13/cobra"

	"github.com/chronostore/chronostore/internal/command"
	"github.com/chronostore/chronostore/internal/conf"
)

// Command creates the audit subcommand, which prints the audit trail of a
// collection ordered by revision.
func Command(settings *conf.Settings) *cobra.Command {
	var filters []string

	cmd := &cobra.Command{
		Use:   "audit [collection]",
		Short: "Print the audit trail of a collection",
		Long:  "Print the audit entries of a collection, oldest first. Use --filter to narrow by audit fields, e.g. --filter audit_user=alice or --filter revision=>=10.",
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
			entries, err := collection.GetAudit(ctx, pred)
			if err != nil {
				return err
			}
			return command.PrintJSON(entries)
		},
	}

	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Filter expression field=value, repeatable")
	return cmd
}
