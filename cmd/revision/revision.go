package revision

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chronostore/chronostore/internal/command"
	"github.com/chronostore/chronostore/internal/conf"
	"github.com/chronostore/chronostore/internal/recordstore"
)

// Command creates the revision subcommand, which prints the store's current
// revision and can roll a collection back to an earlier one.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revision",
		Short: "Print the last issued revision of the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := command.OpenStore(ctx, settings)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					fmt.Printf("warning: closing store: %v\n", err)
				}
			}()

			current, err := store.CurrentRevision(ctx)
			if err != nil {
				return err
			}
			fmt.Println(current)
			return nil
		},
	}

	cmd.AddCommand(rollbackCommand(settings))
	return cmd
}

// rollbackCommand rolls a versioned collection back to the state it had at a
// target revision.
func rollbackCommand(settings *conf.Settings) *cobra.Command {
	var (
		filters []string
		actor   string
	)

	cmd := &cobra.Command{
		Use:   "rollback [collection] [revision]",
		Short: "Restore a collection to its state at an earlier revision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var target int64
			if _, err := fmt.Sscanf(args[1], "%d", &target); err != nil {
				return fmt.Errorf("revision must be a number, got %q", args[1])
			}

			collection, closeStore, err := command.OpenCollection(ctx, settings, args[0])
			if err != nil {
				return err
			}
			defer closeStore()

			pred, err := command.ParseFilters(collection, filters)
			if err != nil {
				return err
			}
			if actor != "" {
				ctx = recordstore.WithActor(ctx, actor)
			}
			changed, err := collection.RollbackTo(ctx, target, pred)
			if err != nil {
				return err
			}
			fmt.Printf("%d record(s) changed\n", changed)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Restrict the rollback to matching records")
	cmd.Flags().StringVarP(&actor, "actor", "a", "", "Acting user recorded in the audit trail")
	return cmd
}
