package check

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chronostore/chronostore/internal/command"
	"github.com/chronostore/chronostore/internal/conf"
	"github.com/chronostore/chronostore/internal/recordstore"
)

// Command creates the check subcommand, which verifies the backing store is
// reachable and healthy.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the health of the backing store",
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

			result := store.Check(ctx)
			if err := command.PrintJSON(result); err != nil {
				return err
			}
			if result.Status != recordstore.HealthOK {
				return fmt.Errorf("store health check failed")
			}
			return nil
		},
	}
}
