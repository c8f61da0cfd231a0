package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"erpcounter/internal/bootstrap"
	"erpcounter/internal/config"
)

var setCmd = &cobra.Command{
	Use:   "set SEQUENCE_CODE VALUE",
	Short: "Overwrite the current value of a counter; the next number is VALUE+1",
	Args:  cobra.ExactArgs(2),
	RunE:  runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
	addKeyFlags(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}

	return withBackend(cmd.Context(), func(ctx context.Context, b *bootstrap.Backend, _ *config.Config) error {
		def, err := b.Definitions.Lookup(ctx, args[0])
		if err != nil {
			return err
		}
		key, err := keyFromFlags(cmd, def)
		if err != nil {
			return err
		}
		if err := b.Admin.SetValue(ctx, key, value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s set to %d\n", key, value)
		return nil
	})
}
