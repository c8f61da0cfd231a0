package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"erpcounter/internal/bootstrap"
	"erpcounter/internal/config"
)

var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Load counter definitions from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().Bool("dry-run", false, "validate the file without writing")
}

func runSeed(cmd *cobra.Command, args []string) error {
	entries, err := bootstrap.LoadSeedFile(args[0])
	if err != nil {
		return err
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "%d definitions are valid\n", len(entries))
		return nil
	}

	return withBackend(cmd.Context(), func(ctx context.Context, b *bootstrap.Backend, _ *config.Config) error {
		if err := bootstrap.Seed(ctx, b.Tx, b.Definitions, b.Admin, entries); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d definitions\n", len(entries))
		return nil
	})
}
