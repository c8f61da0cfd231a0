package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"erpcounter/internal/bootstrap"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|version]",
	Short:     "Apply, roll back or inspect the database schema",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"up", "down", "version"},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	direction := "up"
	if len(args) == 1 {
		direction = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	switch direction {
	case "up", "down":
		return bootstrap.Migrate(cfg, log, direction == "up")
	case "version":
		version, dirty, err := bootstrap.SchemaVersion(cfg, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migration direction %q (expected up, down or version)", direction)
	}
}
