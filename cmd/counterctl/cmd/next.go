package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"erpcounter/internal/bootstrap"
	"erpcounter/internal/config"
	corecounter "erpcounter/internal/core/counter"
	"erpcounter/internal/domain/counter"
)

var nextCmd = &cobra.Command{
	Use:   "next SEQUENCE_CODE",
	Short: "Issue the next number of a counter",
	Args:  cobra.ExactArgs(1),
	RunE:  runNext,
}

func init() {
	rootCmd.AddCommand(nextCmd)
	nextCmd.Flags().String("site", "", "site code (SITE-level definitions)")
	nextCmd.Flags().String("date", "", "reference date, YYYY-MM-DD (default: today)")
	nextCmd.Flags().String("complement", "", "complement value")
	nextCmd.Flags().IntP("count", "n", 1, "number of values to issue")
	nextCmd.Flags().String("idempotency-key", "", "replay the number issued earlier under this key (requires --count 1)")
}

func runNext(cmd *cobra.Command, args []string) error {
	req := counter.Request{SequenceCode: args[0]}
	req.Site, _ = cmd.Flags().GetString("site")
	req.Complement, _ = cmd.Flags().GetString("complement")
	count, _ := cmd.Flags().GetInt("count")
	if count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	key, _ := cmd.Flags().GetString("idempotency-key")
	if key != "" && count > 1 {
		return fmt.Errorf("--idempotency-key issues a single number")
	}

	if raw, _ := cmd.Flags().GetString("date"); raw != "" {
		date, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		req.ReferenceDate = date
	}

	return withBackend(cmd.Context(), func(ctx context.Context, b *bootstrap.Backend, cfg *config.Config) error {
		svc := counter.NewService(b.Definitions, b.Sequences, b.ServiceOptions()...)
		for i := 0; i < count; i++ {
			value, err := corecounter.Retry(ctx, cfg.Counter.RetryPolicy(), func(ctx context.Context) (string, error) {
				v, _, err := svc.GetNextCounterIdempotent(ctx, key, req)
				return v, err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
		}
		return nil
	})
}
