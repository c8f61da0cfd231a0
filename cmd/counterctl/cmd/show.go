package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"erpcounter/internal/bootstrap"
	"erpcounter/internal/config"
	corecounter "erpcounter/internal/core/counter"
)

var showCmd = &cobra.Command{
	Use:   "show [SEQUENCE_CODE]",
	Short: "Show a counter definition and its current value, or list all codes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
	addKeyFlags(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	return withBackend(cmd.Context(), func(ctx context.Context, b *bootstrap.Backend, _ *config.Config) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			codes, err := b.Repository.ListCodes(ctx)
			if err != nil {
				return err
			}
			for _, code := range codes {
				fmt.Fprintln(out, code)
			}
			return nil
		}

		def, err := b.Definitions.Lookup(ctx, args[0])
		if err != nil {
			return err
		}
		key, err := keyFromFlags(cmd, def)
		if err != nil {
			return err
		}
		value, err := b.Admin.CurrentValue(ctx, key)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
		fmt.Fprintf(w, "sequence code:\t%s\n", def.SequenceCode)
		if def.Description != "" {
			fmt.Fprintf(w, "description:\t%s\n", def.Description)
		}
		fmt.Fprintf(w, "reset policy:\t%s\n", def.ResetPolicy)
		fmt.Fprintf(w, "level:\t%s\n", def.DefinitionLevel)
		fmt.Fprintf(w, "type:\t%s\n", def.SequenceType)
		fmt.Fprintf(w, "components:\t%d of %d rendered\n", def.NumberOfComponents, len(def.Components))
		for i, c := range def.Components {
			fmt.Fprintf(w, "  %d.\t%s\tlength=%d\t%s\n", i+1, c.Type, c.Length, c.Constant)
		}
		fmt.Fprintf(w, "counter key:\t%s\n", key)
		fmt.Fprintf(w, "current value:\t%d\n", value)
		return w.Flush()
	})
}

func addKeyFlags(cmd *cobra.Command) {
	cmd.Flags().String("site", "", "site code (SITE-level definitions)")
	cmd.Flags().String("date", "", "reference date selecting the reset window, YYYY-MM-DD (default: today)")
	cmd.Flags().String("complement", "", "complement value")
}

// keyFromFlags derives the counter key the same way number issuing does.
func keyFromFlags(cmd *cobra.Command, def corecounter.Definition) (corecounter.Key, error) {
	site, _ := cmd.Flags().GetString("site")
	complement, _ := cmd.Flags().GetString("complement")
	if def.SuppressesComplement() {
		complement = ""
	}

	date := time.Now()
	if raw, _ := cmd.Flags().GetString("date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return corecounter.Key{}, fmt.Errorf("invalid --date: %w", err)
		}
		date = d
	}

	return corecounter.Key{
		SequenceCode: def.SequenceCode,
		Scope:        corecounter.ResolveScope(def.DefinitionLevel, site),
		Period:       corecounter.ResolvePeriod(def.ResetPolicy, date),
		Complement:   complement,
	}, nil
}
