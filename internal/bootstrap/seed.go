package bootstrap

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"erpcounter/internal/core/counter"
	"erpcounter/internal/core/tx"
	"erpcounter/pkg/logger"
)

// seedComponent and seedDefinition mirror the YAML seed file, where enum
// values are written by name (e.g. "sequence_number", "annual").
type seedComponent struct {
	Type     string `mapstructure:"type"`
	Length   int    `mapstructure:"length"`
	Constant string `mapstructure:"constant"`
}

type seedDefinition struct {
	SequenceCode         string          `mapstructure:"sequence_code"`
	Description          string          `mapstructure:"description"`
	ResetPolicy          string          `mapstructure:"reset_policy"`
	DefinitionLevel      string          `mapstructure:"definition_level"`
	SequenceType         string          `mapstructure:"sequence_type"`
	ChronologicalControl int             `mapstructure:"chronological_control"`
	NumberOfComponents   int             `mapstructure:"number_of_components"`
	Components           []seedComponent `mapstructure:"components"`
	// InitialValue, when set, is written to the folder-level counter
	// (migration of legacy numbering).
	InitialValue *int64 `mapstructure:"initial_value"`
}

// SeedEntry is one parsed definition with its optional starting value.
type SeedEntry struct {
	Definition   counter.Definition
	InitialValue *int64
}

// LoadSeedFile reads counter definitions from a YAML/JSON/TOML file.
func LoadSeedFile(path string) ([]SeedEntry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var raw []seedDefinition
	if err := v.UnmarshalKey("definitions", &raw); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	entries := make([]SeedEntry, 0, len(raw))
	for i, r := range raw {
		def, err := r.toDefinition()
		if err != nil {
			return nil, fmt.Errorf("definition #%d (%s): %w", i+1, r.SequenceCode, err)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("definition #%d (%s): %w", i+1, r.SequenceCode, err)
		}
		entries = append(entries, SeedEntry{Definition: def, InitialValue: r.InitialValue})
	}
	return entries, nil
}

func (r seedDefinition) toDefinition() (counter.Definition, error) {
	def := counter.Definition{
		SequenceCode:         r.SequenceCode,
		Description:          r.Description,
		NumberOfComponents:   r.NumberOfComponents,
		ChronologicalControl: r.ChronologicalControl,
		ResetPolicy:          counter.ResetNever,
		DefinitionLevel:      counter.LevelFolder,
		SequenceType:         counter.SequenceAlphanumeric,
	}

	var err error
	if r.ResetPolicy != "" {
		if def.ResetPolicy, err = counter.ParseResetPolicy(r.ResetPolicy); err != nil {
			return def, err
		}
	}
	if r.DefinitionLevel != "" {
		if def.DefinitionLevel, err = counter.ParseDefinitionLevel(r.DefinitionLevel); err != nil {
			return def, err
		}
	}
	if r.SequenceType != "" {
		if def.SequenceType, err = counter.ParseSequenceType(r.SequenceType); err != nil {
			return def, err
		}
	}

	def.Components = make([]counter.Component, 0, len(r.Components))
	for _, c := range r.Components {
		ct, err := counter.ParseComponentType(c.Type)
		if err != nil {
			return def, err
		}
		def.Components = append(def.Components, counter.Component{Type: ct, Length: c.Length, Constant: c.Constant})
	}
	if def.NumberOfComponents == 0 {
		def.NumberOfComponents = len(def.Components)
	}
	return def, nil
}

// Seed saves every entry and applies initial values in one transaction, so a
// bad entry leaves the store unchanged. Existing definitions are replaced;
// counters without an initial value are left untouched.
func Seed(ctx context.Context, txm tx.Manager, defs counter.DefinitionWriter, admin counter.Admin, entries []SeedEntry) error {
	log := logger.FromContext(ctx).WithComponent("seed")
	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, e := range entries {
			if err := defs.SaveDefinition(ctx, e.Definition); err != nil {
				return fmt.Errorf("save %s: %w", e.Definition.SequenceCode, err)
			}
			if e.InitialValue != nil {
				key := counter.Key{SequenceCode: e.Definition.SequenceCode}
				if err := admin.SetValue(ctx, key, *e.InitialValue); err != nil {
					return fmt.Errorf("set initial value of %s: %w", e.Definition.SequenceCode, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, e := range entries {
		log.Infow("counter definition seeded",
			"sequence_code", e.Definition.SequenceCode,
			"components", len(e.Definition.Components),
		)
	}
	return nil
}
