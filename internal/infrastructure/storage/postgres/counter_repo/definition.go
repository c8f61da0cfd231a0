package counter_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"erpcounter/internal/core/apperror"
	"erpcounter/internal/core/counter"
	"erpcounter/internal/infrastructure/storage/postgres"
)

const (
	definitionTable = "counter_definitions"
	componentTable  = "counter_definition_components"
)

var definitionCols = []string{
	"sequence_code",
	"description",
	"number_of_components",
	"reset_policy",
	"definition_level",
	"sequence_type",
	"chronological_control",
}

type definitionRow struct {
	SequenceCode         string `db:"sequence_code"`
	Description          string `db:"description"`
	NumberOfComponents   int    `db:"number_of_components"`
	ResetPolicy          int    `db:"reset_policy"`
	DefinitionLevel      int    `db:"definition_level"`
	SequenceType         int    `db:"sequence_type"`
	ChronologicalControl int    `db:"chronological_control"`
}

type componentRow struct {
	Position        int    `db:"position"`
	ComponentType   int    `db:"component_type"`
	ComponentLength int    `db:"component_length"`
	ConstantValue   string `db:"constant_value"`
}

func (row definitionRow) toDefinition(components []componentRow) counter.Definition {
	def := counter.Definition{
		SequenceCode:         row.SequenceCode,
		Description:          row.Description,
		NumberOfComponents:   row.NumberOfComponents,
		ResetPolicy:          counter.ResetPolicy(row.ResetPolicy),
		DefinitionLevel:      counter.DefinitionLevel(row.DefinitionLevel),
		SequenceType:         counter.SequenceType(row.SequenceType),
		ChronologicalControl: row.ChronologicalControl,
		Components:           make([]counter.Component, 0, len(components)),
	}
	for _, c := range components {
		def.Components = append(def.Components, counter.Component{
			Type:     counter.ComponentType(c.ComponentType),
			Length:   c.ComponentLength,
			Constant: c.ConstantValue,
		})
	}
	return def
}

// DefinitionRepo implements counter.DefinitionStore and counter.DefinitionWriter.
type DefinitionRepo struct {
	txm *postgres.TxManager
}

// Ensure compile-time interface compliance.
var (
	_ counter.DefinitionStore  = (*DefinitionRepo)(nil)
	_ counter.DefinitionWriter = (*DefinitionRepo)(nil)
)

// NewDefinitionRepo creates a definition repository.
func NewDefinitionRepo(txm *postgres.TxManager) *DefinitionRepo {
	return &DefinitionRepo{txm: txm}
}

func lookupDefinitionQuery(code string) squirrel.SelectBuilder {
	return Builder().
		Select(definitionCols...).
		From(definitionTable).
		Where(squirrel.Eq{"sequence_code": code}).
		Limit(1)
}

func lookupComponentsQuery(code string) squirrel.SelectBuilder {
	return Builder().
		Select("position", "component_type", "component_length", "constant_value").
		From(componentTable).
		Where(squirrel.Eq{"sequence_code": code}).
		OrderBy("position")
}

// Lookup implements counter.DefinitionStore.
func (r *DefinitionRepo) Lookup(ctx context.Context, sequenceCode string) (counter.Definition, error) {
	sql, args, err := lookupDefinitionQuery(sequenceCode).ToSql()
	if err != nil {
		return counter.Definition{}, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)

	var row definitionRow
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return counter.Definition{}, apperror.NewNotFound("counter definition", sequenceCode)
		}
		return counter.Definition{}, postgres.ClassifyError(definitionTable, sequenceCode, "definition lookup", err)
	}

	sql, args, err = lookupComponentsQuery(sequenceCode).ToSql()
	if err != nil {
		return counter.Definition{}, fmt.Errorf("build query: %w", err)
	}

	var components []componentRow
	if err := pgxscan.Select(ctx, querier, &components, sql, args...); err != nil {
		return counter.Definition{}, postgres.ClassifyError(componentTable, sequenceCode, "definition lookup", err)
	}

	return row.toDefinition(components), nil
}

func saveDefinitionQuery(def counter.Definition) squirrel.InsertBuilder {
	return Builder().
		Insert(definitionTable).
		Columns(definitionCols...).
		Values(
			def.SequenceCode,
			def.Description,
			def.NumberOfComponents,
			int(def.ResetPolicy),
			int(def.DefinitionLevel),
			int(def.SequenceType),
			def.ChronologicalControl,
		).
		Suffix("ON CONFLICT (sequence_code) DO UPDATE SET " +
			"description = EXCLUDED.description, " +
			"number_of_components = EXCLUDED.number_of_components, " +
			"reset_policy = EXCLUDED.reset_policy, " +
			"definition_level = EXCLUDED.definition_level, " +
			"sequence_type = EXCLUDED.sequence_type, " +
			"chronological_control = EXCLUDED.chronological_control, " +
			"updated_at = now()")
}

func insertComponentsQuery(def counter.Definition) squirrel.InsertBuilder {
	q := Builder().
		Insert(componentTable).
		Columns("sequence_code", "position", "component_type", "component_length", "constant_value")
	for i, c := range def.Components {
		q = q.Values(def.SequenceCode, i+1, int(c.Type), c.Length, c.Constant)
	}
	return q
}

// SaveDefinition implements counter.DefinitionWriter. The header and the
// component list are replaced atomically.
func (r *DefinitionRepo) SaveDefinition(ctx context.Context, def counter.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := r.txm.GetQuerier(ctx)

		sql, args, err := saveDefinitionQuery(def).ToSql()
		if err != nil {
			return fmt.Errorf("build upsert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("upsert %s: %w", definitionTable, err)
		}

		sql, args, err = Builder().
			Delete(componentTable).
			Where(squirrel.Eq{"sequence_code": def.SequenceCode}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("delete %s: %w", componentTable, err)
		}

		if len(def.Components) == 0 {
			return nil
		}
		sql, args, err = insertComponentsQuery(def).ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert %s: %w", componentTable, err)
		}
		return nil
	})
	return postgres.ClassifyError(definitionTable, def.SequenceCode, "definition save", err)
}

// ListCodes returns all defined sequence codes in order.
func (r *DefinitionRepo) ListCodes(ctx context.Context) ([]string, error) {
	sql, args, err := Builder().
		Select("sequence_code").
		From(definitionTable).
		OrderBy("sequence_code").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var codes []string
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &codes, sql, args...); err != nil {
		return nil, postgres.ClassifyError(definitionTable, "*", "definition list", err)
	}
	return codes, nil
}
