package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"erpcounter/internal/core/apperror"
	"erpcounter/internal/core/counter"
)

const (
	sequenceTable   = "sequence_counters"
	definitionTable = "counter_definitions"
)

// Options tunes the counter transaction.
type Options struct {
	LockTimeout time.Duration
	TxTimeout   time.Duration
}

// Store implements the counter stores over sqlx.
type Store struct {
	db      *sqlx.DB
	dialect string
	queries *Queries
	opts    Options
}

// Ensure compile-time interface compliance.
var (
	_ counter.DefinitionStore  = (*Store)(nil)
	_ counter.DefinitionWriter = (*Store)(nil)
	_ counter.SequenceStore    = (*Store)(nil)
	_ counter.Admin            = (*Store)(nil)
)

// New creates a Store for an open database.
func New(db *sqlx.DB, dialect string, opts Options) (*Store, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	queries, err := LoadQueries()
	if err != nil {
		return nil, err
	}
	return &Store{db: db, dialect: dialect, queries: queries, opts: opts}, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() string {
	return s.dialect
}

func (s *Store) counterTx() txOptions {
	return txOptions{
		serializable: true,
		lockTimeout:  s.opts.LockTimeout,
		timeout:      s.opts.TxTimeout,
	}
}

func keyArgs(key counter.Key) []any {
	return []any{key.SequenceCode, key.Scope, key.Period, key.Complement}
}

// IncrementAndGet implements counter.SequenceStore.
func (s *Store) IncrementAndGet(ctx context.Context, key counter.Key, maxDigits int) (string, error) {
	var padded string
	err := s.runInTx(ctx, s.counterTx(), func(ctx context.Context) error {
		var value int64
		if err := s.queries.Get(ctx, s.ext(ctx), "increment-counter", &value, keyArgs(key)...); err != nil {
			return fmt.Errorf("increment %s: %w", key, err)
		}

		p, ok := counter.PadSequence(value, maxDigits)
		if !ok {
			return apperror.NewCounterOverflow(key.SequenceCode, value, maxDigits)
		}
		padded = p
		return nil
	})
	if err != nil {
		return "", classifyError(sequenceTable, key.String(), "counter increment", err)
	}
	return padded, nil
}

// CurrentValue implements counter.Admin.
func (s *Store) CurrentValue(ctx context.Context, key counter.Key) (int64, error) {
	var value int64
	err := s.queries.Get(ctx, s.ext(ctx), "get-counter", &value, keyArgs(key)...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classifyError(sequenceTable, key.String(), "counter read", err)
	}
	return value, nil
}

// SetValue implements counter.Admin.
func (s *Store) SetValue(ctx context.Context, key counter.Key, value int64) error {
	if value < 0 {
		return apperror.NewValidation("counter value must not be negative").
			WithDetail("sequence_code", key.SequenceCode).
			WithDetail("value", value)
	}

	err := s.runInTx(ctx, s.counterTx(), func(ctx context.Context) error {
		_, err := s.queries.Exec(ctx, s.ext(ctx), "set-counter", append(keyArgs(key), value)...)
		return err
	})
	return classifyError(sequenceTable, key.String(), "counter write", err)
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

// Lookup implements counter.DefinitionStore.
func (s *Store) Lookup(ctx context.Context, sequenceCode string) (counter.Definition, error) {
	ext := s.ext(ctx)

	var row definitionRow
	if err := s.queries.Get(ctx, ext, "get-definition", &row, sequenceCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return counter.Definition{}, apperror.NewNotFound("counter definition", sequenceCode)
		}
		return counter.Definition{}, classifyError(definitionTable, sequenceCode, "definition lookup", err)
	}

	var components []componentRow
	if err := s.queries.Select(ctx, ext, "list-definition-components", &components, sequenceCode); err != nil {
		return counter.Definition{}, classifyError(definitionTable, sequenceCode, "definition lookup", err)
	}

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
	return def, nil
}

// SaveDefinition implements counter.DefinitionWriter.
func (s *Store) SaveDefinition(ctx context.Context, def counter.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	err := s.runInTx(ctx, txOptions{}, func(ctx context.Context) error {
		ext := s.ext(ctx)
		if _, err := s.queries.Exec(ctx, ext, "upsert-definition",
			def.SequenceCode,
			def.Description,
			def.NumberOfComponents,
			int(def.ResetPolicy),
			int(def.DefinitionLevel),
			int(def.SequenceType),
			def.ChronologicalControl,
		); err != nil {
			return fmt.Errorf("upsert definition: %w", err)
		}

		if _, err := s.queries.Exec(ctx, ext, "delete-definition-components", def.SequenceCode); err != nil {
			return fmt.Errorf("delete components: %w", err)
		}
		for i, c := range def.Components {
			if _, err := s.queries.Exec(ctx, ext, "insert-definition-component",
				def.SequenceCode, i+1, int(c.Type), c.Length, c.Constant); err != nil {
				return fmt.Errorf("insert component %d: %w", i+1, err)
			}
		}
		return nil
	})
	return classifyError(definitionTable, def.SequenceCode, "definition save", err)
}

// ListCodes returns all defined sequence codes in order.
func (s *Store) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := s.queries.Select(ctx, s.ext(ctx), "list-definition-codes", &codes); err != nil {
		return nil, classifyError(definitionTable, "*", "definition list", err)
	}
	return codes, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
