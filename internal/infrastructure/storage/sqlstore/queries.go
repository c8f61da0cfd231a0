package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries gives access to the named SQL in queries/*.sql.
// Statements are written with ? placeholders and rebound per driver.
type Queries struct {
	dot *dotsql.DotSql
}

// LoadQueries parses all embedded query files.
func LoadQueries() (*Queries, error) {
	var combined strings.Builder

	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		combined.Write(content)
		combined.WriteString("\n")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combined.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}
	return &Queries{dot: dot}, nil
}

func (q *Queries) raw(ext sqlx.ExtContext, name string) (string, error) {
	query, err := q.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return ext.Rebind(query), nil
}

// Exec executes a named statement.
func (q *Queries) Exec(ctx context.Context, ext sqlx.ExtContext, name string, args ...any) (sql.Result, error) {
	query, err := q.raw(ext, name)
	if err != nil {
		return nil, err
	}
	return ext.ExecContext(ctx, query, args...)
}

// Get retrieves a single row into dest.
func (q *Queries) Get(ctx context.Context, ext sqlx.ExtContext, name string, dest any, args ...any) error {
	query, err := q.raw(ext, name)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, ext, dest, query, args...)
}

// Select retrieves all rows into the dest slice.
func (q *Queries) Select(ctx context.Context, ext sqlx.ExtContext, name string, dest any, args ...any) error {
	query, err := q.raw(ext, name)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, ext, dest, query, args...)
}
