package sqlstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpcounter/internal/core/apperror"
	"erpcounter/internal/core/counter"
	"erpcounter/internal/infrastructure/migration"
	"erpcounter/pkg/logger"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "counters.db")

	migrateDB, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	m, err := migration.New(migrateDB, migration.DialectSQLite, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	db, dialect, err := Open("sqlite://" + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := New(db, dialect, Options{LockTimeout: 5 * time.Second, TxTimeout: 10 * time.Second})
	require.NoError(t, err)
	return store
}

func invoice() counter.Definition {
	return counter.Definition{
		SequenceCode: "INV",
		Description:  "Sales invoices",
		Components: []counter.Component{
			{Type: counter.ComponentConstant, Constant: "INV"},
			{Type: counter.ComponentSequenceNumber, Length: 3},
		},
		NumberOfComponents: 2,
		ResetPolicy:        counter.ResetAnnual,
		DefinitionLevel:    counter.LevelSite,
		SequenceType:       counter.SequenceAlphanumeric,
	}
}

func TestStore_DefinitionRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveDefinition(ctx, invoice()))
	got, err := store.Lookup(ctx, "INV")
	require.NoError(t, err)
	assert.Equal(t, invoice(), got)

	updated := invoice()
	updated.Components = updated.Components[1:]
	updated.NumberOfComponents = 1
	require.NoError(t, store.SaveDefinition(ctx, updated))
	got, err = store.Lookup(ctx, "INV")
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	_, err = store.Lookup(ctx, "NOPE")
	assert.True(t, apperror.IsNotFound(err))

	codes, err := store.ListCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"INV"}, codes)

	bad := invoice()
	bad.SequenceType = 0
	assert.True(t, apperror.HasCode(store.SaveDefinition(ctx, bad), apperror.CodeValidation))
}

func TestStore_IncrementIsolatesKeys(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	paris := counter.Key{SequenceCode: "INV", Scope: "PA", Period: 24}
	lyon := counter.Key{SequenceCode: "INV", Scope: "LY", Period: 24}
	nextYear := counter.Key{SequenceCode: "INV", Scope: "PA", Period: 25}

	for _, want := range []string{"001", "002", "003"} {
		got, err := store.IncrementAndGet(ctx, paris, 3)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := store.IncrementAndGet(ctx, lyon, 3)
	require.NoError(t, err)
	assert.Equal(t, "001", got)

	got, err = store.IncrementAndGet(ctx, nextYear, 3)
	require.NoError(t, err)
	assert.Equal(t, "001", got)

	v, err := store.CurrentValue(ctx, paris)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = store.CurrentValue(ctx, counter.Key{SequenceCode: "MISSING"})
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestStore_OverflowLeavesCounterUnchanged(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	key := counter.Key{SequenceCode: "INV"}

	require.NoError(t, store.SetValue(ctx, key, 999))
	_, err := store.IncrementAndGet(ctx, key, 3)
	require.Error(t, err)
	assert.True(t, apperror.IsCounterOverflow(err))

	v, err := store.CurrentValue(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(999), v)

	assert.True(t, apperror.HasCode(store.SetValue(ctx, key, -1), apperror.CodeValidation))
}

func TestStore_ConcurrentIncrements(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	key := counter.Key{SequenceCode: "INV", Period: 24}

	const m = 64
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{}, m)
	)
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := store.IncrementAndGet(ctx, key, 4)
			if assert.NoError(t, err) {
				mu.Lock()
				seen[v] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, m)
	v, err := store.CurrentValue(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(m), v)
}

func TestStore_JoinsCallerTransaction(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	key := counter.Key{SequenceCode: "INV"}
	errAbort := apperror.NewBusinessRule("ABORT", "document rejected")

	err := store.RunInTransaction(ctx, func(ctx context.Context) error {
		got, err := store.IncrementAndGet(ctx, key, 3)
		require.NoError(t, err)
		assert.Equal(t, "001", got)
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	v, err := store.CurrentValue(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, v)

	tx, err := store.DB().BeginTxx(ctx, nil)
	require.NoError(t, err)
	_, err = store.IncrementAndGet(WithTx(ctx, tx), key, 3)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	v, err = store.CurrentValue(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url, driver, dsn, dialect string
	}{
		{"sqlite://data/counters.db", "sqlite3", "file:data/counters.db?" + sqliteParams, DialectSQLite},
		{"sqlite:///var/lib/counters.db", "sqlite3", "file:/var/lib/counters.db?" + sqliteParams, DialectSQLite},
		{"sqlite://c.db?cache=shared", "sqlite3", "file:c.db?cache=shared&" + sqliteParams, DialectSQLite},
		{"postgres://u:p@db:5432/erp?sslmode=disable", "postgres", "postgres://u:p@db:5432/erp?sslmode=disable", DialectPostgres},
	}
	for _, tt := range tests {
		driver, dsn, dialect, err := parseURL(tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.driver, driver)
		assert.Equal(t, tt.dsn, dsn)
		assert.Equal(t, tt.dialect, dialect)
	}

	_, _, _, err := parseURL("mysql://x")
	assert.Error(t, err)
}

func TestNew_RejectsUnknownDialect(t *testing.T) {
	_, err := New(&sqlx.DB{}, "mysql", Options{})
	assert.Error(t, err)
}
