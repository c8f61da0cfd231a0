package counter

import (
	"context"
	"fmt"
	"time"
)

// Key identifies one persisted sequence counter.
type Key struct {
	SequenceCode string
	Scope        string
	Period       int
	Complement   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d/%s", k.SequenceCode, k.Scope, k.Period, k.Complement)
}

// DefinitionStore looks up counter templates.
// Implementations are read-only and safe for concurrent use.
type DefinitionStore interface {
	// Lookup returns the definition or an apperror NOT_FOUND.
	Lookup(ctx context.Context, sequenceCode string) (Definition, error)
}

// DefinitionWriter persists counter templates (seeding and administration).
type DefinitionWriter interface {
	SaveDefinition(ctx context.Context, def Definition) error
}

// SequenceStore is the only mutable component of the engine.
//
// IncrementAndGet reads the counter row for key, increments it by one,
// upserts it and returns the new value left-padded with zeros to maxDigits,
// all inside one serializable transaction. When the padded value is longer
// than maxDigits it returns an apperror COUNTER_OVERFLOW and the increment is
// rolled back. Conflicts and timeouts are returned as-is; implementations
// never retry.
type SequenceStore interface {
	IncrementAndGet(ctx context.Context, key Key, maxDigits int) (string, error)
}

// Admin exposes maintenance access to counter rows (legacy migration, seeding).
type Admin interface {
	// CurrentValue returns the persisted value, 0 when the row does not exist.
	CurrentValue(ctx context.Context, key Key) (int64, error)
	// SetValue overwrites the persisted value; the next issued number is value+1.
	SetValue(ctx context.Context, key Key, value int64) error
}

// IssueRecord is a number issued under a client idempotency key.
type IssueRecord struct {
	Key          string
	SequenceCode string
	// RequestHash fingerprints the request the key was first used with.
	RequestHash string
	Value       string
	IssuedAt    time.Time
}

// IssueLog remembers numbers issued under idempotency keys.
//
// InTx runs fn in the transaction the counter increment joins, so the record
// and the increment commit or roll back together. Record fails with an
// apperror CONCURRENT_MODIFICATION when a live record for the key already
// exists; expired records are replaced.
type IssueLog interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	Find(ctx context.Context, key string) (IssueRecord, bool, error)
	Record(ctx context.Context, rec IssueRecord) error
}
