package counter

import (
	"context"
	"sync"

	"erpcounter/internal/core/apperror"
)

// MockDefinitionStore is an in-memory DefinitionStore for unit tests.
type MockDefinitionStore struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewMockDefinitionStore creates a store preloaded with defs.
func NewMockDefinitionStore(defs ...Definition) *MockDefinitionStore {
	m := &MockDefinitionStore{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		m.defs[d.SequenceCode] = d
	}
	return m
}

// Lookup implements DefinitionStore.
func (m *MockDefinitionStore) Lookup(ctx context.Context, sequenceCode string) (Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.defs[sequenceCode]
	if !ok {
		return Definition{}, apperror.NewNotFound("counter definition", sequenceCode)
	}
	return d, nil
}

// SaveDefinition implements DefinitionWriter.
func (m *MockDefinitionStore) SaveDefinition(ctx context.Context, def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.defs[def.SequenceCode] = def
	m.mu.Unlock()
	return nil
}

// MemoryStore is an in-memory SequenceStore for unit tests.
// The mutex stands in for the database's serializable transaction.
type MemoryStore struct {
	mu     sync.Mutex
	values map[Key]int64
	calls  int

	// IncrementErr, when set, is returned by IncrementAndGet without touching state.
	IncrementErr error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Key]int64)}
}

// IncrementAndGet implements SequenceStore.
func (m *MemoryStore) IncrementAndGet(ctx context.Context, key Key, maxDigits int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.IncrementErr != nil {
		return "", m.IncrementErr
	}

	next := m.values[key] + 1
	s, ok := PadSequence(next, maxDigits)
	if !ok {
		return "", apperror.NewCounterOverflow(key.SequenceCode, next, maxDigits)
	}
	m.values[key] = next
	return s, nil
}

// CurrentValue implements Admin.
func (m *MemoryStore) CurrentValue(ctx context.Context, key Key) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

// SetValue implements Admin.
func (m *MemoryStore) SetValue(ctx context.Context, key Key, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Calls returns how many times IncrementAndGet was invoked.
func (m *MemoryStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MemoryIssueLog is an in-memory IssueLog for unit tests. InTx serializes
// callers and publishes records on success; it cannot undo increments made
// by a SequenceStore inside fn.
type MemoryIssueLog struct {
	txMu    sync.Mutex
	mu      sync.Mutex
	records map[string]IssueRecord
}

type memIssueTxKey struct{}

// NewMemoryIssueLog creates an empty log.
func NewMemoryIssueLog() *MemoryIssueLog {
	return &MemoryIssueLog{records: make(map[string]IssueRecord)}
}

// InTx implements IssueLog.
func (m *MemoryIssueLog) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	pending := make(map[string]IssueRecord)
	if err := fn(context.WithValue(ctx, memIssueTxKey{}, pending)); err != nil {
		return err
	}

	m.mu.Lock()
	for k, v := range pending {
		m.records[k] = v
	}
	m.mu.Unlock()
	return nil
}

// Find implements IssueLog.
func (m *MemoryIssueLog) Find(ctx context.Context, key string) (IssueRecord, bool, error) {
	if pending, ok := ctx.Value(memIssueTxKey{}).(map[string]IssueRecord); ok {
		if rec, ok := pending[key]; ok {
			return rec, true, nil
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	return rec, ok, nil
}

// Record implements IssueLog.
func (m *MemoryIssueLog) Record(ctx context.Context, rec IssueRecord) error {
	if _, ok, _ := m.Find(ctx, rec.Key); ok {
		return apperror.NewConcurrentModification("counter_issue_keys", rec.Key)
	}
	if pending, ok := ctx.Value(memIssueTxKey{}).(map[string]IssueRecord); ok {
		pending[rec.Key] = rec
		return nil
	}
	m.mu.Lock()
	m.records[rec.Key] = rec
	m.mu.Unlock()
	return nil
}

// Len returns the number of committed records.
func (m *MemoryIssueLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Ensure compile-time interface compliance.
var (
	_ IssueLog         = (*MemoryIssueLog)(nil)
	_ DefinitionStore  = (*MockDefinitionStore)(nil)
	_ DefinitionWriter = (*MockDefinitionStore)(nil)
	_ SequenceStore    = (*MemoryStore)(nil)
	_ Admin            = (*MemoryStore)(nil)
)
