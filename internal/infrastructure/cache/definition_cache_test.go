package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpcounter/internal/core/apperror"
	"erpcounter/internal/core/counter"
)

type countingStore struct {
	*counter.MockDefinitionStore
	lookups atomic.Int32
}

func (s *countingStore) Lookup(ctx context.Context, code string) (counter.Definition, error) {
	s.lookups.Add(1)
	return s.MockDefinitionStore.Lookup(ctx, code)
}

func invoice(width int) counter.Definition {
	return counter.Definition{
		SequenceCode: "INV",
		Components: []counter.Component{
			{Type: counter.ComponentConstant, Constant: "INV"},
			{Type: counter.ComponentSequenceNumber, Length: width},
		},
		NumberOfComponents: 2,
		DefinitionLevel:    counter.LevelFolder,
		SequenceType:       counter.SequenceAlphanumeric,
	}
}

func newCache(ttl time.Duration) (*DefinitionCache, *countingStore) {
	inner := &countingStore{MockDefinitionStore: counter.NewMockDefinitionStore(invoice(5))}
	return NewDefinitionCache(inner, nil, ttl), inner
}

func TestDefinitionCache_ReadThrough(t *testing.T) {
	c, inner := newCache(0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		def, err := c.Lookup(ctx, "INV")
		require.NoError(t, err)
		assert.Equal(t, 5, def.SequenceDigits())
	}
	assert.Equal(t, int32(1), inner.lookups.Load())
	assert.Equal(t, 1, c.Len())
}

func TestDefinitionCache_DoesNotCacheMisses(t *testing.T) {
	c, inner := newCache(0)
	ctx := context.Background()

	_, err := c.Lookup(ctx, "NOPE")
	assert.True(t, apperror.IsNotFound(err))
	_, err = c.Lookup(ctx, "NOPE")
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, int32(2), inner.lookups.Load())
	assert.Zero(t, c.Len())
}

func TestDefinitionCache_ReturnsCopies(t *testing.T) {
	c, _ := newCache(0)
	ctx := context.Background()

	def, err := c.Lookup(ctx, "INV")
	require.NoError(t, err)
	def.Components[1].Length = 1

	def, err = c.Lookup(ctx, "INV")
	require.NoError(t, err)
	assert.Equal(t, 5, def.Components[1].Length)
}

func TestDefinitionCache_TTL(t *testing.T) {
	c, inner := newCache(time.Minute)
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Lookup(ctx, "INV")
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = c.Lookup(ctx, "INV")
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.lookups.Load())

	now = now.Add(time.Minute)
	_, err = c.Lookup(ctx, "INV")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.lookups.Load())
}

func TestDefinitionCache_NotificationInvalidates(t *testing.T) {
	c, inner := newCache(0)
	ctx := context.Background()

	var notified []string
	c.OnInvalidate(func(code string) { notified = append(notified, code) })
	c.OnInvalidate(func(string) { panic("boom") })

	_, err := c.Lookup(ctx, "INV")
	require.NoError(t, err)

	c.handleNotification("unrelated_channel", "INV")
	assert.Equal(t, 1, c.Len())

	c.handleNotification(NotifyChannel, " INV ")
	assert.Zero(t, c.Len())
	assert.Equal(t, []string{"INV"}, notified)

	_, err = c.Lookup(ctx, "INV")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.lookups.Load())
}

func TestDefinitionCache_SaveDefinitionWritesThrough(t *testing.T) {
	inner := counter.NewMockDefinitionStore(invoice(5))
	c := NewDefinitionCache(inner, nil, 0)
	ctx := context.Background()

	_, err := c.Lookup(ctx, "INV")
	require.NoError(t, err)

	require.NoError(t, c.SaveDefinition(ctx, invoice(7)))
	def, err := c.Lookup(ctx, "INV")
	require.NoError(t, err)
	assert.Equal(t, 7, def.SequenceDigits())
}

type lookupOnly struct{ counter.DefinitionStore }

func TestDefinitionCache_SaveDefinitionReadOnlyStore(t *testing.T) {
	c := NewDefinitionCache(lookupOnly{counter.NewMockDefinitionStore()}, nil, 0)
	ctx := context.Background()

	err := c.SaveDefinition(ctx, invoice(5))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, "READ_ONLY_STORE"))

	other := invoice(5)
	other.SequenceCode = "ORD"
	err2 := c.SaveDefinition(ctx, other)
	appErr, ok := apperror.AsAppError(err2)
	require.True(t, ok)
	assert.Equal(t, "ORD", appErr.Details["sequence_code"])
	assert.NotSame(t, err, err2)

	first, _ := apperror.AsAppError(err)
	assert.Equal(t, "INV", first.Details["sequence_code"])
}

func TestDefinitionCache_StartWithoutPool(t *testing.T) {
	c, _ := newCache(0)
	require.NoError(t, c.Start(context.Background()))
	c.Stop()
}
