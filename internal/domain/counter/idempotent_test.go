package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpcounter/internal/core/apperror"
	corecounter "erpcounter/internal/core/counter"
)

func newIdempotentService(defs ...corecounter.Definition) (*Service, *corecounter.MemoryStore, *corecounter.MemoryIssueLog) {
	store := corecounter.NewMemoryStore()
	issues := corecounter.NewMemoryIssueLog()
	svc := NewService(corecounter.NewMockDefinitionStore(defs...), store,
		WithIssueLog(issues),
		WithClock(func() time.Time { return march15 }),
	)
	return svc, store, issues
}

func TestGetNextCounterIdempotent_ReplaysSameKey(t *testing.T) {
	svc, store, issues := newIdempotentService(invoiceDef())
	ctx := context.Background()
	req := Request{SequenceCode: "INV"}

	got, replayed, err := svc.GetNextCounterIdempotent(ctx, "req-1", req)
	require.NoError(t, err)
	assert.Equal(t, "INV00001", got)
	assert.False(t, replayed)

	got, replayed, err = svc.GetNextCounterIdempotent(ctx, "req-1", req)
	require.NoError(t, err)
	assert.Equal(t, "INV00001", got)
	assert.True(t, replayed)

	got, _, err = svc.GetNextCounterIdempotent(ctx, "req-2", req)
	require.NoError(t, err)
	assert.Equal(t, "INV00002", got)

	assert.Equal(t, 2, store.Calls())
	assert.Equal(t, 2, issues.Len())
}

func TestGetNextCounterIdempotent_KeyReusedForOtherRequest(t *testing.T) {
	svc, _, _ := newIdempotentService(invoiceDef(), orderDef())
	ctx := context.Background()

	_, _, err := svc.GetNextCounterIdempotent(ctx, "req-1", Request{SequenceCode: "INV"})
	require.NoError(t, err)

	_, _, err = svc.GetNextCounterIdempotent(ctx, "req-1", Request{SequenceCode: "ORD"})
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))

	_, _, err = svc.GetNextCounterIdempotent(ctx, "req-1", Request{SequenceCode: "INV", Complement: "X"})
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))
}

func TestGetNextCounterIdempotent_FailureRecordsNothing(t *testing.T) {
	svc, store, issues := newIdempotentService(invoiceDef())
	ctx := context.Background()
	require.NoError(t, store.SetValue(ctx, corecounter.Key{SequenceCode: "INV"}, 99999))

	_, _, err := svc.GetNextCounterIdempotent(ctx, "req-1", Request{SequenceCode: "INV"})
	assert.True(t, apperror.IsCounterOverflow(err))
	assert.Equal(t, 0, issues.Len())
}

func TestGetNextCounterIdempotent_WithoutKey(t *testing.T) {
	svc, _, issues := newIdempotentService(invoiceDef())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, replayed, err := svc.GetNextCounterIdempotent(ctx, "  ", Request{SequenceCode: "INV"})
		require.NoError(t, err)
		assert.False(t, replayed)
	}
	assert.Equal(t, 0, issues.Len())
}

func TestGetNextCounterIdempotent_ConcurrentSameKey(t *testing.T) {
	svc, store, _ := newIdempotentService(invoiceDef())
	ctx := context.Background()

	const m = 16
	results := make([]string, m)
	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := svc.GetNextCounterIdempotent(ctx, "same", Request{SequenceCode: "INV"})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "INV00001", r)
	}
	assert.Equal(t, 1, store.Calls())
}

func TestRequestFingerprint(t *testing.T) {
	base := Request{SequenceCode: "INV", Site: "PA"}
	assert.Equal(t, base.Fingerprint(), Request{SequenceCode: "INV", Site: "PA"}.Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), Request{SequenceCode: "INV", Site: "LY"}.Fingerprint())

	dated := base
	dated.ReferenceDate = time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)
	sameDay := base
	sameDay.ReferenceDate = time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)
	assert.NotEqual(t, base.Fingerprint(), dated.Fingerprint())
	assert.Equal(t, dated.Fingerprint(), sameDay.Fingerprint())
}
