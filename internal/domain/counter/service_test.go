package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpcounter/internal/core/apperror"
	corecounter "erpcounter/internal/core/counter"
)

var march15 = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func invoiceDef() corecounter.Definition {
	return corecounter.Definition{
		SequenceCode: "INV",
		Components: []corecounter.Component{
			{Type: corecounter.ComponentConstant, Constant: "INV"},
			{Type: corecounter.ComponentSequenceNumber, Length: 5},
		},
		NumberOfComponents: 2,
		ResetPolicy:        corecounter.ResetNever,
		DefinitionLevel:    corecounter.LevelFolder,
		SequenceType:       corecounter.SequenceAlphanumeric,
	}
}

func orderDef() corecounter.Definition {
	return corecounter.Definition{
		SequenceCode: "ORD",
		Components: []corecounter.Component{
			{Type: corecounter.ComponentYear, Length: 4},
			{Type: corecounter.ComponentConstant, Constant: "-"},
			{Type: corecounter.ComponentMonth, Length: 2},
			{Type: corecounter.ComponentConstant, Constant: "-"},
			{Type: corecounter.ComponentSequenceNumber, Length: 4},
		},
		NumberOfComponents: 5,
		ResetPolicy:        corecounter.ResetAnnual,
		DefinitionLevel:    corecounter.LevelFolder,
		SequenceType:       corecounter.SequenceAlphanumeric,
	}
}

type recorder struct {
	mu       sync.Mutex
	issued   int
	failed   map[string]int
	failedOn map[string]int
}

func (r *recorder) ObserveIssued(string, time.Duration) {
	r.mu.Lock()
	r.issued++
	r.mu.Unlock()
}

func (r *recorder) ObserveFailed(sequenceCode, reason string) {
	r.mu.Lock()
	if r.failed == nil {
		r.failed = map[string]int{}
		r.failedOn = map[string]int{}
	}
	r.failed[reason]++
	r.failedOn[sequenceCode]++
	r.mu.Unlock()
}

func newService(defs ...corecounter.Definition) (*Service, *corecounter.MemoryStore, *recorder) {
	store := corecounter.NewMemoryStore()
	rec := &recorder{}
	svc := NewService(corecounter.NewMockDefinitionStore(defs...), store,
		WithRecorder(rec),
		WithClock(func() time.Time { return march15 }),
	)
	return svc, store, rec
}

func TestGetNextCounter_Monotonic(t *testing.T) {
	svc, _, rec := newService(invoiceDef())
	ctx := context.Background()

	for i := 1; i <= 25; i++ {
		got, err := svc.GetNextCounter(ctx, Request{SequenceCode: "INV"})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("INV%05d", i), got)
	}
	assert.Equal(t, 25, rec.issued)
}

func TestGetNextCounter_ConcurrentCallsAreDistinct(t *testing.T) {
	svc, store, _ := newService(invoiceDef())
	ctx := context.Background()

	const m = 64
	results := make([]string, m)
	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.GetNextCounter(ctx, Request{SequenceCode: "INV"})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, m)
	for _, r := range results {
		seen[r] = struct{}{}
	}
	assert.Len(t, seen, m)

	v, err := store.CurrentValue(ctx, corecounter.Key{SequenceCode: "INV"})
	require.NoError(t, err)
	assert.Equal(t, int64(m), v)
}

func TestGetNextCounter_PeriodIsolation(t *testing.T) {
	svc, _, _ := newService(orderDef())
	ctx := context.Background()

	dec31 := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	jan1 := time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)

	got, err := svc.GetNextCounter(ctx, Request{SequenceCode: "ORD", ReferenceDate: dec31})
	require.NoError(t, err)
	assert.Equal(t, "2024-12-0001", got)

	got, err = svc.GetNextCounter(ctx, Request{SequenceCode: "ORD", ReferenceDate: dec31})
	require.NoError(t, err)
	assert.Equal(t, "2024-12-0002", got)

	got, err = svc.GetNextCounter(ctx, Request{SequenceCode: "ORD", ReferenceDate: jan1})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-0001", got)
}

func TestGetNextCounter_UsesClockWhenDateMissing(t *testing.T) {
	svc, store, _ := newService(orderDef())
	ctx := context.Background()
	require.NoError(t, store.SetValue(ctx, corecounter.Key{SequenceCode: "ORD", Period: 24}, 6))

	got, err := svc.GetNextCounter(ctx, Request{SequenceCode: "ORD"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-0007", got)
}

func TestGetNextCounter_Overflow(t *testing.T) {
	svc, store, rec := newService(invoiceDef())
	ctx := context.Background()
	key := corecounter.Key{SequenceCode: "INV"}
	require.NoError(t, store.SetValue(ctx, key, 99999))

	_, err := svc.GetNextCounter(ctx, Request{SequenceCode: "INV"})
	require.Error(t, err)
	assert.True(t, apperror.IsCounterOverflow(err))

	v, err := store.CurrentValue(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(99999), v)
	assert.Equal(t, 1, rec.failed[apperror.CodeCounterOverflow])
	assert.Equal(t, 1, rec.failedOn["INV"])
}

func TestGetNextCounter_NotFound(t *testing.T) {
	svc, store, rec := newService()

	_, err := svc.GetNextCounter(context.Background(), Request{SequenceCode: "NOPE"})
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, 0, store.Calls())
	assert.Equal(t, 1, rec.failed[apperror.CodeNotFound])
}

func TestGetNextCounter_UnknownCodesShareOneLabel(t *testing.T) {
	svc, _, rec := newService(invoiceDef())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := svc.GetNextCounter(ctx, Request{SequenceCode: fmt.Sprintf("junk-%d", i)})
		require.Error(t, err)
	}

	assert.Equal(t, map[string]int{UnresolvedSequenceCode: 50}, rec.failedOn)
	assert.Equal(t, 50, rec.failed[apperror.CodeNotFound])
}

func TestGetNextCounter_NoSequenceComponent(t *testing.T) {
	def := corecounter.Definition{
		SequenceCode:       "LBL",
		Components:         []corecounter.Component{{Type: corecounter.ComponentConstant, Constant: "LABEL"}},
		NumberOfComponents: 1,
		DefinitionLevel:    corecounter.LevelFolder,
		SequenceType:       corecounter.SequenceAlphanumeric,
	}
	svc, store, _ := newService(def)

	got, err := svc.GetNextCounter(context.Background(), Request{SequenceCode: "LBL"})
	require.NoError(t, err)
	assert.Equal(t, "", got)
	assert.Equal(t, 0, store.Calls())
}

func TestGetNextCounter_SiteScopeAndComplement(t *testing.T) {
	def := corecounter.Definition{
		SequenceCode: "SHP",
		Components: []corecounter.Component{
			{Type: corecounter.ComponentSite, Length: 4},
			{Type: corecounter.ComponentComplement, Length: 2},
			{Type: corecounter.ComponentSequenceNumber, Length: 3},
		},
		NumberOfComponents:   3,
		DefinitionLevel:      corecounter.LevelSite,
		SequenceType:         corecounter.SequenceAlphanumeric,
		ChronologicalControl: corecounter.ChronologicalPadded,
	}
	svc, _, _ := newService(def)
	ctx := context.Background()

	got, err := svc.GetNextCounter(ctx, Request{SequenceCode: "SHP", Site: " PA ", Complement: "EXPORT"})
	require.NoError(t, err)
	assert.Equal(t, "PA__EX001", got)

	// Another site and another complement each own a counter.
	got, err = svc.GetNextCounter(ctx, Request{SequenceCode: "SHP", Site: "LYON", Complement: "EXPORT"})
	require.NoError(t, err)
	assert.Equal(t, "LYONEX001", got)

	got, err = svc.GetNextCounter(ctx, Request{SequenceCode: "SHP", Site: "PA", Complement: "DOMESTIC"})
	require.NoError(t, err)
	assert.Equal(t, "PA__DO001", got)

	got, err = svc.GetNextCounter(ctx, Request{SequenceCode: "SHP", Site: "PA", Complement: "EXPORT"})
	require.NoError(t, err)
	assert.Equal(t, "PA__EX002", got)
}

func TestGetNextCounter_NoComplementMarker(t *testing.T) {
	def := invoiceDef()
	def.Components = append(def.Components, corecounter.Component{Type: corecounter.ComponentNoComplement})
	def.NumberOfComponents = 3
	svc, store, _ := newService(def)
	ctx := context.Background()

	_, err := svc.GetNextCounter(ctx, Request{SequenceCode: "INV", Complement: "A"})
	require.NoError(t, err)
	got, err := svc.GetNextCounter(ctx, Request{SequenceCode: "INV", Complement: "B"})
	require.NoError(t, err)
	assert.Equal(t, "INV00002", got)

	v, err := store.CurrentValue(ctx, corecounter.Key{SequenceCode: "INV"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestGetNextCounter_StoreErrorPropagates(t *testing.T) {
	svc, store, rec := newService(invoiceDef())
	store.IncrementErr = apperror.NewTimeout("counter increment").WithCause(errors.New("lock timeout"))

	_, err := svc.GetNextCounter(context.Background(), Request{SequenceCode: "INV"})
	assert.True(t, apperror.IsTimeout(err))
	assert.Equal(t, 1, rec.failed[apperror.CodeTimeout])
}

func TestGetNextCounter_MonotonicProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("n sequential calls return 1..n without gaps", prop.ForAll(
		func(n int, site string) bool {
			def := invoiceDef()
			def.DefinitionLevel = corecounter.LevelSite
			svc, _, _ := newService(def)
			for i := 1; i <= n; i++ {
				got, err := svc.GetNextCounter(context.Background(), Request{SequenceCode: "INV", Site: site})
				if err != nil {
					return false
				}
				v, err := strconv.Atoi(got[len("INV"):])
				if err != nil || v != i {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 40),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
