// Package cache provides the counter definition cache with PostgreSQL
// LISTEN/NOTIFY invalidation.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"erpcounter/internal/core/apperror"
	"erpcounter/internal/core/counter"
	"erpcounter/pkg/logger"
)

// NotifyChannel is raised by the counter_definitions triggers with the
// sequence code as payload.
const NotifyChannel = "counter_definitions_changed"

// InvalidationListener is called after an entry has been invalidated.
// An empty code means the whole cache was dropped.
type InvalidationListener func(sequenceCode string)

type entry struct {
	def      counter.Definition
	loadedAt time.Time
}

// DefinitionCache is a read-through counter.DefinitionStore decorator.
// Definitions change rarely; entries are dropped on NOTIFY from the database
// and, when ttl > 0, after ttl as a fallback for missed notifications.
// Only successful lookups are cached.
type DefinitionCache struct {
	inner counter.DefinitionStore
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]entry

	listeners   []InvalidationListener
	listenersMu sync.RWMutex

	// Lifecycle of the LISTEN loop.
	pool        *pgxpool.Pool
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// Ensure compile-time interface compliance.
var (
	_ counter.DefinitionStore  = (*DefinitionCache)(nil)
	_ counter.DefinitionWriter = (*DefinitionCache)(nil)
)

// NewDefinitionCache wraps inner. pool may be nil, in which case only the
// TTL and explicit invalidation apply.
func NewDefinitionCache(inner counter.DefinitionStore, pool *pgxpool.Pool, ttl time.Duration) *DefinitionCache {
	return &DefinitionCache{
		inner:   inner,
		pool:    pool,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Lookup implements counter.DefinitionStore.
func (c *DefinitionCache) Lookup(ctx context.Context, sequenceCode string) (counter.Definition, error) {
	c.mu.RLock()
	e, ok := c.entries[sequenceCode]
	c.mu.RUnlock()
	if ok && (c.ttl <= 0 || c.now().Sub(e.loadedAt) < c.ttl) {
		return cloneDefinition(e.def), nil
	}

	def, err := c.inner.Lookup(ctx, sequenceCode)
	if err != nil {
		return counter.Definition{}, err
	}

	c.mu.Lock()
	c.entries[sequenceCode] = entry{def: cloneDefinition(def), loadedAt: c.now()}
	c.mu.Unlock()
	return def, nil
}

// SaveDefinition writes through to the inner store when it supports writes.
func (c *DefinitionCache) SaveDefinition(ctx context.Context, def counter.Definition) error {
	w, ok := c.inner.(counter.DefinitionWriter)
	if !ok {
		return apperror.NewBusinessRule("READ_ONLY_STORE", "definition store does not accept writes").
			WithDetail("sequence_code", def.SequenceCode)
	}
	if err := w.SaveDefinition(ctx, def); err != nil {
		return err
	}
	c.Invalidate(def.SequenceCode)
	return nil
}

// Invalidate drops one entry, or all entries when sequenceCode is blank.
func (c *DefinitionCache) Invalidate(sequenceCode string) {
	code := strings.TrimSpace(sequenceCode)

	c.mu.Lock()
	if code == "" {
		c.entries = make(map[string]entry)
	} else {
		delete(c.entries, code)
	}
	c.mu.Unlock()

	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, listener := range c.listeners {
		func(l InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(context.Background(), "listener panic recovered", "sequence_code", code, "panic", r)
				}
			}()
			l(code)
		}(listener)
	}
}

// OnInvalidate registers a listener.
func (c *DefinitionCache) OnInvalidate(l InvalidationListener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenersMu.Unlock()
}

// Len returns the number of cached definitions.
func (c *DefinitionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cloneDefinition(d counter.Definition) counter.Definition {
	d.Components = append([]counter.Component(nil), d.Components...)
	return d
}
