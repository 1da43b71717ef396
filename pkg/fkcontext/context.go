// Package fkcontext tracks the surrogate key currently selected or created for
// each table of a wizard session. Entries are only added (or overwritten) by
// merges and only removed by a full reset. Every mutation bumps a version so
// readers can detect that a snapshot is stale.
package fkcontext

import (
	"sort"
	"sync"
)

// Lookup is the read side shared by Context and Snapshot.
type Lookup interface {
	Get(table string) (int64, bool)
	Has(table string) bool
}

// Context is the mutable FK context of one wizard session.
type Context struct {
	mu      sync.RWMutex
	ids     map[string]int64
	version uint64
}

// New returns an empty context at version 0.
func New() *Context {
	return &Context{ids: make(map[string]int64)}
}

// Get returns the surrogate key for table.
func (c *Context) Get(table string) (int64, bool) {
	if c == nil {
		return 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[table]
	return id, ok
}

// Has reports whether table has a resolved key.
func (c *Context) Has(table string) bool {
	_, ok := c.Get(table)
	return ok
}

// Merge records id for table and returns the new version.
func (c *Context) Merge(table string, id int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ids == nil {
		c.ids = make(map[string]int64)
	}
	c.ids[table] = id
	c.version++
	return c.version
}

// Reset drops every entry. The version still advances so earlier snapshots
// compare as stale.
func (c *Context) Reset() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = make(map[string]int64)
	c.version++
	return c.version
}

// Version returns the current mutation counter.
func (c *Context) Version() uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Snapshot copies the current entries.
func (c *Context) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make(map[string]int64, len(c.ids))
	for table, id := range c.ids {
		ids[table] = id
	}
	return Snapshot{version: c.version, ids: ids}
}

// Snapshot is an immutable, versioned copy of a Context.
type Snapshot struct {
	version uint64
	ids     map[string]int64
}

// Of builds a snapshot from a plain map, mainly for tests and pure callers.
func Of(ids map[string]int64) Snapshot {
	copied := make(map[string]int64, len(ids))
	for table, id := range ids {
		copied[table] = id
	}
	return Snapshot{ids: copied}
}

// Version returns the context version the snapshot was taken at.
func (s Snapshot) Version() uint64 {
	return s.version
}

// Get returns the surrogate key for table.
func (s Snapshot) Get(table string) (int64, bool) {
	id, ok := s.ids[table]
	return id, ok
}

// Has reports whether table has a resolved key.
func (s Snapshot) Has(table string) bool {
	_, ok := s.ids[table]
	return ok
}

// Len returns the number of resolved tables.
func (s Snapshot) Len() int {
	return len(s.ids)
}

// Tables returns the resolved table names sorted.
func (s Snapshot) Tables() []string {
	out := make([]string, 0, len(s.ids))
	for table := range s.ids {
		out = append(out, table)
	}
	sort.Strings(out)
	return out
}

// With returns a copy of the snapshot with table resolved to id. The copy
// keeps the snapshot's version; it describes a state not yet merged.
func (s Snapshot) With(table string, id int64) Snapshot {
	ids := s.Map()
	ids[table] = id
	return Snapshot{version: s.version, ids: ids}
}

// Map returns a copy of the entries.
func (s Snapshot) Map() map[string]int64 {
	out := make(map[string]int64, len(s.ids))
	for table, id := range s.ids {
		out[table] = id
	}
	return out
}

// Stale reports whether the context moved on since the snapshot was taken.
func (s Snapshot) Stale(c *Context) bool {
	return c.Version() != s.version
}
