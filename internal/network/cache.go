package network

// Cache holds the most recently built clean snapshot. It has exactly one
// slot: Store overwrites whatever was there and no history is kept.
type Cache struct {
	clean *Snapshot
}

// Store caches a private deep copy of s.
func (c *Cache) Store(s *Snapshot) {
	c.clean = s.Clone()
}

// Has reports whether a snapshot is cached.
func (c *Cache) Has() bool { return c.clean != nil }

// Restore returns a deep copy of the cached snapshot, or nil when empty.
// Mutating the result never reaches the cache.
func (c *Cache) Restore() *Snapshot {
	if c.clean == nil {
		return nil
	}
	return c.clean.Clone()
}

// Peek returns the cached snapshot itself. Callers must not mutate it.
func (c *Cache) Peek() *Snapshot { return c.clean }
