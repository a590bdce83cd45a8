// Package rtnl maintains a live mirror of the kernel's links, addresses
// and routes by consuming rtnetlink notifications, reconciling them
// against previously observed state and reporting deduplicated change
// events to an Observer.
package rtnl

// Field projects one equality-relevant field out of a message. Projected
// values must be comparable; list-valued fields project a derived key.
type Field[M any] func(M) any

// equalFields reports whether two messages agree on every projected
// field. Anything not projected (traffic counters, lifetimes) does not
// affect equality.
func equalFields[M any](a, b M, fields []Field[M]) bool {
	for _, f := range fields {
		if f(a) != f(b) {
			return false
		}
	}
	return true
}

// Cache maps an entity's identity key to the last-seen message for it.
// Entries live exactly as long as the kernel considers the entity to
// exist; there is no eviction. Access is confined to the listener's
// event goroutine.
type Cache[K comparable, M any] struct {
	entries map[K]M
	fields  []Field[M]
}

// NewCache creates a cache whose equality is defined by the given
// field list.
func NewCache[K comparable, M any](fields []Field[M]) *Cache[K, M] {
	return &Cache[K, M]{
		entries: make(map[K]M),
		fields:  fields,
	}
}

// Get returns the cached message for the identity, if any.
func (c *Cache[K, M]) Get(key K) (M, bool) {
	m, ok := c.entries[key]
	return m, ok
}

// Set stores the message under the identity, replacing any prior entry.
func (c *Cache[K, M]) Set(key K, msg M) {
	c.entries[key] = msg
}

// Delete removes the identity. Deleting an unknown identity is a no-op.
func (c *Cache[K, M]) Delete(key K) {
	delete(c.entries, key)
}

// Len returns the number of live entries.
func (c *Cache[K, M]) Len() int {
	return len(c.entries)
}

// Equal compares two messages on the cache's equality field list.
func (c *Cache[K, M]) Equal(a, b M) bool {
	return equalFields(a, b, c.fields)
}

// ForEach visits every entry. The callback must not mutate the cache.
func (c *Cache[K, M]) ForEach(fn func(key K, msg M)) {
	for k, m := range c.entries {
		fn(k, m)
	}
}
