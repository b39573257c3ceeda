// Package cache provides a small LRU used for bound color-transform
// resources. Entries hold GPU textures, so eviction runs a release
// callback; the cache itself is not thread-safe, matching the
// single-threaded compositor model.
package cache

// lruNode is a node in a doubly-linked LRU list. The node stores its
// key for O(1) deletion from the parent map.
type lruNode[K comparable] struct {
	key  K
	prev *lruNode[K]
	next *lruNode[K]
}

// entry holds a cached value with its LRU node.
type entry[K comparable, V any] struct {
	value V
	node  *lruNode[K]
}

// LRU is a fixed-capacity least-recently-used cache. The head of the
// internal list is the most recently used entry, the tail the least.
type LRU[K comparable, V any] struct {
	capacity int
	entries  map[K]*entry[K, V]
	head     *lruNode[K]
	tail     *lruNode[K]

	// onEvict runs for every entry removed by capacity pressure or
	// Clear, before the entry is forgotten.
	onEvict func(K, V)

	hits   uint64
	misses uint64
}

// New creates an LRU holding at most capacity entries. onEvict may be
// nil.
func New[K comparable, V any](capacity int, onEvict func(K, V)) *LRU[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[K, V]{
		capacity: capacity,
		entries:  make(map[K]*entry[K, V]),
		onEvict:  onEvict,
	}
}

// Get retrieves a cached value, marking it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.moveToFront(e.node)
	c.hits++
	return e.value, true
}

// Put stores a value, evicting the least recently used entry when the
// cache is full. Storing over an existing key evicts the old value.
func (c *LRU[K, V]) Put(key K, value V) {
	if e, ok := c.entries[key]; ok {
		if c.onEvict != nil {
			c.onEvict(key, e.value)
		}
		e.value = value
		c.moveToFront(e.node)
		return
	}
	for len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	node := &lruNode[K]{key: key}
	c.pushFront(node)
	c.entries[key] = &entry[K, V]{value: value, node: node}
}

// Delete removes an entry without running the eviction callback. The
// caller takes over the value's resources.
func (c *LRU[K, V]) Delete(key K) (V, bool) {
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.unlink(e.node)
	delete(c.entries, key)
	return e.value, true
}

// Clear evicts every entry.
func (c *LRU[K, V]) Clear() {
	for key, e := range c.entries {
		if c.onEvict != nil {
			c.onEvict(key, e.value)
		}
		delete(c.entries, key)
	}
	c.head = nil
	c.tail = nil
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int { return len(c.entries) }

// Stats returns the hit and miss counts.
func (c *LRU[K, V]) Stats() (hits, misses uint64) { return c.hits, c.misses }

func (c *LRU[K, V]) evictOldest() {
	if c.tail == nil {
		return
	}
	node := c.tail
	c.unlink(node)
	e := c.entries[node.key]
	delete(c.entries, node.key)
	if c.onEvict != nil && e != nil {
		c.onEvict(node.key, e.value)
	}
}

func (c *LRU[K, V]) pushFront(node *lruNode[K]) {
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *LRU[K, V]) moveToFront(node *lruNode[K]) {
	if node == c.head {
		return
	}
	c.unlink(node)
	c.pushFront(node)
}

func (c *LRU[K, V]) unlink(node *lruNode[K]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.prev = nil
	node.next = nil
}
