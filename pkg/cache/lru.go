package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is the bounded in-process cache layer. A single mutex guards the list
// and index; entries carry their own expiry and a hit reorders the entry to
// most-recently-used.
type LRU struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

type lruEntry struct {
	key       string
	value     map[string]any
	expiresAt time.Time
}

// NewLRU creates an LRU holding at most capacity entries.
func NewLRU(capacity int) *LRU {
	if capacity < 1 {
		capacity = 1
	}

	return &LRU{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Get returns the cached value when present and unexpired. Expired entries
// are removed on access.
func (l *LRU) Get(key string) (map[string]any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	element, ok := l.index[key]
	if !ok {
		return nil, false
	}

	entry := element.Value.(*lruEntry)

	if time.Now().After(entry.expiresAt) {
		l.order.Remove(element)
		delete(l.index, key)

		return nil, false
	}

	l.order.MoveToFront(element)

	return entry.value, true
}

// Set stores a value, refreshing an existing entry in place and evicting the
// least-recently-used entry on overflow.
func (l *LRU) Set(key string, value map[string]any, expiresAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if element, ok := l.index[key]; ok {
		entry := element.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		l.order.MoveToFront(element)

		return
	}

	if l.order.Len() >= l.capacity {
		oldest := l.order.Back()
		if oldest != nil {
			l.order.Remove(oldest)
			delete(l.index, oldest.Value.(*lruEntry).key)
		}
	}

	l.index[key] = l.order.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
}

// Len returns the number of resident entries, including not-yet-collected
// expired ones.
func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.order.Len()
}
