// ABOUTME: Thread-safe TTL cache for deduplicating client submissions.
// ABOUTME: Backs the Idempotency-Key header on the polling submit endpoint.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry is a claimed key with its claim time and position in the age list.
type entry struct {
	key       string
	claimedAt time.Time
	element   *list.Element
}

// Cache remembers claimed keys for a TTL, bounded to maxSize entries.
// When full, the oldest claim is evicted first.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	age     *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache and starts its expiry sweeper.
func New(ttl time.Duration, maxSize int) *Cache {
	return newCache(ttl, maxSize, time.Now)
}

func newCache(ttl time.Duration, maxSize int, now func() time.Time) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache{
		entries: make(map[string]*entry),
		age:     list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		stop:    make(chan struct{}),
	}
	go c.sweep(min(ttl, time.Minute))
	return c
}

// Key scopes a client-supplied idempotency key to a conversation.
func Key(conversationID, clientKey string) string {
	return conversationID + "\x00" + clientKey
}

// Claim records key and reports whether this caller is the first to claim
// it within the TTL. A false return means the key is a duplicate.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		if now.Sub(e.claimedAt) < c.ttl {
			return false
		}
		c.removeLocked(e)
	}

	if len(c.entries) >= c.maxSize {
		if oldest := c.age.Front(); oldest != nil {
			c.removeLocked(oldest.Value.(*entry))
		}
	}

	e := &entry{key: key, claimedAt: now}
	e.element = c.age.PushBack(e)
	c.entries[key] = e
	return true
}

// Release forgets key so it can be claimed again, used when the work the
// claim guarded failed and the client should be allowed to retry.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// Seen reports whether key is currently claimed.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && c.now().Sub(e.claimedAt) < c.ttl
}

// Len returns the number of tracked keys, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) removeLocked(e *entry) {
	c.age.Remove(e.element)
	delete(c.entries, e.key)
}

func (c *Cache) sweep(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.expire()
		case <-c.stop:
			return
		}
	}
}

// expire drops claims older than the TTL. The age list is ordered by claim
// time, so it stops at the first live entry.
func (c *Cache) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.age.Front(); front != nil; front = c.age.Front() {
		e := front.Value.(*entry)
		if now.Sub(e.claimedAt) < c.ttl {
			return
		}
		c.removeLocked(e)
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}
