package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/JonMunkholm/csvwdc/internal/infer"
)

type memEntry struct {
	key       string
	res       *infer.Result
	expiresAt time.Time
}

// Memory is an in-process cache. When full, the least recently used entry
// is evicted.
type Memory struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	order      *list.List // front is most recently used
	items      map[string]*list.Element
	closed     bool

	now func() time.Time
}

// NewMemory returns a memory cache holding at most maxEntries results
// (unbounded when maxEntries <= 0). Entries expire after ttl unless ttl <= 0.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	return &Memory{
		maxEntries: maxEntries,
		ttl:        ttl,
		order:      list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

func (m *Memory) Get(key string) (*infer.Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, ErrClosed
	}

	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*memEntry)
	if expired(e.expiresAt, m.now()) {
		m.removeElement(el)
		return nil, false, nil
	}
	m.order.MoveToFront(el)
	return e.res, true, nil
}

func (m *Memory) Put(key string, res *infer.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	exp := expiry(m.ttl, m.now())
	if el, ok := m.items[key]; ok {
		e := el.Value.(*memEntry)
		e.res = res
		e.expiresAt = exp
		m.order.MoveToFront(el)
		return nil
	}

	m.items[key] = m.order.PushFront(&memEntry{key: key, res: res, expiresAt: exp})
	for m.maxEntries > 0 && m.order.Len() > m.maxEntries {
		m.removeElement(m.order.Back())
	}
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if el, ok := m.items[key]; ok {
		m.removeElement(el)
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.items = nil
	m.order.Init()
	return nil
}

func (m *Memory) removeElement(el *list.Element) {
	e := m.order.Remove(el).(*memEntry)
	delete(m.items, e.key)
}
