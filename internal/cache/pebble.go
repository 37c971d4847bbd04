package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/JonMunkholm/csvwdc/internal/infer"
)

const (
	resultPrefix   = "result/"
	blockCacheSize = 32 << 20
)

// stored is the on-disk form of a cached result.
type stored struct {
	ExpiresAt time.Time     `json:"expiresAt"`
	Result    *infer.Result `json:"result"`
}

// Pebble is a cache persisted in a pebble database.
type Pebble struct {
	mu     sync.RWMutex
	db     *pebble.DB
	ttl    time.Duration
	closed bool

	now func() time.Time
}

// OpenPebble opens (or creates) a pebble cache in dir.
func OpenPebble(dir string, ttl time.Duration) (*Pebble, error) {
	blockCache := pebble.NewCache(blockCacheSize)
	defer blockCache.Unref()

	db, err := pebble.Open(dir, &pebble.Options{Cache: blockCache})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	return &Pebble{db: db, ttl: ttl, now: time.Now}, nil
}

func resultKey(key string) []byte {
	return []byte(resultPrefix + key)
}

func (p *Pebble) Get(key string) (*infer.Result, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, false, ErrClosed
	}

	value, closer, err := p.db.Get(resultKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("pebble get: %w", err)
	}

	var s stored
	err = json.Unmarshal(value, &s)
	closer.Close()
	if err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}

	if expired(s.ExpiresAt, p.now()) {
		if err := p.db.Delete(resultKey(key), pebble.NoSync); err != nil {
			return nil, false, fmt.Errorf("pebble delete: %w", err)
		}
		return nil, false, nil
	}
	return s.Result, true, nil
}

func (p *Pebble) Put(key string, res *infer.Result) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	data, err := json.Marshal(stored{ExpiresAt: expiry(p.ttl, p.now()), Result: res})
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := p.db.Set(resultKey(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (p *Pebble) Delete(key string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	if err := p.db.Delete(resultKey(key), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

func (p *Pebble) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
