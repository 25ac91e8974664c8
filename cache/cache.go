package cache

import (
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"
)

var (
	DefaultChannelsTTL = 5 * time.Minute
)

// Memo is a mutex-guarded in-memory TTL cache. ccache itself is safe for
// concurrent use, but Fetch callbacks for the same key must not race.
type Memo[T any] struct {
	c   *ccache.Cache[T]
	mux sync.Mutex
}

func New[T any](maxSize int64) *Memo[T] {
	c := ccache.New(
		ccache.Configure[T]().
			MaxSize(maxSize).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)
	return &Memo[T]{
		c:   c,
		mux: sync.Mutex{},
	}
}

func (m *Memo[T]) Fetch(k string, ttl time.Duration, fetch func() (T, error)) (*ccache.Item[T], error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.c.Fetch(k, ttl, fetch)
}

func (m *Memo[T]) Get(k string) *ccache.Item[T] {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.c.Get(k)
}

func (m *Memo[T]) Set(k string, v T, ttl time.Duration) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.c.Set(k, v, ttl)
}

func (m *Memo[T]) Delete(k string) bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.c.Delete(k)
}
