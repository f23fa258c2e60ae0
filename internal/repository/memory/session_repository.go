package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps live session values in process memory. Entries expire
// after ttl without access; Touch restarts the clock.
type SessionRepository[T any] struct {
	cache *cache.Cache
}

func NewSessionRepository[T any](ttl time.Duration) *SessionRepository[T] {
	cleanup := ttl / 6
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &SessionRepository[T]{
		cache: cache.New(ttl, cleanup),
	}
}

func (r *SessionRepository[T]) Save(sessionID string, value T) {
	r.cache.Set(sessionID, value, cache.DefaultExpiration)
}

func (r *SessionRepository[T]) Get(sessionID string) (T, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(T), true
	}
	var zero T
	return zero, false
}

// Touch returns the value and extends its lifetime.
func (r *SessionRepository[T]) Touch(sessionID string) (T, bool) {
	v, ok := r.Get(sessionID)
	if ok {
		r.cache.Set(sessionID, v, cache.DefaultExpiration)
	}
	return v, ok
}

func (r *SessionRepository[T]) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

func (r *SessionRepository[T]) Count() int {
	return r.cache.ItemCount()
}

// OnEvicted registers fn for values removed by expiry or Delete.
func (r *SessionRepository[T]) OnEvicted(fn func(sessionID string, value T)) {
	r.cache.OnEvicted(func(k string, v interface{}) {
		fn(k, v.(T))
	})
}
