package memory

import (
	"context"
	"time"

	"memcontext-be/internal/entity"
	"memcontext-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

type snapshotRepository struct {
	cache *cache.Cache
}

// NewSnapshotRepository stores snapshots in process memory. Used when no Redis is configured.
func NewSnapshotRepository(ttl time.Duration) contract.SnapshotRepository {
	return &snapshotRepository{cache: cache.New(ttl, 10*time.Minute)}
}

func (r *snapshotRepository) Save(_ context.Context, snapshot *entity.SessionSnapshot) error {
	cp := *snapshot
	r.cache.Set(snapshot.SessionID, &cp, cache.DefaultExpiration)
	return nil
}

func (r *snapshotRepository) FindBySessionID(_ context.Context, sessionID string) (*entity.SessionSnapshot, error) {
	x, found := r.cache.Get(sessionID)
	if !found {
		return nil, nil
	}
	cp := *x.(*entity.SessionSnapshot)
	return &cp, nil
}

func (r *snapshotRepository) Touch(_ context.Context, sessionID string) error {
	if x, found := r.cache.Get(sessionID); found {
		r.cache.Set(sessionID, x, cache.DefaultExpiration)
	}
	return nil
}

func (r *snapshotRepository) Delete(_ context.Context, sessionID string) error {
	r.cache.Delete(sessionID)
	return nil
}
