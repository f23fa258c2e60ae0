package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"memcontext-be/internal/entity"
	"memcontext-be/internal/repository/contract"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "memcontext:session:"

type snapshotRepository struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewSnapshotRepository stores snapshots as JSON strings with a TTL, so sessions
// can be cleared and rebuilt after a restart of this process.
func NewSnapshotRepository(client *goredis.Client, ttl time.Duration) contract.SnapshotRepository {
	return &snapshotRepository{client: client, ttl: ttl}
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

func (r *snapshotRepository) Save(ctx context.Context, snapshot *entity.SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return r.client.Set(ctx, key(snapshot.SessionID), data, r.ttl).Err()
}

func (r *snapshotRepository) FindBySessionID(ctx context.Context, sessionID string) (*entity.SessionSnapshot, error) {
	data, err := r.client.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap entity.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (r *snapshotRepository) Touch(ctx context.Context, sessionID string) error {
	return r.client.Expire(ctx, key(sessionID), r.ttl).Err()
}

func (r *snapshotRepository) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, key(sessionID)).Err()
}
