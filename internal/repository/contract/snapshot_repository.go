package contract

import (
	"context"

	"memcontext-be/internal/entity"
)

type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *entity.SessionSnapshot) error
	// FindBySessionID returns nil, nil when no snapshot is stored.
	FindBySessionID(ctx context.Context, sessionID string) (*entity.SessionSnapshot, error)
	// Touch restarts the snapshot's expiry. A missing snapshot is not an error.
	Touch(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
}
