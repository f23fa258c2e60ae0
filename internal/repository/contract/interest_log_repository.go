package contract

import (
	"context"

	"memcontext-be/internal/entity"
)

type InterestLogRepository interface {
	Create(ctx context.Context, log *entity.InterestLog) error
	// FindByUserID returns the newest entries first.
	FindByUserID(ctx context.Context, userID string, limit int) ([]*entity.InterestLog, error)
}
