package contract

import (
	"context"

	"memcontext-be/internal/entity"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
	// FindByUserID returns one page, newest first, and the user's total count.
	FindByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Notification, int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkAllAsRead(ctx context.Context, userID string) error
}
