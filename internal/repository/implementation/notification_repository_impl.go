package implementation

import (
	"context"
	"time"

	"memcontext-be/internal/entity"
	"memcontext-be/internal/mapper"
	"memcontext-be/internal/model"
	"memcontext-be/internal/repository/contract"

	"gorm.io/gorm"
)

type NotificationRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.NotificationMapper
}

func NewNotificationRepository(db *gorm.DB) contract.NotificationRepository {
	return &NotificationRepositoryImpl{db: db, mapper: mapper.NewNotificationMapper()}
}

func (r *NotificationRepositoryImpl) Create(ctx context.Context, notification *entity.Notification) error {
	m := r.mapper.ToModel(notification)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	notification.ID = m.ID.String()
	return nil
}

func (r *NotificationRepositoryImpl) FindByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Notification, int64, error) {
	var notifications []*model.Notification
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Notification{}).Where("user_id = ?", userID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error
	if err != nil {
		return nil, 0, err
	}

	return r.mapper.ToEntities(notifications), total, nil
}

func (r *NotificationRepositoryImpl) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepositoryImpl) MarkAllAsRead(ctx context.Context, userID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": now,
		}).Error
}
