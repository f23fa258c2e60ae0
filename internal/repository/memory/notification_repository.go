package memory

import (
	"context"
	"sync"
	"time"

	"memcontext-be/internal/entity"
	"memcontext-be/internal/repository/contract"

	"github.com/google/uuid"
)

type notificationRepository struct {
	mu      sync.RWMutex
	byUser  map[string][]*entity.Notification
	perUser int
}

// NewNotificationRepository keeps the perUser most recent notifications of each user.
func NewNotificationRepository(perUser int) contract.NotificationRepository {
	if perUser <= 0 {
		perUser = 200
	}
	return &notificationRepository{byUser: make(map[string][]*entity.Notification), perUser: perUser}
}

func (r *notificationRepository) Create(_ context.Context, n *entity.Notification) error {
	if _, err := uuid.Parse(n.ID); err != nil {
		n.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *n
	list := append(r.byUser[n.UserID], &cp)
	if over := len(list) - r.perUser; over > 0 {
		list = list[over:]
	}
	r.byUser[n.UserID] = list
	return nil
}

func (r *notificationRepository) FindByUserID(_ context.Context, userID string, limit, offset int) ([]*entity.Notification, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byUser[userID]
	total := int64(len(list))

	out := make([]*entity.Notification, 0)
	for i := len(list) - 1 - offset; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *list[i]
		out = append(out, &cp)
	}
	return out, total, nil
}

func (r *notificationRepository) CountUnread(_ context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, item := range r.byUser[userID] {
		if !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *notificationRepository) MarkAllAsRead(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, item := range r.byUser[userID] {
		if !item.IsRead {
			item.IsRead = true
			item.ReadAt = &now
		}
	}
	return nil
}
