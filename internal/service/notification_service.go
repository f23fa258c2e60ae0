package service

import (
	"context"
	"fmt"

	"memcontext-be/internal/dto"
	"memcontext-be/internal/entity"
	"memcontext-be/internal/pkg/apperror"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/repository/contract"
	"memcontext-be/pkg/events"
	pktNats "memcontext-be/pkg/nats"

	"github.com/google/uuid"
)

const (
	notifierDurable          = "memcontext-notifier"
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationDelivery pushes real-time updates, typically the WebSocket Hub.
type NotificationDelivery interface {
	Send(notification entity.Notification)
}

// NotificationService turns ingest events from NATS into user notifications,
// stores them and pushes them to connected sockets.
type NotificationService struct {
	subscriber *pktNats.Subscriber
	repo       contract.NotificationRepository
	delivery   NotificationDelivery
	logger     logger.ILogger
}

func NewNotificationService(sub *pktNats.Subscriber, repo contract.NotificationRepository, delivery NotificationDelivery, log logger.ILogger) *NotificationService {
	return &NotificationService{
		subscriber: sub,
		repo:       repo,
		delivery:   delivery,
		logger:     log,
	}
}

// Start begins listening to the event bus. Without a subscriber it does nothing.
func (s *NotificationService) Start(ctx context.Context) {
	if s.subscriber == nil {
		s.logger.Warn("NotificationService", "NATS unavailable, ingest notifications disabled", nil)
		return
	}
	if err := s.subscriber.Subscribe(ctx, "events.ingest.>", notifierDurable, s.HandleEvent); err != nil {
		s.logger.Error("NotificationService", "Failed to start notification subscriber", map[string]interface{}{"error": err})
		return
	}
	s.logger.Info("NotificationService", "Listening to events.ingest.>", nil)
}

func (s *NotificationService) HandleEvent(ctx context.Context, event events.Event) error {
	userID := events.UserID(event)
	if userID == "" {
		s.logger.Warn("NotificationService", "Event without user_id", map[string]interface{}{"type": event.EventType()})
		return nil
	}

	notif, ok := buildNotification(userID, event)
	if !ok {
		return nil
	}
	// A storage failure still delivers the live notification.
	if err := s.repo.Create(ctx, &notif); err != nil {
		s.logger.Error("NotificationService", "Failed to store notification", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
	s.delivery.Send(notif)
	return nil
}

// List returns one page of the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, limit, offset int) (*dto.NotificationListResponse, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, total, err := s.repo.FindByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "failed to load notifications", err)
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "failed to load notifications", err)
	}

	res := &dto.NotificationListResponse{
		Success:       true,
		Notifications: make([]entity.Notification, 0, len(items)),
		Total:         total,
		Unread:        unread,
	}
	for _, n := range items {
		res.Notifications = append(res.Notifications, *n)
	}
	return res, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllAsRead(ctx, userID); err != nil {
		return apperror.Wrap(apperror.KindInternal, "failed to update notifications", err)
	}
	return nil
}

func buildNotification(userID string, event events.Event) (entity.Notification, bool) {
	payload := event.Payload()
	source, _ := payload["source"].(string)

	n := entity.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      event.EventType(),
		Data:      payload,
		CreatedAt: event.Timestamp(),
	}
	switch event.EventType() {
	case events.IngestCompleted:
		n.Title = "Ingestion finished"
		n.Message = fmt.Sprintf("%s was added to your memory (%v chunks).", source, payload["chunks_written"])
	case events.IngestFailed:
		n.Title = "Ingestion failed"
		n.Message = fmt.Sprintf("%s could not be added: %v", source, payload["error"])
	default:
		return entity.Notification{}, false
	}
	return n, true
}
