package service

import (
	"context"
	"encoding/json"
	"time"

	"memcontext-be/internal/dto"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/pkg/profile"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IPublisherService interface {
	Publish(ctx context.Context, payload []byte) error
}

type publisherService struct {
	topicName string
	pubSub    *gochannel.GoChannel
}

func NewPublisherService(topicName string, pubSub *gochannel.GoChannel) IPublisherService {
	return &publisherService{
		topicName: topicName,
		pubSub:    pubSub,
	}
}

func (p *publisherService) Publish(ctx context.Context, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return p.pubSub.Publish(p.topicName, msg)
}

// InterestRecorder turns enrichment observations into bus messages so the
// chat path never waits on storage.
type InterestRecorder struct {
	publisher IPublisherService
	logger    logger.ILogger
}

func NewInterestRecorder(publisher IPublisherService, log logger.ILogger) *InterestRecorder {
	return &InterestRecorder{publisher: publisher, logger: log}
}

func (r *InterestRecorder) RecordInterest(ctx context.Context, userID string, tags profile.Tags) {
	if tags.IsEmpty() {
		return
	}

	payload, err := json.Marshal(dto.InterestObservedMessage{
		UserID:            userID,
		Interests:         tags.Interests,
		PersonalityTraits: tags.PersonalityTraits,
		ObservedAt:        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		r.logger.Error("InterestRecorder", "Failed to marshal observation", map[string]interface{}{"error": err})
		return
	}
	if err := r.publisher.Publish(ctx, payload); err != nil {
		r.logger.Warn("InterestRecorder", "Failed to publish observation", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}
