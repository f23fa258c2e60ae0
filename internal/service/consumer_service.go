package service

import (
	"context"
	"encoding/json"
	"time"

	"memcontext-be/internal/dto"
	"memcontext-be/internal/entity"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/repository/contract"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	repo      contract.InterestLogRepository
	logger    logger.ILogger
}

// NewConsumerService persists interest observations published by InterestRecorder.
func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	repo contract.InterestLogRepository,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		repo:      repo,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.InterestObservedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("InterestConsumer", "Failed to unmarshal message", map[string]interface{}{"error": err})
		msg.Ack()
		return
	}

	observedAt, err := time.Parse(time.RFC3339, payload.ObservedAt)
	if err != nil {
		observedAt = time.Now().UTC()
	}

	err = cs.repo.Create(ctx, &entity.InterestLog{
		Id:                uuid.New(),
		UserID:            payload.UserID,
		Interests:         payload.Interests,
		PersonalityTraits: payload.PersonalityTraits,
		ObservedAt:        observedAt,
	})
	if err != nil {
		// gochannel redelivers a Nack immediately, so a storage outage would spin.
		cs.logger.Error("InterestConsumer", "Failed to store interest log", map[string]interface{}{
			"user_id": payload.UserID,
			"error":   err,
		})
		msg.Ack()
		return
	}

	cs.logger.Debug("InterestConsumer", "Interest log stored", map[string]interface{}{"user_id": payload.UserID})
	msg.Ack()
}
