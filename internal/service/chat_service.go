package service

import (
	"context"
	"errors"
	"strings"

	"memcontext-be/internal/dto"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/stream"
	"memcontext-be/internal/transport"
	"memcontext-be/pkg/memcontext"
)

type IChatService interface {
	// Stream writes the full frame sequence of one chat turn to out.
	Stream(ctx context.Context, handle memcontext.Handle, req *dto.ChatRequest, out transport.Emitter) error
	// StreamWS is Stream for WebSocket clients.
	StreamWS(ctx context.Context, handle memcontext.Handle, req *dto.ChatRequest, out transport.Emitter) error
}

type chatService struct {
	sse    *stream.Orchestrator
	ws     *stream.Orchestrator
	logger logger.ILogger
}

func NewChatService(orchestrator *stream.Orchestrator, log logger.ILogger) IChatService {
	return &chatService{
		sse:    orchestrator.WithEndpoint("chat"),
		ws:     orchestrator.WithEndpoint("ws_chat"),
		logger: log,
	}
}

func (s *chatService) Stream(ctx context.Context, handle memcontext.Handle, req *dto.ChatRequest, out transport.Emitter) error {
	return s.run(ctx, s.sse, handle, req, out)
}

func (s *chatService) StreamWS(ctx context.Context, handle memcontext.Handle, req *dto.ChatRequest, out transport.Emitter) error {
	return s.run(ctx, s.ws, handle, req, out)
}

func (s *chatService) run(ctx context.Context, o *stream.Orchestrator, handle memcontext.Handle, req *dto.ChatRequest, out transport.Emitter) error {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = handle.UserID()
	}

	err := o.Run(ctx, stream.Turn{
		Handle:  handle,
		UserID:  userID,
		Message: req.Message,
	}, out)
	if err != nil && !errors.Is(err, stream.ErrClientGone) {
		s.logger.Warn("ChatService", "Chat turn ended with error", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
	return err
}
