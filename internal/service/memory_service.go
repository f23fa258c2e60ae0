package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"memcontext-be/internal/dto"
	"memcontext-be/internal/entity"
	"memcontext-be/internal/pkg/apperror"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/registry"
	"memcontext-be/internal/repository/contract"
	"memcontext-be/pkg/memcontext"
	"memcontext-be/pkg/profile"
)

type IMemoryService interface {
	Init(ctx context.Context, req *dto.InitMemoryRequest) (*dto.InitMemoryResponse, error)
	Clear(ctx context.Context, sessionID string) (*dto.MessageResponse, error)
	State(ctx context.Context, handle memcontext.Handle) (*dto.MemoryStateResponse, error)
	Personality(ctx context.Context, handle memcontext.Handle) (*dto.PersonalityAnalysisResponse, error)
	TriggerAnalysis(ctx context.Context, handle memcontext.Handle) (*dto.MessageResponse, error)
	ImportConversations(ctx context.Context, handle memcontext.Handle, req *dto.ImportConversationsRequest) (*dto.ImportConversationsResponse, error)
	InterestLog(ctx context.Context, handle memcontext.Handle, limit int) (*dto.InterestLogResponse, error)
}

type memoryService struct {
	registry  *registry.Registry
	defaults  entity.SessionSnapshot
	interests contract.InterestLogRepository
	logger    logger.ILogger
}

// NewMemoryService creates sessions from defaults, the server-side LLM and storage settings.
func NewMemoryService(reg *registry.Registry, defaults entity.SessionSnapshot, interests contract.InterestLogRepository, log logger.ILogger) IMemoryService {
	return &memoryService{
		registry:  reg,
		defaults:  defaults,
		interests: interests,
		logger:    log,
	}
}

func (s *memoryService) Init(ctx context.Context, req *dto.InitMemoryRequest) (*dto.InitMemoryResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, apperror.New(apperror.KindConfig, "user_id is required")
	}

	snapshot := s.defaults
	snapshot.UserID = userID
	snapshot.AssistantID = "assistant_" + userID
	if base := strings.TrimSpace(req.FileStorageBasePath); base != "" {
		snapshot.FileStorageBasePath = base
	}

	sessionID, _, err := s.registry.Create(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	return &dto.InitMemoryResponse{
		Success:           true,
		SessionID:         sessionID,
		UserID:            userID,
		AssistantID:       snapshot.AssistantID,
		Model:             snapshot.Model,
		BaseURL:           snapshot.BaseURL,
		EmbeddingProvider: snapshot.EmbeddingProvider,
	}, nil
}

func (s *memoryService) Clear(ctx context.Context, sessionID string) (*dto.MessageResponse, error) {
	if err := s.registry.Clear(ctx, sessionID); err != nil {
		return nil, err
	}
	return &dto.MessageResponse{Success: true, Message: "All memories cleared successfully"}, nil
}

func (s *memoryService) State(_ context.Context, handle memcontext.Handle) (*dto.MemoryStateResponse, error) {
	state := handle.State()
	return &state, nil
}

func (s *memoryService) Personality(_ context.Context, handle memcontext.Handle) (*dto.PersonalityAnalysisResponse, error) {
	raw := handle.UserProfile()
	if profile.Empty(raw) {
		return nil, apperror.New(apperror.KindValidation, "No user profile available for analysis")
	}
	return &dto.PersonalityAnalysisResponse{
		Success:             true,
		PersonalityAnalysis: profile.ParseTraits(raw),
	}, nil
}

func (s *memoryService) TriggerAnalysis(ctx context.Context, handle memcontext.Handle) (*dto.MessageResponse, error) {
	if err := handle.Analyze(ctx); err != nil {
		if errors.Is(err, memcontext.ErrNothingToAnalyze) {
			return nil, apperror.New(apperror.KindValidation, "No conversation memory to analyze yet")
		}
		return nil, apperror.Wrap(apperror.KindInternal, "analysis failed", err)
	}
	s.logger.Info("MemoryService", "Profile analysis completed", map[string]interface{}{
		"user_id": handle.UserID(),
	})
	return &dto.MessageResponse{Success: true, Message: "Analysis triggered successfully"}, nil
}

func (s *memoryService) ImportConversations(ctx context.Context, handle memcontext.Handle, req *dto.ImportConversationsRequest) (*dto.ImportConversationsResponse, error) {
	if len(req.Conversations) == 0 {
		return nil, apperror.New(apperror.KindValidation, "No conversations provided")
	}

	imported := 0
	for i, conv := range req.Conversations {
		if conv.UserInput == "" || conv.AgentResponse == "" {
			s.logger.Warn("MemoryService", "Skipping invalid conversation", map[string]interface{}{
				"index": i,
			})
			continue
		}
		err := handle.AddMemory(ctx, memcontext.Turn{
			UserInput:     conv.UserInput,
			AgentResponse: conv.AgentResponse,
			Timestamp:     conv.Timestamp,
		})
		if err != nil {
			return nil, apperror.Wrap(apperror.KindInternal, "import failed", err)
		}
		imported++
	}

	return &dto.ImportConversationsResponse{
		Success:       true,
		ImportedCount: imported,
		Message:       fmt.Sprintf("Successfully imported %d conversations", imported),
	}, nil
}

const maxInterestLogLimit = 100

func (s *memoryService) InterestLog(ctx context.Context, handle memcontext.Handle, limit int) (*dto.InterestLogResponse, error) {
	if limit <= 0 || limit > maxInterestLogLimit {
		limit = 20
	}
	logs, err := s.interests.FindByUserID(ctx, handle.UserID(), limit)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "failed to load interest log", err)
	}

	entries := make([]dto.InterestLogEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, dto.InterestLogEntry{
			Interests:         l.Interests,
			PersonalityTraits: l.PersonalityTraits,
			ObservedAt:        l.ObservedAt.UTC().Format(time.RFC3339),
		})
	}
	return &dto.InterestLogResponse{Success: true, UserID: handle.UserID(), Entries: entries}, nil
}
