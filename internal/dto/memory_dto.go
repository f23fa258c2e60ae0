package dto

import (
	"memcontext-be/internal/entity"
	"memcontext-be/pkg/memcontext"
	"memcontext-be/pkg/profile"
)

type InitMemoryRequest struct {
	UserID              string `json:"user_id" validate:"required"`
	FileStorageBasePath string `json:"file_storage_base_path"`
}

type InitMemoryResponse struct {
	Success           bool   `json:"success"`
	SessionID         string `json:"session_id"`
	UserID            string `json:"user_id"`
	AssistantID       string `json:"assistant_id"`
	Model             string `json:"model"`
	BaseURL           string `json:"base_url"`
	EmbeddingProvider string `json:"embedding_provider"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type MemoryStateResponse = memcontext.State

type PersonalityAnalysisResponse struct {
	Success             bool           `json:"success"`
	PersonalityAnalysis profile.Traits `json:"personality_analysis"`
}

type ConversationDTO struct {
	UserInput     string `json:"user_input"`
	AgentResponse string `json:"agent_response"`
	Timestamp     string `json:"timestamp"`
}

type ImportConversationsRequest struct {
	Conversations []ConversationDTO `json:"conversations"`
}

type ImportConversationsResponse struct {
	Success       bool   `json:"success"`
	ImportedCount int    `json:"imported_count"`
	Message       string `json:"message"`
}

// InterestObservedMessage is published on the event bus for every enrichment run.
type InterestObservedMessage struct {
	UserID            string   `json:"user_id"`
	Interests         []string `json:"interests"`
	PersonalityTraits []string `json:"personality_traits"`
	ObservedAt        string   `json:"observed_at"`
}

type InterestLogEntry struct {
	Interests         []string `json:"interests"`
	PersonalityTraits []string `json:"personality_traits"`
	ObservedAt        string   `json:"observed_at"`
}

type InterestLogResponse struct {
	Success bool               `json:"success"`
	UserID  string             `json:"user_id"`
	Entries []InterestLogEntry `json:"entries"`
}

type NotificationListResponse struct {
	Success       bool                  `json:"success"`
	Notifications []entity.Notification `json:"notifications"`
	Total         int64                 `json:"total"`
	Unread        int64                 `json:"unread"`
}
