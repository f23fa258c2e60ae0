// Domain entity for memory sessions
package entity

import "time"

// SessionSnapshot is the immutable configuration a session was created with.
// Clearing a session rebuilds its memory handle from it.
type SessionSnapshot struct {
	SessionID           string    `json:"session_id"`
	UserID              string    `json:"user_id"`
	AssistantID         string    `json:"assistant_id"`
	LLMProvider         string    `json:"llm_provider"`
	APIKey              string    `json:"api_key"`
	BaseURL             string    `json:"base_url"`
	Model               string    `json:"model"`
	EmbeddingProvider   string    `json:"embedding_provider"`
	EmbeddingModel      string    `json:"embedding_model"`
	DataStoragePath     string    `json:"data_storage_path"`
	FileStorageBasePath string    `json:"file_storage_base_path"`
	CreatedAt           time.Time `json:"created_at"`
}
