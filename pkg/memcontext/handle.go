// Package memcontext is the boundary to the per-session memory engine: recent
// turns, the user profile, the primary response generator and media ingestion.
package memcontext

import (
	"context"

	"memcontext-be/pkg/llm"
)

type Turn struct {
	UserInput     string                 `json:"user_input"`
	AgentResponse string                 `json:"agent_response"`
	Timestamp     string                 `json:"timestamp"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

// ProgressFunc receives a completion fraction in [0, 1] and a human readable step.
type ProgressFunc func(progress float64, message string)

type IngestRequest struct {
	Source          string
	ConverterType   string
	AgentResponse   string
	ConverterKwargs map[string]interface{}
}

type IngestResult struct {
	Status          string   `json:"status"`
	ChunksWritten   int      `json:"chunks_written"`
	FileID          string   `json:"file_id"`
	Timestamps      []string `json:"timestamps"`
	StoragePath     string   `json:"storage_path,omitempty"`
	StorageBasePath string   `json:"storage_base_path,omitempty"`
}

type ShortTermState struct {
	Capacity     int    `json:"capacity"`
	CurrentCount int    `json:"current_count"`
	Memories     []Turn `json:"memories"`
}

type MidTermSession struct {
	ID         string   `json:"id"`
	Summary    string   `json:"summary"`
	Keywords   []string `json:"keywords"`
	Heat       float64  `json:"heat"`
	VisitCount int      `json:"visit_count"`
	LastVisit  string   `json:"last_visit"`
	PageCount  int      `json:"page_count"`
}

type MidTermState struct {
	Capacity      int              `json:"capacity"`
	CurrentCount  int              `json:"current_count"`
	Sessions      []MidTermSession `json:"sessions"`
	HeatThreshold float64          `json:"heat_threshold"`
}

type LongTermState struct {
	UserProfile        string   `json:"user_profile"`
	UserKnowledge      []string `json:"user_knowledge"`
	AssistantKnowledge []string `json:"assistant_knowledge"`
}

type State struct {
	ShortTerm ShortTermState `json:"short_term"`
	MidTerm   MidTermState   `json:"mid_term"`
	LongTerm  LongTermState  `json:"long_term"`
}

// Handle is one user's memory system. It is owned by exactly one session.
type Handle interface {
	UserID() string
	AssistantID() string
	Model() string
	// Client is the language model client bound to this session's credentials.
	Client() llm.LLMProvider

	// UserProfile returns the raw profile text, empty when none exists yet.
	UserProfile() string
	// RecentTurns returns up to n most recent turns, oldest first.
	RecentTurns(n int) []Turn

	// ResponseStream generates the reply to input fragment by fragment and records
	// the completed turn. Semantics of the channels follow llm.LLMProvider.ChatStream.
	ResponseStream(ctx context.Context, input string) (<-chan string, <-chan error)
	AddMemory(ctx context.Context, turn Turn) error
	AddMultimodal(ctx context.Context, req IngestRequest, progress ProgressFunc) (*IngestResult, error)
	// Analyze refreshes the user profile from the stored turns.
	Analyze(ctx context.Context) error

	State() State
	// Teardown removes everything persisted for this user and assistant.
	Teardown() error
}
