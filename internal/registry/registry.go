// Package registry maps session ids to live memory handles and the
// configuration each session was created with.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"memcontext-be/internal/entity"
	"memcontext-be/internal/pkg/apperror"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/repository/contract"
	"memcontext-be/internal/repository/memory"
	"memcontext-be/pkg/memcontext"

	"github.com/google/uuid"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	touchTimeout      = 2 * time.Second
)

// HandleFactory builds a fresh memory handle from a snapshot.
type HandleFactory func(ctx context.Context, snapshot *entity.SessionSnapshot) (memcontext.Handle, error)

// entry guards one session's handle. Resolve takes the read lock, Clear the write lock.
type entry struct {
	mu     sync.RWMutex
	handle memcontext.Handle
}

type Registry struct {
	sessions  *memory.SessionRepository[*entry]
	snapshots contract.SnapshotRepository
	factory   HandleFactory
	logger    logger.ILogger
}

func New(factory HandleFactory, snapshots contract.SnapshotRepository, ttl time.Duration, log logger.ILogger) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if snapshots == nil {
		snapshots = memory.NewSnapshotRepository(ttl)
	}
	r := &Registry{
		sessions:  memory.NewSessionRepository[*entry](ttl),
		snapshots: snapshots,
		factory:   factory,
		logger:    log,
	}
	r.sessions.OnEvicted(func(sessionID string, _ *entry) {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := r.snapshots.Delete(ctx, sessionID); err != nil {
			r.logger.Warn("Registry", "Failed to drop snapshot of expired session", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	})
	return r
}

func requiresAPIKey(provider string) bool {
	return strings.ToLower(provider) != "ollama"
}

// Create allocates a new session for snapshot. SessionID, AssistantID and
// CreatedAt are filled in when empty.
func (r *Registry) Create(ctx context.Context, snapshot entity.SessionSnapshot) (string, memcontext.Handle, error) {
	if strings.TrimSpace(snapshot.UserID) == "" {
		return "", nil, apperror.New(apperror.KindConfig, "user_id is required")
	}
	if snapshot.APIKey == "" && requiresAPIKey(snapshot.LLMProvider) {
		return "", nil, apperror.New(apperror.KindConfig, "LLM API key is not configured")
	}

	if snapshot.SessionID == "" {
		snapshot.SessionID = uuid.NewString()
	}
	if snapshot.AssistantID == "" {
		snapshot.AssistantID = "assistant_" + snapshot.UserID
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now()
	}

	handle, err := r.factory(ctx, &snapshot)
	if err != nil {
		return "", nil, apperror.Wrap(apperror.KindConfig, "failed to initialize memory system", err)
	}
	if err := r.snapshots.Save(ctx, &snapshot); err != nil {
		return "", nil, fmt.Errorf("save session snapshot: %w", err)
	}
	r.sessions.Save(snapshot.SessionID, &entry{handle: handle})

	r.logger.Info("Registry", "Session created", map[string]interface{}{
		"session_id": snapshot.SessionID,
		"user_id":    snapshot.UserID,
	})
	return snapshot.SessionID, handle, nil
}

// Resolve returns the live handle for sessionID and refreshes the idle timer
// of both the session and its snapshot.
func (r *Registry) Resolve(sessionID string) (memcontext.Handle, error) {
	if sessionID == "" {
		return nil, apperror.ErrNotInitialized
	}
	e, ok := r.sessions.Touch(sessionID)
	if !ok {
		return nil, apperror.ErrNotInitialized
	}
	r.touchSnapshot(sessionID)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handle, nil
}

func (r *Registry) touchSnapshot(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	if err := r.snapshots.Touch(ctx, sessionID); err != nil {
		r.logger.Warn("Registry", "Failed to refresh session snapshot", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

// Clear tears down everything the session's handle persisted and swaps in a
// handle rebuilt from the stored snapshot. Clears of one session never interleave.
func (r *Registry) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperror.ErrNotInitialized
	}
	e, ok := r.sessions.Get(sessionID)
	if !ok {
		return apperror.ErrNotInitialized
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot, err := r.snapshots.FindBySessionID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session snapshot: %w", err)
	}
	if snapshot == nil {
		return apperror.ErrConfigMissing
	}

	if err := e.handle.Teardown(); err != nil {
		return apperror.Wrap(apperror.KindInternal, "failed to clear memories", err)
	}
	handle, err := r.factory(ctx, snapshot)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, "failed to rebuild memory system", err)
	}
	e.handle = handle

	r.logger.Info("Registry", "Session cleared", map[string]interface{}{
		"session_id": sessionID,
		"user_id":    snapshot.UserID,
	})
	return nil
}

// Snapshot returns the configuration the session was created with.
func (r *Registry) Snapshot(ctx context.Context, sessionID string) (*entity.SessionSnapshot, error) {
	if _, ok := r.sessions.Get(sessionID); !ok {
		return nil, apperror.ErrNotInitialized
	}
	snapshot, err := r.snapshots.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, apperror.ErrConfigMissing
	}
	return snapshot, nil
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Count()
}

// IsNotInitialized reports whether err means the session is unknown.
func IsNotInitialized(err error) bool {
	return errors.Is(err, apperror.ErrNotInitialized)
}
