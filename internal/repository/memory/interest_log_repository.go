package memory

import (
	"context"
	"sync"

	"memcontext-be/internal/entity"
	"memcontext-be/internal/repository/contract"
)

type interestLogRepository struct {
	mu      sync.RWMutex
	byUser  map[string][]*entity.InterestLog
	perUser int
}

// NewInterestLogRepository keeps at most perUser entries for each user.
func NewInterestLogRepository(perUser int) contract.InterestLogRepository {
	if perUser <= 0 {
		perUser = 1000
	}
	return &interestLogRepository{byUser: make(map[string][]*entity.InterestLog), perUser: perUser}
}

func (r *interestLogRepository) Create(_ context.Context, log *entity.InterestLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *log
	logs := append(r.byUser[log.UserID], &cp)
	if over := len(logs) - r.perUser; over > 0 {
		logs = logs[over:]
	}
	r.byUser[log.UserID] = logs
	return nil
}

func (r *interestLogRepository) FindByUserID(_ context.Context, userID string, limit int) ([]*entity.InterestLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := r.byUser[userID]
	if limit <= 0 || limit > len(logs) {
		limit = len(logs)
	}
	out := make([]*entity.InterestLog, 0, limit)
	for i := len(logs) - 1; i >= len(logs)-limit; i-- {
		cp := *logs[i]
		out = append(out, &cp)
	}
	return out, nil
}
