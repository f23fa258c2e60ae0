package implementation

import (
	"context"

	"memcontext-be/internal/entity"
	"memcontext-be/internal/mapper"
	"memcontext-be/internal/model"
	"memcontext-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InterestLogRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.InterestLogMapper
}

func NewInterestLogRepository(db *gorm.DB) contract.InterestLogRepository {
	return &InterestLogRepositoryImpl{
		db:     db,
		mapper: mapper.NewInterestLogMapper(),
	}
}

func (r *InterestLogRepositoryImpl) Create(ctx context.Context, log *entity.InterestLog) error {
	if log.Id == uuid.Nil {
		log.Id = uuid.New()
	}
	m := r.mapper.ToModel(log)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*log = *r.mapper.ToEntity(m)
	return nil
}

func (r *InterestLogRepositoryImpl) FindByUserID(ctx context.Context, userID string, limit int) ([]*entity.InterestLog, error) {
	var models []*model.InterestLog
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("observed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}
