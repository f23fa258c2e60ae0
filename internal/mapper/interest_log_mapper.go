// Mapper for InterestLog entity <-> model conversion
package mapper

import (
	"memcontext-be/internal/entity"
	"memcontext-be/internal/model"
)

type InterestLogMapper struct{}

func NewInterestLogMapper() *InterestLogMapper {
	return &InterestLogMapper{}
}

func (m *InterestLogMapper) ToEntity(model *model.InterestLog) *entity.InterestLog {
	if model == nil {
		return nil
	}
	return &entity.InterestLog{
		Id:                model.Id,
		UserID:            model.UserID,
		Interests:         []string(model.Interests),
		PersonalityTraits: []string(model.PersonalityTraits),
		ObservedAt:        model.ObservedAt,
	}
}

func (m *InterestLogMapper) ToModel(entity *entity.InterestLog) *model.InterestLog {
	if entity == nil {
		return nil
	}
	return &model.InterestLog{
		Id:                entity.Id,
		UserID:            entity.UserID,
		Interests:         entity.Interests,
		PersonalityTraits: entity.PersonalityTraits,
		ObservedAt:        entity.ObservedAt,
	}
}

func (m *InterestLogMapper) ToEntities(models []*model.InterestLog) []*entity.InterestLog {
	entities := make([]*entity.InterestLog, 0, len(models))
	for _, mdl := range models {
		entities = append(entities, m.ToEntity(mdl))
	}
	return entities
}
