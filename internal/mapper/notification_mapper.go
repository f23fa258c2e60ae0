package mapper

import (
	"memcontext-be/internal/entity"
	"memcontext-be/internal/model"

	"github.com/google/uuid"
)

type NotificationMapper struct{}

func NewNotificationMapper() *NotificationMapper {
	return &NotificationMapper{}
}

func (m *NotificationMapper) ToEntity(model *model.Notification) *entity.Notification {
	if model == nil {
		return nil
	}
	return &entity.Notification{
		ID:        model.ID.String(),
		UserID:    model.UserID,
		Type:      model.TypeCode,
		Title:     model.Title,
		Message:   model.Message,
		Data:      map[string]interface{}(model.Metadata),
		IsRead:    model.IsRead,
		ReadAt:    model.ReadAt,
		CreatedAt: model.CreatedAt,
	}
}

// ToModel assigns a fresh id when the entity's id is not a UUID.
func (m *NotificationMapper) ToModel(entity *entity.Notification) *model.Notification {
	if entity == nil {
		return nil
	}
	id, err := uuid.Parse(entity.ID)
	if err != nil {
		id = uuid.New()
	}
	return &model.Notification{
		ID:        id,
		UserID:    entity.UserID,
		TypeCode:  entity.Type,
		Title:     entity.Title,
		Message:   entity.Message,
		Metadata:  entity.Data,
		IsRead:    entity.IsRead,
		ReadAt:    entity.ReadAt,
		CreatedAt: entity.CreatedAt,
	}
}

func (m *NotificationMapper) ToEntities(models []*model.Notification) []*entity.Notification {
	entities := make([]*entity.Notification, 0, len(models))
	for _, mdl := range models {
		entities = append(entities, m.ToEntity(mdl))
	}
	return entities
}
