package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type InterestLog struct {
	Id                uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            string                      `gorm:"type:varchar(255);not null;index:idx_interest_logs_user_observed,priority:1" json:"user_id"`
	Interests         datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"interests"`
	PersonalityTraits datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"personality_traits"`
	ObservedAt        time.Time                   `gorm:"not null;index:idx_interest_logs_user_observed,priority:2" json:"observed_at"`
}

func (InterestLog) TableName() string {
	return "interest_logs"
}
