// Domain entity for observed user interests
package entity

import (
	"time"

	"github.com/google/uuid"
)

// InterestLog records the tags derived for a user at the time of one chat turn.
type InterestLog struct {
	Id                uuid.UUID
	UserID            string
	Interests         []string
	PersonalityTraits []string
	ObservedAt        time.Time
}
