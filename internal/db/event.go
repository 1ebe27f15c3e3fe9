package db

import (
	"time"

	"gorm.io/datatypes"
)

// Event is the append-only room lifecycle log. Rooms themselves live in
// memory; events are what survives a room for later inspection.
type Event struct {
	ID        int64          `gorm:"primaryKey"`
	RoomCode  string         `gorm:"size:12;index;not null"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
