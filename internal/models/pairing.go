package models

import (
	"time"

	"github.com/lib/pq"
)

// PairingSession spans the time a display and a trigger were paired in a
// room. ReactionTimes keeps the completed samples in arrival order.
type PairingSession struct {
	ID            uint   `gorm:"primaryKey"`
	RoomCode      string `gorm:"size:16;not null;index"`
	StartedAt     time.Time
	EndedAt       *time.Time
	ReactionTimes pq.Int64Array `gorm:"type:bigint[]"`
	FalseStarts   int           `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Reaction event kinds.
const (
	EventReaction   = "reaction"
	EventEarlyClick = "early_click"
)

// ReactionEvent is one telemetry report relayed from a display.
type ReactionEvent struct {
	ID             uint            `gorm:"primaryKey"`
	SessionID      *uint           `gorm:"index"`
	Session        *PairingSession `gorm:"foreignKey:SessionID;constraint:OnDelete:SET NULL"`
	RoomCode       string          `gorm:"size:16;not null;index"`
	Kind           string          `gorm:"size:16;not null"`
	ReactionTimeMs *int64
	CreatedAt      time.Time `gorm:"index"`
}
