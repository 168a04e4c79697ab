package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationLog records the delivery outcome of one event.
type NotificationLog struct {
	ID          string             `json:"id" gorm:"primaryKey;size:36"`
	EventID     string             `json:"event_id" gorm:"index;not null"`
	EventType   EventType          `json:"event_type" gorm:"not null"`
	Channel     string             `json:"channel" gorm:"not null"`
	Status      NotificationStatus `json:"status" gorm:"not null"`
	Chunks      int                `json:"chunks"`
	Error       *string            `json:"error"`
	DeliveredAt *time.Time         `json:"delivered_at"`
	CreatedAt   time.Time          `json:"created_at"`
}

type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
	NotificationSkipped NotificationStatus = "SKIPPED"
)

func (n *NotificationLog) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}
