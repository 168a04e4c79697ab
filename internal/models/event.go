package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventOrderCreated          EventType = "order.created"
	EventWarrantyIssued        EventType = "warranty.issued"
	EventWarrantyCancelled     EventType = "warranty.cancelled"
	EventInventoryTransitioned EventType = "inventory.transitioned"
	EventDeviceReceived        EventType = "device.received"
)

// Event is what services publish and the notifier consumes. Only the payload
// fields matching Type are set.
type Event struct {
	ID         string              `json:"id"`
	Type       EventType           `json:"type"`
	OccurredAt time.Time           `json:"occurred_at"`
	Order      *Order              `json:"order,omitempty"`
	Contracts  []*WarrantyContract `json:"contracts,omitempty"`
	Transition *Transition         `json:"transition,omitempty"`
	Device     *Device             `json:"device,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

func NewEvent(eventType EventType, at time.Time) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: at,
	}
}
