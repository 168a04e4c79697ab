package validation

import (
	"errors"
	"fmt"

	"phoneshop/internal/logger"
	"phoneshop/internal/models"
)

var ErrInvalidEvent = errors.New("invalid event")

type Validator struct {
	logger *logger.Logger
}

func New(logger *logger.Logger) *Validator {
	return &Validator{
		logger: logger,
	}
}

// ValidateEvent checks that an event read off the topic carries the payload
// its type needs for formatting.
func (v *Validator) ValidateEvent(event *models.Event) error {
	if event == nil {
		return fmt.Errorf("%w: empty event", ErrInvalidEvent)
	}
	if event.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if event.OccurredAt.IsZero() {
		return fmt.Errorf("%w: %s has no timestamp", ErrInvalidEvent, event.ID)
	}

	switch event.Type {
	case models.EventOrderCreated:
		if event.Order == nil || event.Order.ID == "" {
			return fmt.Errorf("%w: %s without order", ErrInvalidEvent, event.Type)
		}
	case models.EventWarrantyIssued, models.EventWarrantyCancelled:
		if len(event.Contracts) == 0 {
			return fmt.Errorf("%w: %s without contracts", ErrInvalidEvent, event.Type)
		}
	case models.EventInventoryTransitioned:
		if event.Transition == nil || event.Transition.IMEI == "" {
			return fmt.Errorf("%w: %s without transition", ErrInvalidEvent, event.Type)
		}
	case models.EventDeviceReceived:
		if event.Device == nil || event.Device.IMEI == "" {
			return fmt.Errorf("%w: %s without device", ErrInvalidEvent, event.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, event.Type)
	}

	v.logger.Debug("Event %s (%s) is valid", event.ID, event.Type)
	return nil
}
