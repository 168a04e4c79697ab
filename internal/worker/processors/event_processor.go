package processors

import (
	"context"

	"phoneshop/internal/logger"
	"phoneshop/internal/models"
	"phoneshop/internal/notify"
	"phoneshop/internal/worker/processors/validation"
)

type EventProcessor struct {
	logger    *logger.Logger
	validator *validation.Validator
	formatter *notify.Formatter
	notifier  notify.Notifier
	recorder  notify.Recorder
}

func NewEventProcessor(formatter *notify.Formatter, notifier notify.Notifier, recorder notify.Recorder, logger *logger.Logger) *EventProcessor {
	return &EventProcessor{
		logger:    logger,
		validator: validation.New(logger),
		formatter: formatter,
		notifier:  notifier,
		recorder:  recorder,
	}
}

// Process validates an event and delivers it to the chat. The outcome is
// recorded whether or not the send succeeds; invalid events are recorded as
// failed without reaching the notifier.
func (ep *EventProcessor) Process(ctx context.Context, event *models.Event) error {
	if err := ep.validator.ValidateEvent(event); err != nil {
		ep.recordInvalid(ctx, event, err)
		return err
	}

	ep.logger.Debug("Processing %s event %s", event.Type, event.ID)
	if err := notify.Deliver(ctx, ep.formatter, ep.notifier, ep.recorder, event); err != nil {
		return err
	}

	ep.logger.Info("Delivered %s event %s via %s", event.Type, event.ID, ep.notifier.Channel())
	return nil
}

func (ep *EventProcessor) recordInvalid(ctx context.Context, event *models.Event, cause error) {
	if ep.recorder == nil {
		return
	}
	text := cause.Error()
	entry := &models.NotificationLog{
		Channel: ep.notifier.Channel(),
		Status:  models.NotificationFailed,
		Error:   &text,
	}
	if event != nil {
		entry.EventID = event.ID
		entry.EventType = event.Type
	}
	if err := ep.recorder.LogNotification(ctx, entry); err != nil {
		ep.logger.Warn("Failed to record invalid event: %v", err)
	}
}
