// Package notify turns shop events into chat messages and delivers them,
// either in process or through a Kafka topic consumed by the worker.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phoneshop/internal/logger"
	"phoneshop/internal/models"
)

var ErrUnsupportedEvent = errors.New("unsupported event type")

// Publisher fans an event out to whoever delivers notifications.
type Publisher interface {
	Publish(ctx context.Context, event *models.Event) error
	Close() error
}

// Notifier delivers a formatted message to a chat.
type Notifier interface {
	// Send delivers the message and reports how many chunks were sent.
	Send(ctx context.Context, msg Message) (int, error)
	Channel() string
}

// Recorder keeps the delivery outcome of each event.
type Recorder interface {
	LogNotification(ctx context.Context, entry *models.NotificationLog) error
}

// Emit publishes an event when a publisher is configured. A failed publish
// is logged and never fails the caller: the sheet write has already happened.
func Emit(ctx context.Context, p Publisher, event *models.Event, log *logger.Logger) {
	if p == nil || event == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Warn("Failed to publish %s event %s: %v", event.Type, event.ID, err)
	}
}

// Deliver formats and sends one event and records the outcome. It returns
// the send error, if any, after recording it.
func Deliver(ctx context.Context, f *Formatter, n Notifier, rec Recorder, event *models.Event) error {
	entry := &models.NotificationLog{
		EventID:   event.ID,
		EventType: event.Type,
		Channel:   n.Channel(),
	}

	msg, err := f.Format(event)
	var sendErr error
	switch {
	case errors.Is(err, ErrUnsupportedEvent):
		entry.Status = models.NotificationSkipped
	case err != nil:
		sendErr = fmt.Errorf("failed to format %s: %w", event.Type, err)
	default:
		chunks, err := n.Send(ctx, msg)
		entry.Chunks = chunks
		if err != nil {
			sendErr = fmt.Errorf("failed to send %s: %w", event.Type, err)
		} else {
			entry.Status = models.NotificationSent
			now := time.Now()
			entry.DeliveredAt = &now
		}
	}

	if sendErr != nil {
		entry.Status = models.NotificationFailed
		text := sendErr.Error()
		entry.Error = &text
	}

	if rec != nil {
		if err := rec.LogNotification(ctx, entry); err != nil {
			if sendErr != nil {
				return errors.Join(sendErr, err)
			}
			return err
		}
	}
	return sendErr
}
