package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"phoneshop/internal/logger"
	"phoneshop/internal/models"
)

// KafkaPublisher writes events to a topic for the worker to deliver.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *models.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}

	p.logger.Debug("Published %s event %s", event.Type, event.ID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// DirectPublisher delivers events in process, off the request path.
type DirectPublisher struct {
	formatter *Formatter
	notifier  Notifier
	recorder  Recorder
	logger    *logger.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewDirectPublisher(formatter *Formatter, notifier Notifier, recorder Recorder, logger *logger.Logger) *DirectPublisher {
	return &DirectPublisher{
		formatter: formatter,
		notifier:  notifier,
		recorder:  recorder,
		logger:    logger,
		timeout:   30 * time.Second,
	}
}

func (p *DirectPublisher) Publish(ctx context.Context, event *models.Event) error {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// the request context ends with the response; delivery outlives it
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		if err := Deliver(dctx, p.formatter, p.notifier, p.recorder, event); err != nil {
			p.logger.Error("Failed to deliver %s event %s: %v", event.Type, event.ID, err)
		}
	}()
	return nil
}

// Close waits for in-flight deliveries.
func (p *DirectPublisher) Close() error {
	p.wg.Wait()
	return nil
}
