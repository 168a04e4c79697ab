package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoneshop/internal/database"
	"phoneshop/internal/logger"
	"phoneshop/internal/models"
	"phoneshop/internal/notify"
	"phoneshop/internal/worker/processors"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		r.cancel()
		return kafka.Message{}, context.Canceled
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func message(t *testing.T, offset int64, event *models.Event) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(event.ID), Value: value}
}

func TestWorkerDeliversAndCommits(t *testing.T) {
	db, err := database.New("sqlite://"+filepath.Join(t.TempDir(), "worker.db"), false)
	require.NoError(t, err)
	defer db.Close()

	loc := time.FixedZone("ICT", 7*3600)
	processor := processors.NewEventProcessor(notify.NewFormatter("Táo Xanh", loc), notify.NewLogNotifier(logger.Nop()), db, logger.Nop())

	received := models.NewEvent(models.EventDeviceReceived, time.Now())
	received.Device = &models.Device{IMEI: "356789012345678", Model: "iPhone 13"}
	invalid := models.NewEvent(models.EventOrderCreated, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		cancel: cancel,
		messages: []kafka.Message{
			message(t, 1, received),
			{Offset: 2, Value: []byte("not json")},
			message(t, 3, invalid),
		},
	}
	w := &Worker{logger: logger.Nop(), reader: reader, processor: processor}

	require.NoError(t, w.Start(ctx))
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)

	logs, err := db.NotificationsForEvent(context.Background(), received.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.NotificationSent, logs[0].Status)
	assert.Equal(t, "log", logs[0].Channel)

	// invalid events never reach the notifier but are logged as failed
	logs, err = db.NotificationsForEvent(context.Background(), invalid.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.NotificationFailed, logs[0].Status)
	assert.Equal(t, models.EventOrderCreated, logs[0].EventType)
	assert.Equal(t, 0, logs[0].Chunks)
	require.NotNil(t, logs[0].Error)
	assert.Contains(t, *logs[0].Error, "invalid event")

	require.NoError(t, w.Stop())
	assert.True(t, reader.closed)
}
