package eventbus

import (
	"context"
	"strconv"
	"time"

	"receipt-server-go/internal/domain/eventbus/repository"
)

const recordTimeout = 5 * time.Second

// Recorder persists auth events into the event repository.
type Recorder struct {
	repo   repository.EventRepository
	logger Logger
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo repository.EventRepository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Attach subscribes the recorder to every auth topic on bus.
func (r *Recorder) Attach(bus Subscriber) error {
	for _, topic := range AuthTopics {
		if err := bus.Subscribe(topic, r.handler(topic)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) handler(topic string) func(AuthEventData) {
	return func(data AuthEventData) {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if data.OccurredAt.IsZero() {
			data.OccurredAt = time.Now()
		}
		event := repository.Event{
			EventType: topic,
			Data:      data,
			CreatedAt: data.OccurredAt,
		}
		if data.UserID != 0 {
			event.UserID = strconv.FormatInt(data.UserID, 10)
		}

		if err := r.repo.Store(ctx, event); err != nil {
			if r.logger != nil {
				r.logger.Error("failed to record %s: %v", topic, err)
			}
			return
		}
		if r.logger != nil {
			r.logger.Debug("recorded %s for user %s", topic, event.UserID)
		}
	}
}
