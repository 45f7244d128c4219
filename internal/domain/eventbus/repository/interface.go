package repository

import (
	"context"
	"time"
)

// EventRepository is the persistence contract for domain events.
type EventRepository interface {
	Store(ctx context.Context, event Event) error
	FindByEventType(ctx context.Context, eventType string, limit int) ([]Event, error)
	FindByUserID(ctx context.Context, userID string) ([]Event, error)
	FindByTimeRange(ctx context.Context, startTime, endTime time.Time) ([]Event, error)
	DeleteOldEvents(ctx context.Context, beforeTime time.Time) error
	GetEventStats(ctx context.Context) (map[string]int64, error)
}

// Event is a stored domain event.
type Event struct {
	ID        string
	EventType string
	UserID    string
	Data      any
	CreatedAt time.Time
}
