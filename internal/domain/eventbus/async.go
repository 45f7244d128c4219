package eventbus

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 1000
)

// AsyncEventBus dispatches published events to subscribers on a worker pool.
// Publishing never blocks: when the queue is full the event is dropped.
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	stopOnce  sync.Once
	stopped   atomic.Bool
	dropped   atomic.Int64
	logger    Logger
}

type asyncEvent struct {
	topic string
	args  []any
}

// NewAsyncEventBus creates an async bus. workerNum <= 0 picks a default.
func NewAsyncEventBus(workerNum int, logger Logger) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = defaultWorkers
	}
	return &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, defaultQueueSize),
		stopChan:  make(chan struct{}),
		logger:    logger,
	}
}

// Start launches the workers.
func (aeb *AsyncEventBus) Start() {
	for i := 0; i < aeb.workerNum; i++ {
		aeb.wg.Add(1)
		go aeb.worker()
	}
}

// Stop refuses new events, drains the queue and waits for workers to exit.
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.stopped.Store(true)
		close(aeb.stopChan)
		aeb.wg.Wait()
	})
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case event := <-aeb.workChan:
			aeb.dispatch(event)
		case <-aeb.stopChan:
			for {
				select {
				case event := <-aeb.workChan:
					aeb.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (aeb *AsyncEventBus) dispatch(event asyncEvent) {
	defer aeb.pending.Done()
	defer func() {
		if r := recover(); r != nil && aeb.logger != nil {
			aeb.logger.Error("event handler panic on %s: %v", event.topic, r)
		}
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// Publish delivers synchronously on the caller's goroutine.
func (aeb *AsyncEventBus) Publish(topic string, args ...any) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync queues the event for the worker pool.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...any) {
	if aeb.stopped.Load() {
		aeb.drop(topic)
		return
	}
	aeb.pending.Add(1)
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
	default:
		aeb.pending.Done()
		aeb.drop(topic)
	}
}

func (aeb *AsyncEventBus) drop(topic string) {
	n := aeb.dropped.Add(1)
	if aeb.logger != nil {
		aeb.logger.Warn("event queue unavailable, dropped %s (total dropped %d)", topic, n)
	}
}

// Subscribe registers fn for topic.
func (aeb *AsyncEventBus) Subscribe(topic string, fn any) error {
	return aeb.bus.Subscribe(topic, fn)
}

// Unsubscribe removes fn from topic.
func (aeb *AsyncEventBus) Unsubscribe(topic string, handler any) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

// HasCallback reports whether topic has subscribers.
func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// Dropped returns how many events were discarded.
func (aeb *AsyncEventBus) Dropped() int64 {
	return aeb.dropped.Load()
}

// WaitAsync blocks until every queued event has been handled.
func (aeb *AsyncEventBus) WaitAsync() {
	aeb.pending.Wait()
}
