package eventbus

// Publisher is the side of the bus the auth domain depends on.
type Publisher interface {
	PublishAsync(topic string, args ...any)
}

// Subscriber is the side of the bus event consumers depend on.
type Subscriber interface {
	Subscribe(topic string, fn any) error
}

// Logger is the logging contract used by bus workers and the recorder.
type Logger interface {
	Debug(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishAsync(string, ...any) {}
