package pool

import (
	"go.uber.org/zap"
)

const defaultEventBuffer = 64

type options struct {
	observers   Observers
	logger      *zap.Logger
	eventBuffer int
	ordering    Ordering
}

type Option func(*options)

// WithObserver registers an observer next to the built-in log observer.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observers = append(o.observers, observer)
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventBuffer sets the capacity of the scheduler's event channel.
func WithEventBuffer(size int) Option {
	return func(o *options) {
		if size >= 0 {
			o.eventBuffer = size
		}
	}
}

func WithOrdering(ordering Ordering) Option {
	return func(o *options) {
		o.ordering = ordering
	}
}
