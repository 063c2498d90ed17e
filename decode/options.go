package decode

import "github.com/gogpu/vidfx/backend"

// Option configures a Producer.
type Option func(*producerOptions)

type producerOptions struct {
	backendName string
	backend     backend.Backend
	width       int
	height      int
	looping     bool
	queueSize   int
}

func defaultOptions() producerOptions {
	return producerOptions{queueSize: MaxQueue}
}

// WithBackend selects a registered backend by name. The default is the
// registry's best available backend.
func WithBackend(name string) Option {
	return func(o *producerOptions) {
		o.backendName = name
	}
}

// WithBackendInstance uses b directly instead of the registry.
func WithBackendInstance(b backend.Backend) Option {
	return func(o *producerOptions) {
		o.backend = b
	}
}

// WithOutputSize scales frames to width x height. Zero keeps the source size.
func WithOutputSize(width, height int) Option {
	return func(o *producerOptions) {
		o.width = width
		o.height = height
	}
}

// WithLooping restarts at the start frame after the end frame.
func WithLooping(looping bool) Option {
	return func(o *producerOptions) {
		o.looping = looping
	}
}

// WithQueueSize sets the presentation queue limit (default MaxQueue).
func WithQueueSize(n int) Option {
	return func(o *producerOptions) {
		o.queueSize = n
	}
}
