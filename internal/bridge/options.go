package bridge

import (
	"log/slog"
	"time"
)

const (
	DefaultMaxPorts     = 8
	DefaultMaxChannels  = 32
	DefaultPollInterval = time.Second
	// RxBufferSize is the per-port datagram buffer; larger datagrams are truncated by the kernel.
	RxBufferSize = 4096
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger (default logging.L()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCapacity sizes the port and channel tables. Non-positive values keep the defaults.
func WithCapacity(ports, channels int) Option {
	return func(e *Engine) {
		if ports > 0 {
			e.maxPorts = ports
		}
		if channels > 0 {
			e.maxChannels = channels
		}
	}
}

// WithPollInterval bounds how long Run blocks before re-checking the stop flag.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}
