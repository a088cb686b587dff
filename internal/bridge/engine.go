// Package bridge runs the UDP to SocketCAN forwarding engine: one UDP
// socket per configured port, one raw CAN socket per channel, all driven
// by a single readiness loop.
package bridge

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kstaniek/can-udp-bridge/internal/config"
	"github.com/kstaniek/can-udp-bridge/internal/logging"
)

// Engine owns every socket and the routing table. Initialize, Run and
// Shutdown must be called from one goroutine; State may be read from any.
type Engine struct {
	cfg          *config.Config
	log          *slog.Logger
	maxPorts     int
	maxChannels  int
	pollInterval time.Duration
	state        atomic.Int32

	rt runtime
}

// New copies cfg; later changes to cfg do not reach the engine.
func New(cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:          cfg.Clone(),
		log:          logging.L(),
		maxPorts:     DefaultMaxPorts,
		maxChannels:  DefaultMaxChannels,
		pollInterval: DefaultPollInterval,
		rt:           newRuntime(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

// Ready reports whether the engine is forwarding traffic.
func (e *Engine) Ready() bool { return e.State() == StateRunning }
