//go:build !linux

package bridge

import (
	"fmt"
	"sync/atomic"

	"github.com/kstaniek/can-udp-bridge/internal/socketcan"
)

type runtime struct{}

func newRuntime() runtime { return runtime{} }

// Initialize always fails: raw CAN sockets only exist on linux.
func (e *Engine) Initialize() error {
	e.setState(StateStopped)
	return fmt.Errorf("%w: %v", ErrResource, socketcan.ErrUnsupported)
}

func (e *Engine) Run(*atomic.Bool) error {
	return fmt.Errorf("%w: run while %s", ErrState, e.State())
}

func (e *Engine) Shutdown() { e.setState(StateStopped) }

func (e *Engine) Ports() int { return 0 }

func (e *Engine) Channels() int { return 0 }
