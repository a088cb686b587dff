package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	// ErrResource covers socket, interface and multiplexer failures during Initialize.
	ErrResource = errors.New("bridge resource")
	// ErrCapacity is returned when the configuration needs more ports or
	// channels than the engine was sized for. It also matches ErrResource.
	ErrCapacity = fmt.Errorf("%w: capacity exceeded", ErrResource)
	// ErrState is returned when an operation is called in the wrong lifecycle state.
	ErrState = errors.New("bridge state")
)
