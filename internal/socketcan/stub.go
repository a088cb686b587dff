//go:build !linux

package socketcan

import "errors"

// ErrUnsupported is returned by every operation on non-linux builds.
var ErrUnsupported = errors.New("socketcan: unsupported on this platform")

// InterfaceIndex always fails outside linux.
func InterfaceIndex(string) (int, error) { return 0, ErrUnsupported }
