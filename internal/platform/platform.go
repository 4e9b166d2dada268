// Package platform isolates OS-specific capabilities behind a value the
// mediator receives at construction. The coordinator itself never
// queries the operating system; everything platform-shaped comes in
// through this struct, built by the windows/ or posix/ factory.
package platform

import (
	"errors"

	"tunlink/internal/routing"
)

// Sentinel errors for the virtual-device pre-check. Both are
// configuration errors: fatal, surfaced before any helper starts.
var (
	ErrDeviceNotFound = errors.New("virtual network device not found")
	ErrDeviceWrongIP  = errors.New("virtual network device has wrong IP")
)

// PowerMonitor delivers machine suspend/resume notifications.
// Implementations must tolerate Stop without a prior Start.
type PowerMonitor interface {
	Start(onSuspend, onResume func()) error
	Stop()
}

// Platform aggregates the OS-specific pieces the coordinator needs.
type Platform struct {
	// CheckDevice validates that the expected virtual interface exists
	// with the expected address. Nil on platforms without such a
	// pre-check; the mediator then skips it.
	CheckDevice func() error

	// DialRoutingService connects to the routing service's IPC endpoint.
	DialRoutingService routing.DialFunc

	// Power delivers suspend/resume events. May be nil when the platform
	// has no power notification source.
	Power PowerMonitor
}
