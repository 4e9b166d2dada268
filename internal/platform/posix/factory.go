//go:build !windows

// Package posix builds the platform capability value for unix-like
// systems: the routing service is reached over a unix domain socket,
// there is no virtual-device pre-check (the tunnel binary creates the
// device itself), and no power notification source is wired.
package posix

import (
	"net"
	"time"

	"tunlink/internal/platform"
)

// defaultSocketPath is where the routing service listens.
const defaultSocketPath = "/var/run/tunlink/routing.sock"

// NewPlatform returns the posix platform value. endpoint overrides the
// routing service socket path; empty means the default.
func NewPlatform(endpoint string) platform.Platform {
	socket := endpoint
	if socket == "" {
		socket = defaultSocketPath
	}

	return platform.Platform{
		DialRoutingService: func(timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("unix", socket, timeout)
		},
	}
}
