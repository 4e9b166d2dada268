// Package helper wraps the two externally supervised helper binaries:
// the local proxy endpoint and the system-tunnel endpoint. Each wrapper
// fixes the binary's identity at construction and owns the argument
// contract of its Start call; everything else is delegated to the
// process supervisor.
package helper

import (
	"net"
	"strconv"
)

// Local proxy endpoint. The tunnel process points at this address, and
// the same address doubles as the UDP relay when the secondary transport
// is enabled.
const (
	ProxyHost = "127.0.0.1"
	ProxyPort = 1081
)

// Virtual interface parameters. The routing service redirects system
// traffic into this device; the tunnel process bridges it to the proxy.
const (
	DeviceName    = "tunlink-tap0"
	DeviceIP      = "10.0.85.2"
	deviceNetwork = "10.0.85.0"
	deviceNetmask = "255.255.255.0"
	routerIP      = "10.0.85.1"
)

// ProxyAddr returns the local proxy endpoint as host:port.
func ProxyAddr() string {
	return net.JoinHostPort(ProxyHost, strconv.Itoa(ProxyPort))
}
