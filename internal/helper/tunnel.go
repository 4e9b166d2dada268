package helper

import (
	"tunlink/internal/process"
)

// tunnelLogLevel keeps the tunnel binary quiet; its stderr is not
// collected anywhere useful.
const tunnelLogLevel = "error"

// TunnelProcess runs the system-tunnel endpoint that bridges the virtual
// interface to the local proxy. This is the only helper the mediator
// restarts during a connection's life (suspend/resume and capability
// changes): restarting it does not disturb the validated proxy session
// or the OS routing state.
type TunnelProcess struct {
	*process.ManagedProcess
}

// NewTunnel creates the tunnel wrapper for the binary at binPath.
func NewTunnel(binPath string) *TunnelProcess {
	return &TunnelProcess{ManagedProcess: process.New(binPath)}
}

// Start launches the tunnel. udpEnabled appends the secondary-transport
// relay flags; when false the binary falls back to TCP-only relaying.
func (t *TunnelProcess) Start(udpEnabled bool) error {
	return t.ManagedProcess.Start(TunnelArgs(udpEnabled)...)
}

// TunnelArgs builds the tunnel binary's argument list.
func TunnelArgs(udpEnabled bool) []string {
	args := []string{
		"--tundev", tundevBinding(),
		"--netif-ipaddr", routerIP,
		"--netif-netmask", deviceNetmask,
		"--socks-server-addr", ProxyAddr(),
		"--loglevel", tunnelLogLevel,
		"--transparent-dns",
	}
	if udpEnabled {
		args = append(args,
			"--socks5-udp",
			"--udp-relay-addr", ProxyAddr(),
		)
	}
	return args
}
