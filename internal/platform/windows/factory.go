//go:build windows

// Package windows builds the Windows platform capability value: TAP
// device pre-check via netsh, routing service access over a Named Pipe,
// and suspend/resume notifications from the power subsystem.
package windows

import (
	"fmt"
	"net"
	"os/exec"
	"syscall"
	"time"

	"github.com/Microsoft/go-winio"

	"tunlink/internal/helper"
	"tunlink/internal/platform"
)

// defaultPipe is the routing service's Named Pipe path. Any
// authenticated user may connect; the service performs its own
// authorization.
const defaultPipe = `\\.\pipe\TunlinkService`

// NewPlatform returns the Windows platform value. endpoint overrides the
// routing service pipe path; empty means the default.
func NewPlatform(endpoint string) platform.Platform {
	pipe := endpoint
	if pipe == "" {
		pipe = defaultPipe
	}

	return platform.Platform{
		CheckDevice: checkTAPDevice,
		DialRoutingService: func(timeout time.Duration) (net.Conn, error) {
			return winio.DialPipe(pipe, &timeout)
		},
		Power: &PowerMonitor{},
	}
}

// checkTAPDevice dumps the system interface configuration and verifies
// the TAP device exists with its expected address. Runs before any
// helper starts; a failure here is a configuration error.
func checkTAPDevice() error {
	cmd := exec.Command("netsh", "interface", "ip", "show", "config")
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}

	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("query interface configuration: %w", err)
	}
	return platform.ParseInterfaceDump(string(out), helper.DeviceName, helper.DeviceIP)
}
