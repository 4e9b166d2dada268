package platform

import "strings"

// ParseInterfaceDump scans the text output of a system
// network-configuration dump for the expected virtual device. It
// returns ErrDeviceNotFound when no line mentions the device, and
// ErrDeviceWrongIP when the device appears but no line carries it
// together with the expected IP. Pure text scan, kept separate from the
// command invocation so it is testable everywhere.
func ParseInterfaceDump(dump, deviceName, deviceIP string) error {
	var deviceSeen, ipSeen bool
	for _, line := range strings.Split(dump, "\n") {
		if !strings.Contains(line, deviceName) {
			continue
		}
		deviceSeen = true
		if strings.Contains(line, deviceIP) {
			ipSeen = true
			break
		}
	}

	if !deviceSeen {
		return ErrDeviceNotFound
	}
	if !ipSeen {
		return ErrDeviceWrongIP
	}
	return nil
}
