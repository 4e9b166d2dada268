package platform

import (
	"errors"
	"testing"
)

const device = "tunlink-tap0"
const deviceIP = "10.0.85.2"

func TestParseInterfaceDumpOK(t *testing.T) {
	dump := `Configuration for interface "Ethernet"
    DHCP enabled: Yes
    IP Address:   192.168.1.10

tunlink-tap0 10.0.85.2 255.255.255.0
`
	if err := ParseInterfaceDump(dump, device, deviceIP); err != nil {
		t.Errorf("ParseInterfaceDump: %v", err)
	}
}

func TestParseInterfaceDumpDeviceMissing(t *testing.T) {
	dump := `Configuration for interface "Ethernet"
    IP Address:   192.168.1.10
`
	err := ParseInterfaceDump(dump, device, deviceIP)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("err = %v, want ErrDeviceNotFound", err)
	}
}

func TestParseInterfaceDumpWrongIP(t *testing.T) {
	dump := `Configuration for interface "Ethernet"
tunlink-tap0 10.0.99.7 255.255.255.0
`
	err := ParseInterfaceDump(dump, device, deviceIP)
	if !errors.Is(err, ErrDeviceWrongIP) {
		t.Errorf("err = %v, want ErrDeviceWrongIP", err)
	}
}

func TestParseInterfaceDumpEmpty(t *testing.T) {
	if err := ParseInterfaceDump("", device, deviceIP); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("err = %v, want ErrDeviceNotFound", err)
	}
}
