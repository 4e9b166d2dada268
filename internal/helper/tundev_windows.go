//go:build windows

package helper

// windowsDriverID is the device driver identifier the tunnel binary
// expects as the first token of the Windows interface binding.
const windowsDriverID = "tap0901"

// tundevBinding packs driver id, device name and addressing into the
// single token the Windows build of the tunnel binary parses.
func tundevBinding() string {
	return windowsDriverID + ":" + DeviceName + ":" + DeviceIP + ":" + deviceNetwork + ":" + deviceNetmask
}
