//go:build !windows

package helper

// tundevBinding is the bare device name outside Windows; addressing is
// configured on the device itself before the tunnel starts.
func tundevBinding() string {
	return DeviceName
}
