//go:build windows

package windows

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"tunlink/internal/core"
)

var (
	modpowrprof = windows.NewLazySystemDLL("powrprof.dll")

	procPowerRegisterSuspendResumeNotification   = modpowrprof.NewProc("PowerRegisterSuspendResumeNotification")
	procPowerUnregisterSuspendResumeNotification = modpowrprof.NewProc("PowerUnregisterSuspendResumeNotification")
)

// Power broadcast message codes (winuser.h).
const (
	pbtAPMSuspend         = 0x0004
	pbtAPMResumeSuspend   = 0x0007
	pbtAPMResumeAutomatic = 0x0012
)

// DEVICE_NOTIFY_CALLBACK for PowerRegisterSuspendResumeNotification.
const deviceNotifyCallback = 2

type deviceNotifySubscribeParameters struct {
	Callback uintptr
	Context  uintptr
}

// PowerMonitor delivers suspend/resume notifications through the power
// subsystem's callback registration, so no window message pump is
// needed. One registration per monitor; Start at most once.
type PowerMonitor struct {
	mu        sync.Mutex
	handle    uintptr
	params    *deviceNotifySubscribeParameters // kept referenced for the registration's lifetime
	onSuspend func()
	onResume  func()
}

// Start registers for suspend/resume notifications.
func (m *PowerMonitor) Start(onSuspend, onResume func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != 0 {
		return fmt.Errorf("power monitor already started")
	}

	m.onSuspend = onSuspend
	m.onResume = onResume
	m.params = &deviceNotifySubscribeParameters{
		Callback: windows.NewCallback(m.notify),
	}

	var handle uintptr
	r, _, _ := procPowerRegisterSuspendResumeNotification.Call(
		deviceNotifyCallback,
		uintptr(unsafe.Pointer(m.params)),
		uintptr(unsafe.Pointer(&handle)),
	)
	if r != 0 {
		return fmt.Errorf("register suspend/resume notification: code %#x", r)
	}
	m.handle = handle

	core.Log.Infof("Platform", "Power monitor registered")
	return nil
}

// Stop unregisters the notification. Safe without a prior Start.
func (m *PowerMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == 0 {
		return
	}
	procPowerUnregisterSuspendResumeNotification.Call(m.handle)
	m.handle = 0
}

// notify is invoked by the OS on its own thread.
func (m *PowerMonitor) notify(context uintptr, notifyType uint32, setting uintptr) uintptr {
	m.mu.Lock()
	onSuspend, onResume := m.onSuspend, m.onResume
	m.mu.Unlock()

	switch notifyType {
	case pbtAPMSuspend:
		core.Log.Infof("Platform", "Machine suspending")
		if onSuspend != nil {
			onSuspend()
		}
	case pbtAPMResumeSuspend, pbtAPMResumeAutomatic:
		core.Log.Infof("Platform", "Machine resumed")
		if onResume != nil {
			onResume()
		}
	}
	return 0
}
