// Package process supervises externally launched helper binaries.
//
// A ManagedProcess wraps exactly one OS process at a time. Launch success
// is never confirmed: the only observable signal is the eventual exit
// notification, so callers must treat "started" as "assumed running until
// the exit listener fires". A launch failure (missing binary, bad
// permissions) is reported through the same exit listener, not through
// Start's return value.
package process

import (
	"errors"
	"os/exec"
	"path/filepath"
	"sync"

	"tunlink/internal/core"
)

// ErrAlreadyRunning is returned by Start when the previous process of
// this ManagedProcess has not exited yet. This is a programming error in
// the caller, not a runtime condition.
var ErrAlreadyRunning = errors.New("process already running")

// ManagedProcess supervises one externally spawned process: start-once
// semantics, exit notification, forced termination.
type ManagedProcess struct {
	binPath string

	mu     sync.Mutex
	cmd    *exec.Cmd // nil when not running
	onExit func()
}

// New creates a supervisor for the binary at binPath. The binary is not
// resolved or validated here; a bad path surfaces as an immediate exit
// event on the first Start.
func New(binPath string) *ManagedProcess {
	return &ManagedProcess{binPath: binPath}
}

// Name returns the base name of the supervised binary, for logging.
func (p *ManagedProcess) Name() string {
	return filepath.Base(p.binPath)
}

// SetExitListener replaces the callback invoked exactly once when the
// process terminates, whether by self-exit or by failure to launch.
// May be called at any time, including while the process runs; the
// listener registered at the moment the OS-level exit is observed is the
// one that fires. Passing nil clears the listener.
func (p *ManagedProcess) SetExitListener(fn func()) {
	p.mu.Lock()
	p.onExit = fn
	p.mu.Unlock()
}

// Start launches the binary with the given argument list. The only error
// ever returned is ErrAlreadyRunning; launch failures fire the exit
// listener asynchronously instead, preserving the single exit signal.
func (p *ManagedProcess) Start(args ...string) error {
	p.mu.Lock()
	if p.cmd != nil {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}

	cmd := exec.Command(p.binPath, args...)
	hideWindow(cmd)

	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		core.Log.Errorf("Process", "%s failed to launch: %v", p.Name(), err)
		go p.fireExit()
		return nil
	}

	p.cmd = cmd
	p.mu.Unlock()

	core.Log.Infof("Process", "%s started (pid %d)", p.Name(), cmd.Process.Pid)
	go p.wait(cmd)
	return nil
}

// Stop requests termination of the running process. Best-effort and
// idempotent: a no-op when nothing is running, and the exit listener is
// fired by the OS-level exit notification, never by Stop itself.
func (p *ManagedProcess) Stop() {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil {
		// Typically "process already finished" racing its own exit.
		core.Log.Debugf("Process", "%s kill: %v", p.Name(), err)
	}
}

// Running reports whether a process is currently supervised. Advisory
// only: the process may exit between this call and any action taken.
func (p *ManagedProcess) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// wait blocks until cmd terminates, clears the handle so the supervisor
// becomes startable again, and fires the listener registered at that
// moment.
func (p *ManagedProcess) wait(cmd *exec.Cmd) {
	err := cmd.Wait()

	p.mu.Lock()
	if p.cmd == cmd {
		p.cmd = nil
	}
	listener := p.onExit
	p.mu.Unlock()

	if err != nil {
		core.Log.Infof("Process", "%s exited: %v", p.Name(), err)
	} else {
		core.Log.Infof("Process", "%s exited cleanly", p.Name())
	}

	if listener != nil {
		listener()
	}
}

// fireExit delivers the launch-failure exit event with the listener
// registered at delivery time.
func (p *ManagedProcess) fireExit() {
	p.mu.Lock()
	listener := p.onExit
	p.mu.Unlock()

	if listener != nil {
		listener()
	}
}
