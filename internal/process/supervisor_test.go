//go:build !windows

package process

import (
	"os/exec"
	"sync/atomic"
	"testing"
	"time"
)

// lookBin skips the test when the system binary is unavailable.
func lookBin(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestExitListenerFiresOnSelfExit verifies that a process exiting on its
// own fires the listener exactly once and clears the handle.
func TestExitListenerFiresOnSelfExit(t *testing.T) {
	p := New(lookBin(t, "true"))

	var fired atomic.Int32
	p.SetExitListener(func() { fired.Add(1) })

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "exit listener", func() bool { return fired.Load() == 1 })

	// Give a potential duplicate invocation time to show up.
	time.Sleep(50 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Errorf("listener fired %d times, want 1", n)
	}
	if p.Running() {
		t.Error("process still reported running after exit")
	}
}

// TestStartWhileRunningFailsFast verifies the start-once contract.
func TestStartWhileRunningFailsFast(t *testing.T) {
	p := New(lookBin(t, "sleep"))

	exited := make(chan struct{})
	p.SetExitListener(func() { close(exited) })

	if err := p.Start("10"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start("10"); err != ErrAlreadyRunning {
		t.Fatalf("second Start returned %v, want ErrAlreadyRunning", err)
	}

	p.Stop()
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("exit listener did not fire after Stop")
	}
}

// TestStopIsIdempotent verifies Stop on a non-running and already-stopped
// process is a no-op.
func TestStopIsIdempotent(t *testing.T) {
	p := New(lookBin(t, "sleep"))
	p.Stop() // never started

	exited := make(chan struct{})
	p.SetExitListener(func() { close(exited) })
	if err := p.Start("10"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Stop()
	p.Stop()

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("exit listener did not fire")
	}
	p.Stop() // after exit
}

// TestLaunchFailureFiresExitListener verifies that a missing binary is
// reported through the exit listener, not through Start.
func TestLaunchFailureFiresExitListener(t *testing.T) {
	p := New("/nonexistent/tunlink-test-binary")

	exited := make(chan struct{})
	p.SetExitListener(func() { close(exited) })

	if err := p.Start(); err != nil {
		t.Fatalf("Start returned %v, want nil even on launch failure", err)
	}
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("exit listener did not fire for launch failure")
	}
	if p.Running() {
		t.Error("process reported running after launch failure")
	}
}

// TestRestartAfterExit verifies the supervisor becomes startable again
// once the previous process has exited.
func TestRestartAfterExit(t *testing.T) {
	p := New(lookBin(t, "true"))

	first := make(chan struct{})
	p.SetExitListener(func() { close(first) })
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("first exit not observed")
	}

	second := make(chan struct{})
	p.SetExitListener(func() { close(second) })
	if err := p.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	select {
	case <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("second exit not observed")
	}
}

// TestListenerReplacedBeforeExitWins verifies that the listener registered
// at the moment the exit is observed is the one invoked.
func TestListenerReplacedBeforeExitWins(t *testing.T) {
	p := New(lookBin(t, "sleep"))

	var oldFired atomic.Int32
	p.SetExitListener(func() { oldFired.Add(1) })

	if err := p.Start("10"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	replaced := make(chan struct{})
	p.SetExitListener(func() { close(replaced) })

	p.Stop()
	select {
	case <-replaced:
	case <-time.After(5 * time.Second):
		t.Fatal("replacement listener did not fire")
	}
	if oldFired.Load() != 0 {
		t.Error("replaced listener fired")
	}
}
