// Package connection coordinates the lifecycle of one system-wide VPN
// connection: the local proxy helper, the system-tunnel helper, and the
// OS routing service. It decides when each one starts, restarts and
// stops, and folds their independent exit signals into a single
// terminal "stopped" event.
package connection

import (
	"context"
	"fmt"
	"sync"

	"tunlink/internal/connectivity"
	"tunlink/internal/core"
	"tunlink/internal/helper"
	"tunlink/internal/platform"
	"tunlink/internal/routing"
)

// ProxyRunner is the mediator's view of the proxy helper.
type ProxyRunner interface {
	Start(cfg core.ServerConfig) error
	SetExitListener(func())
	Stop()
}

// TunnelRunner is the mediator's view of the tunnel helper.
type TunnelRunner interface {
	Start(udpEnabled bool) error
	SetExitListener(func())
	Stop()
	Running() bool
}

// RoutingSession is the mediator's view of a live routing service
// session.
type RoutingSession interface {
	SetNetworkChangeListener(func(routing.ConnectionStatus))
	OnceStopped() <-chan struct{}
	Stop() error
}

// RoutingStarter opens a routing session. Substituted in tests.
type RoutingStarter func(dial routing.DialFunc, proxyHost string, isAutoConnect bool) (RoutingSession, error)

// Deps bundles everything the mediator supervises or consults.
type Deps struct {
	Proxy    ProxyRunner
	Tunnel   TunnelRunner
	Checker  connectivity.Checker
	Platform platform.Platform

	// StartRouting defaults to the real routing client.
	StartRouting RoutingStarter
}

// tunnelState says what the next tunnel exit event means. Replaces the
// listener-swapping the helpers' exit callbacks would otherwise need:
// the single registered listener consults this state instead.
type tunnelState int

const (
	// tunnelNormal: an exit is a helper death, fatal to the connection.
	tunnelNormal tunnelState = iota
	// tunnelSuspended: the machine is suspending; the tunnel helper is
	// known to die abnormally then, and that death must not tear the
	// connection down.
	tunnelSuspended
	// tunnelRestarting: the exit is the first half of a deliberate
	// restart; the handler starts the helper again with pendingUDP.
	tunnelRestarting
)

// Component names for exit aggregation.
const (
	compProxy   = "proxy"
	compTunnel  = "tunnel"
	compRouting = "routing"
)

// Mediator owns one connection. Built only by Start; a Mediator is
// always fully constructed — construction failures never leak one.
type Mediator struct {
	deps    Deps
	routing RoutingSession

	mu         sync.Mutex
	udpEnabled bool
	tunState   tunnelState
	pendingUDP bool // flag to apply on the restart half of tunnelRestarting
	tunDown    bool // tunnel died while suspended; restart must not wait for an exit
	stopping   bool
	exited     map[string]bool

	onReconnecting func()
	onReconnected  func()

	teardownOnce sync.Once
	remaining    sync.WaitGroup
	done         chan struct{}
}

// Start runs the construction protocol: device pre-check, proxy start,
// reachability probe, credential validation (interactive connects only),
// capability probe, routing takeover, tunnel start. Strictly sequential;
// the first failure stops the proxy and returns the error.
func Start(ctx context.Context, cfg core.ServerConfig, isAutoConnect bool, deps Deps) (*Mediator, error) {
	if deps.StartRouting == nil {
		deps.StartRouting = func(dial routing.DialFunc, proxyHost string, auto bool) (RoutingSession, error) {
			return routing.Start(dial, proxyHost, auto)
		}
	}

	m := &Mediator{
		deps:   deps,
		exited: make(map[string]bool),
		done:   make(chan struct{}),
	}
	m.remaining.Add(3)

	// 1. Virtual device pre-check (supported platforms only).
	if deps.Platform.CheckDevice != nil {
		if err := deps.Platform.CheckDevice(); err != nil {
			return nil, fmt.Errorf("device check: %w", err)
		}
	}

	// 2. Proxy first: it must be listening before anything is probed.
	deps.Proxy.SetExitListener(func() { m.componentExited(compProxy) })
	if err := deps.Proxy.Start(cfg); err != nil {
		return nil, fmt.Errorf("start proxy: %w", err)
	}

	// 3. Reachability: fast retries, no overall timeout. Covers the
	// helper's startup window; exhausting the budget is a hard failure.
	if err := deps.Checker.IsServerReachable(ctx, helper.ProxyAddr()); err != nil {
		deps.Proxy.Stop()
		return nil, err
	}

	// 4. Credentials. Skipped for automatic reconnects: if the credential
	// was revoked since, disconnecting would leak traffic outside the
	// tunnel — staying up but ineffective is the safer failure mode.
	if isAutoConnect {
		core.Log.Debugf("Mediator", "Auto-connect: skipping credential validation")
	} else {
		if err := deps.Checker.ValidateCredentials(ctx, helper.ProxyAddr()); err != nil {
			deps.Proxy.Stop()
			return nil, fmt.Errorf("invalid credentials: %w", err)
		}
	}

	// 5. Capability probe. A failed probe at construction means no UDP.
	udp, err := deps.Checker.CheckUDPSupport(ctx, helper.ProxyAddr())
	if err != nil {
		core.Log.Warnf("Mediator", "Capability probe failed, assuming no UDP: %v", err)
		udp = false
	}
	m.udpEnabled = udp
	core.Log.Infof("Mediator", "UDP capability: %v", udp)

	// 6. Routing takeover.
	rc, err := deps.StartRouting(deps.Platform.DialRoutingService, cfg.Host, isAutoConnect)
	if err != nil {
		deps.Proxy.Stop()
		return nil, err
	}
	m.routing = rc
	rc.SetNetworkChangeListener(m.onNetworkChange)
	go func() {
		<-rc.OnceStopped()
		m.componentExited(compRouting)
	}()

	// 7. Tunnel last, with the probed capability.
	deps.Tunnel.SetExitListener(m.onTunnelExit)
	if err := deps.Tunnel.Start(udp); err != nil {
		m.Stop()
		return nil, fmt.Errorf("start tunnel: %w", err)
	}

	// The join waiter exists only for a fully constructed mediator;
	// failed constructions leave nothing behind to wait on.
	go func() {
		m.remaining.Wait()
		close(m.done)
	}()

	core.Log.Infof("Mediator", "Connected to %s (auto=%v)", cfg.Host, isAutoConnect)
	return m, nil
}

// Done returns a channel closed once all three supervised entities have
// individually reported termination.
func (m *Mediator) Done() <-chan struct{} {
	return m.done
}

// UDPEnabled reports the capability flag currently in effect.
func (m *Mediator) UDPEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.udpEnabled
}

// SetReconnectingListener replaces the optional observer notified when
// the routing service reports the path is reconnecting.
func (m *Mediator) SetReconnectingListener(fn func()) {
	m.mu.Lock()
	m.onReconnecting = fn
	m.mu.Unlock()
}

// SetReconnectedListener replaces the optional observer notified when
// the routing service reports the path is connected again.
func (m *Mediator) SetReconnectedListener(fn func()) {
	m.mu.Lock()
	m.onReconnected = fn
	m.mu.Unlock()
}

// Stop tears the connection down: routing service first (a failure there
// is logged, it may have stopped on its own), then proxy, then tunnel.
// Returns immediately; completion is observed through Done.
func (m *Mediator) Stop() {
	m.teardown(true)
}

// OnSuspend marks the tunnel's imminent, expected death so it does not
// tear the connection down. One-shot per suspend cycle; rearmed only by
// the next suspend.
func (m *Mediator) OnSuspend() {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return
	}
	m.tunState = tunnelSuspended
	m.tunDown = false
	m.mu.Unlock()
	core.Log.Infof("Mediator", "Suspending; tunnel death expected")
}

// OnResume re-probes the capability flag and restarts the tunnel with
// the fresh value.
func (m *Mediator) OnResume() {
	udp := m.probeUDP()

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return
	}
	m.pendingUDP = udp
	m.tunState = tunnelRestarting
	alreadyDown := m.tunDown
	m.tunDown = false
	m.mu.Unlock()

	core.Log.Infof("Mediator", "Resumed; restarting tunnel (udp=%v)", udp)
	if alreadyDown {
		// Died during suspend; no exit event is coming.
		m.restartTunnel()
	} else {
		m.deps.Tunnel.Stop()
	}
}

// onTunnelExit is the tunnel helper's single exit listener. What the
// exit means is decided by the state recorded before it happened.
func (m *Mediator) onTunnelExit() {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		m.componentExited(compTunnel)
		return
	}

	switch m.tunState {
	case tunnelSuspended:
		m.tunDown = true
		m.mu.Unlock()
		core.Log.Infof("Mediator", "Tunnel died during suspend; restart deferred to resume")

	case tunnelRestarting:
		m.mu.Unlock()
		m.restartTunnel()

	default:
		m.mu.Unlock()
		core.Log.Warnf("Mediator", "Tunnel died unexpectedly")
		m.componentExited(compTunnel)
	}
}

// restartTunnel performs the second half of a deliberate restart. A
// teardown may land anywhere around the exit event that got us here, so
// the stopping flag is checked on both sides of the launch: before, to
// avoid it entirely; after, to kill a helper that raced a completed
// teardown and would otherwise outlive the connection.
func (m *Mediator) restartTunnel() {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		m.componentExited(compTunnel)
		return
	}
	udp := m.pendingUDP
	m.udpEnabled = udp
	m.tunState = tunnelNormal
	m.mu.Unlock()

	if err := m.deps.Tunnel.Start(udp); err != nil {
		core.Log.Errorf("Mediator", "Tunnel restart failed: %v", err)
		m.componentExited(compTunnel)
		return
	}

	m.mu.Lock()
	stopped := m.stopping
	m.mu.Unlock()
	if stopped {
		core.Log.Infof("Mediator", "Restart raced teardown; stopping relaunched tunnel")
		m.deps.Tunnel.Stop()
	}
}

// onNetworkChange reacts to the routing service's connectivity stream.
func (m *Mediator) onNetworkChange(status routing.ConnectionStatus) {
	switch status {
	case routing.StatusReconnecting:
		m.notify(&m.onReconnecting)

	case routing.StatusConnected:
		udp := m.probeUDP()

		m.mu.Lock()
		if m.stopping {
			m.mu.Unlock()
			return
		}
		changed := udp != m.udpEnabled
		if changed {
			m.pendingUDP = udp
			m.tunState = tunnelRestarting
		}
		m.mu.Unlock()

		if changed {
			core.Log.Infof("Mediator", "Network changed UDP capability to %v; restarting tunnel", udp)
			m.deps.Tunnel.Stop()
		}
		m.notify(&m.onReconnected)
	}
}

// notify snapshots an optional observer under the lock and invokes it
// outside of it.
func (m *Mediator) notify(fn *func()) {
	m.mu.Lock()
	cb := *fn
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// probeUDP re-checks the capability flag, retaining the previous value
// when the probe itself fails.
func (m *Mediator) probeUDP() bool {
	udp, err := m.deps.Checker.CheckUDPSupport(context.Background(), helper.ProxyAddr())
	if err != nil {
		m.mu.Lock()
		prev := m.udpEnabled
		m.mu.Unlock()
		core.Log.Warnf("Mediator", "Capability probe failed, keeping udp=%v: %v", prev, err)
		return prev
	}
	return udp
}

// componentExited records one entity's termination and triggers full
// teardown: any single death is fatal to the whole connection.
func (m *Mediator) componentExited(comp string) {
	m.markExited(comp)
	m.teardown(false)
}

// markExited counts each entity's termination exactly once toward the
// terminal stopped event.
func (m *Mediator) markExited(comp string) {
	m.mu.Lock()
	if m.exited[comp] {
		m.mu.Unlock()
		return
	}
	m.exited[comp] = true
	m.mu.Unlock()

	core.Log.Infof("Mediator", "%s terminated", comp)
	m.remaining.Done()
}

// teardown stops everything, once. requested distinguishes an explicit
// Stop from a helper-death cascade (log flavor only).
func (m *Mediator) teardown(requested bool) {
	m.teardownOnce.Do(func() {
		m.mu.Lock()
		m.stopping = true
		tunnelRunning := m.deps.Tunnel.Running()
		m.mu.Unlock()

		if requested {
			core.Log.Infof("Mediator", "Stop requested; shutting down helpers")
		} else {
			core.Log.Infof("Mediator", "Helper terminated; shutting down the rest")
		}

		if m.routing != nil {
			if err := m.routing.Stop(); err != nil {
				core.Log.Warnf("Mediator", "Routing stop: %v (service may have already stopped)", err)
			}
		}
		m.deps.Proxy.Stop()
		m.deps.Tunnel.Stop()

		// A tunnel that was already down (suspend death with no resume)
		// will never deliver another exit event; account for it here.
		if !tunnelRunning {
			m.markExited(compTunnel)
		}
	})
}
