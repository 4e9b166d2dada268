// Package routing talks to the OS routing service: the privileged
// external component that redirects system traffic and DNS into the
// virtual interface. The coordinator only starts it, stops it, and
// listens to its connectivity-status stream; everything the service does
// to the routing table is its own business.
//
// The protocol is the service's native framing: one JSON object per
// line over a stream transport (a Named Pipe on Windows, a unix socket
// elsewhere).
package routing

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"tunlink/internal/core"
)

// DialFunc connects to the routing service's IPC endpoint. Provided by
// the platform layer.
type DialFunc func(timeout time.Duration) (net.Conn, error)

const dialTimeout = 10 * time.Second

// Wire actions.
const (
	actionConfigureRouting = "configureRouting"
	actionResetRouting     = "resetRouting"
	actionStatusChanged    = "statusChanged"
)

type request struct {
	Action     string        `json:"action"`
	Parameters reqParameters `json:"parameters"`
}

type reqParameters struct {
	ProxyIP       string `json:"proxyIp,omitempty"`
	IsAutoConnect bool   `json:"isAutoConnect"`
}

type event struct {
	Action           string `json:"action"`
	ConnectionStatus int    `json:"connectionStatus"`
}

// Client is a live session with the routing service. Created by Start;
// once its OnceStopped channel closes the session is over for good — a
// new connection means a new Client.
type Client struct {
	conn net.Conn

	mu       sync.Mutex
	onStatus func(ConnectionStatus)

	writeMu sync.Mutex

	stopOnce  sync.Once
	stopErr   error
	closeOnce sync.Once
	stopped   chan struct{}
	markOnce  sync.Once
}

// Start dials the routing service, requests routing takeover for the
// given proxy host, and begins consuming the status stream.
func Start(dial DialFunc, proxyHost string, isAutoConnect bool) (*Client, error) {
	conn, err := dial(dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("routing service unavailable: %w", err)
	}

	c := &Client{
		conn:    conn,
		stopped: make(chan struct{}),
	}

	if err := c.send(request{
		Action: actionConfigureRouting,
		Parameters: reqParameters{
			ProxyIP:       proxyHost,
			IsAutoConnect: isAutoConnect,
		},
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("configure routing: %w", err)
	}

	core.Log.Infof("Routing", "Routing takeover requested (proxy=%s, auto=%v)", proxyHost, isAutoConnect)
	go c.readLoop()
	return c, nil
}

// SetNetworkChangeListener replaces the callback invoked for each
// statusChanged event. Nil clears it.
func (c *Client) SetNetworkChangeListener(fn func(ConnectionStatus)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

// OnceStopped returns a channel closed exactly once when the session
// ends, whether because Stop was called or because the service went away
// on its own.
func (c *Client) OnceStopped() <-chan struct{} {
	return c.stopped
}

// Stop asks the service to restore the system's routing and closes the
// session. Idempotent; a send failure is returned so the caller can log
// it (the service may have already stopped on its own).
func (c *Client) Stop() error {
	c.stopOnce.Do(func() {
		c.stopErr = c.send(request{Action: actionResetRouting})
		c.close()
	})
	return c.stopErr
}

func (c *Client) send(req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

// readLoop consumes status events until the stream ends, then marks the
// session stopped.
func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev event
		if err := json.Unmarshal(line, &ev); err != nil {
			core.Log.Warnf("Routing", "Unparseable service message: %v", err)
			continue
		}
		if ev.Action != actionStatusChanged {
			core.Log.Debugf("Routing", "Ignoring service message action %q", ev.Action)
			continue
		}

		status := statusFromWire(ev.ConnectionStatus)
		core.Log.Infof("Routing", "Status changed: %s", status)

		c.mu.Lock()
		listener := c.onStatus
		c.mu.Unlock()
		if listener != nil {
			listener(status)
		}
	}

	if err := scanner.Err(); err != nil {
		core.Log.Debugf("Routing", "Status stream ended: %v", err)
	}
	c.close()
	c.markOnce.Do(func() { close(c.stopped) })
}

func (c *Client) close() {
	c.closeOnce.Do(func() { c.conn.Close() })
}
