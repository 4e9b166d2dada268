package routing

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"
)

// fakeService wraps the server side of a net.Pipe transport.
type fakeService struct {
	conn     net.Conn
	requests chan request
}

func newFakeService(t *testing.T) (*fakeService, DialFunc) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	svc := &fakeService{
		conn:     server,
		requests: make(chan request, 8),
	}
	go func() {
		scanner := bufio.NewScanner(server)
		for scanner.Scan() {
			var req request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			svc.requests <- req
		}
		close(svc.requests)
	}()

	dial := func(timeout time.Duration) (net.Conn, error) {
		return client, nil
	}
	return svc, dial
}

func (s *fakeService) emit(t *testing.T, ev event) {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := s.conn.Write(append(data, '\n')); err != nil {
		t.Fatalf("emit: %v", err)
	}
}

func (s *fakeService) nextRequest(t *testing.T) request {
	t.Helper()
	select {
	case req, ok := <-s.requests:
		if !ok {
			t.Fatal("service stream closed before request arrived")
		}
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request")
	}
	return request{}
}

func TestStartSendsConfigureRouting(t *testing.T) {
	svc, dial := newFakeService(t)

	c, err := Start(dial, "1.2.3.4", true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	req := svc.nextRequest(t)
	if req.Action != actionConfigureRouting {
		t.Errorf("action = %q, want %q", req.Action, actionConfigureRouting)
	}
	if req.Parameters.ProxyIP != "1.2.3.4" {
		t.Errorf("proxyIp = %q, want 1.2.3.4", req.Parameters.ProxyIP)
	}
	if !req.Parameters.IsAutoConnect {
		t.Error("isAutoConnect not set")
	}
}

func TestStatusEventsDispatch(t *testing.T) {
	svc, dial := newFakeService(t)

	c, err := Start(dial, "1.2.3.4", false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	svc.nextRequest(t) // configureRouting

	got := make(chan ConnectionStatus, 8)
	c.SetNetworkChangeListener(func(s ConnectionStatus) { got <- s })

	svc.emit(t, event{Action: actionStatusChanged, ConnectionStatus: 2})
	svc.emit(t, event{Action: actionStatusChanged, ConnectionStatus: 0})
	svc.emit(t, event{Action: actionStatusChanged, ConnectionStatus: 99})

	want := []ConnectionStatus{StatusReconnecting, StatusConnected, StatusUnknown}
	for _, w := range want {
		select {
		case s := <-got:
			if s != w {
				t.Errorf("status = %v, want %v", s, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for status %v", w)
		}
	}
}

func TestOnceStoppedOnServiceDeath(t *testing.T) {
	svc, dial := newFakeService(t)

	c, err := Start(dial, "1.2.3.4", false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.nextRequest(t)

	svc.conn.Close()

	select {
	case <-c.OnceStopped():
	case <-time.After(2 * time.Second):
		t.Fatal("OnceStopped did not fire after service death")
	}
}

func TestStopSendsResetRouting(t *testing.T) {
	svc, dial := newFakeService(t)

	c, err := Start(dial, "1.2.3.4", false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.nextRequest(t)

	stopErr := make(chan error, 1)
	go func() { stopErr <- c.Stop() }()

	req := svc.nextRequest(t)
	if req.Action != actionResetRouting {
		t.Errorf("action = %q, want %q", req.Action, actionResetRouting)
	}

	select {
	case err := <-stopErr:
		if err != nil {
			t.Errorf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	select {
	case <-c.OnceStopped():
	case <-time.After(2 * time.Second):
		t.Fatal("OnceStopped did not fire after Stop")
	}

	// Second Stop is a no-op with the same result.
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
