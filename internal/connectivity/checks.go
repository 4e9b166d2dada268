// Package connectivity implements the network-path probes the mediator
// runs against the live local proxy: TCP reachability of the proxy
// endpoint, end-to-end credential validation, and whether the secondary
// (datagram) transport mode currently works on the active network path.
package connectivity

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/miekg/dns"
	"golang.org/x/net/proxy"

	"tunlink/internal/core"
)

// Checker is the probe surface the mediator consumes. Production code
// uses NetChecker; tests substitute fakes.
type Checker interface {
	// IsServerReachable blocks until addr accepts a TCP connection or the
	// retry budget is exhausted.
	IsServerReachable(ctx context.Context, addr string) error
	// ValidateCredentials verifies the proxy session end-to-end by
	// relaying a connection through it.
	ValidateCredentials(ctx context.Context, proxyAddr string) error
	// CheckUDPSupport reports whether datagrams relayed through the proxy
	// currently make it out and back.
	CheckUDPSupport(ctx context.Context, proxyAddr string) (bool, error)
}

// Probe defaults. The reachability probe deliberately has no overall
// timeout: the proxy process has just been started and an unreachable
// endpoint is never expected to persist, so it retries fast on a bounded
// budget instead of giving up early.
const (
	DefaultDialTimeout   = 500 * time.Millisecond
	DefaultRetryInterval = 250 * time.Millisecond
	DefaultMaxRetries    = 40

	DefaultValidationTarget = "example.com:80"
	DefaultProbeDomain      = "google.com."
	DefaultProbeResolver    = "8.8.8.8:53"
	DefaultUDPTimeout       = time.Second
	DefaultUDPRetries       = 5
)

// NetChecker is the real-network Checker. Zero-value fields fall back to
// the package defaults.
type NetChecker struct {
	DialTimeout   time.Duration
	RetryInterval time.Duration
	MaxRetries    uint64

	// ValidationTarget is the host:port the credential check connects to
	// through the proxy.
	ValidationTarget string

	// ProbeDomain is resolved through ProbeResolver over the proxy's UDP
	// relay by the capability check.
	ProbeDomain   string
	ProbeResolver string
	UDPTimeout    time.Duration
	UDPRetries    int
}

// NewNetChecker returns a checker with all defaults applied.
func NewNetChecker() *NetChecker {
	return &NetChecker{
		DialTimeout:      DefaultDialTimeout,
		RetryInterval:    DefaultRetryInterval,
		MaxRetries:       DefaultMaxRetries,
		ValidationTarget: DefaultValidationTarget,
		ProbeDomain:      DefaultProbeDomain,
		ProbeResolver:    DefaultProbeResolver,
		UDPTimeout:       DefaultUDPTimeout,
		UDPRetries:       DefaultUDPRetries,
	}
}

// IsServerReachable dials addr repeatedly at a fixed fast interval until
// it connects or the retry budget runs out.
func (c *NetChecker) IsServerReachable(ctx context.Context, addr string) error {
	dialer := &net.Dialer{Timeout: c.dialTimeout()}

	op := func() error {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		conn.Close()
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryInterval()), c.maxRetries()),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("server %s unreachable: %w", addr, err)
	}
	return nil
}

// ValidateCredentials opens a SOCKS5 connection through the local proxy
// to the validation target. The proxy only relays when the upstream
// session is established with valid credentials, so a completed relay
// proves them.
func (c *NetChecker) ValidateCredentials(ctx context.Context, proxyAddr string) error {
	target := c.ValidationTarget
	if target == "" {
		target = DefaultValidationTarget
	}

	socks, err := proxy.SOCKS5("tcp", proxyAddr, nil, &net.Dialer{Timeout: c.dialTimeout()})
	if err != nil {
		return fmt.Errorf("socks dialer: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := socks.(proxy.ContextDialer).DialContext(dialCtx, "tcp", target)
	if err != nil {
		return fmt.Errorf("credential validation via %s failed: %w", target, err)
	}
	conn.Close()
	return nil
}

// CheckUDPSupport performs a SOCKS5 UDP ASSOCIATE against the local
// proxy and resolves the probe domain through its relay. Any well-formed
// DNS response means the datagram path works end-to-end. Probe
// exhaustion reports (false, nil); only a broken local association is an
// error.
func (c *NetChecker) CheckUDPSupport(ctx context.Context, proxyAddr string) (bool, error) {
	assoc, err := udpAssociate(ctx, proxyAddr, c.dialTimeout())
	if err != nil {
		return false, fmt.Errorf("udp associate with %s: %w", proxyAddr, err)
	}
	defer assoc.Close()

	resolver := c.ProbeResolver
	if resolver == "" {
		resolver = DefaultProbeResolver
	}
	domain := c.ProbeDomain
	if domain == "" {
		domain = DefaultProbeDomain
	}

	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	packed, err := query.Pack()
	if err != nil {
		return false, fmt.Errorf("pack probe query: %w", err)
	}

	datagram, err := socksDatagram(resolver, packed)
	if err != nil {
		return false, err
	}

	retries := c.UDPRetries
	if retries <= 0 {
		retries = DefaultUDPRetries
	}

	buf := make([]byte, 4096)
	for attempt := 0; attempt < retries; attempt++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		if _, err := assoc.relay.Write(datagram); err != nil {
			core.Log.Debugf("Connectivity", "UDP probe write: %v", err)
			continue
		}

		_ = assoc.relay.SetReadDeadline(time.Now().Add(c.udpTimeout()))
		n, err := assoc.relay.Read(buf)
		if err != nil {
			continue
		}

		payload, ok := stripSocksDatagram(buf[:n])
		if !ok {
			continue
		}
		var resp dns.Msg
		if err := resp.Unpack(payload); err != nil {
			continue
		}
		if resp.Response {
			return true, nil
		}
	}
	return false, nil
}

func (c *NetChecker) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return DefaultDialTimeout
}

func (c *NetChecker) retryInterval() time.Duration {
	if c.RetryInterval > 0 {
		return c.RetryInterval
	}
	return DefaultRetryInterval
}

func (c *NetChecker) maxRetries() uint64 {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return DefaultMaxRetries
}

func (c *NetChecker) udpTimeout() time.Duration {
	if c.UDPTimeout > 0 {
		return c.UDPTimeout
	}
	return DefaultUDPTimeout
}
