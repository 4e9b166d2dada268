package connectivity

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// SOCKS5 wire constants (RFC 1928).
const (
	socksVersion      = 0x05
	socksNoAuth       = 0x00
	socksCmdAssociate = 0x03
	socksRepSuccess   = 0x00

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04
)

// udpAssoc holds a live UDP association: the TCP control connection that
// keeps it open and the UDP conn to the proxy's relay endpoint.
type udpAssoc struct {
	ctrl  net.Conn
	relay net.Conn
}

func (a *udpAssoc) Close() {
	if a.relay != nil {
		a.relay.Close()
	}
	if a.ctrl != nil {
		a.ctrl.Close()
	}
}

// udpAssociate negotiates a SOCKS5 UDP ASSOCIATE with the proxy and
// connects to the relay endpoint it returns. The control connection must
// stay open for the association's lifetime.
func udpAssociate(ctx context.Context, proxyAddr string, timeout time.Duration) (*udpAssoc, error) {
	dialer := &net.Dialer{Timeout: timeout}
	ctrl, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ctrl.SetDeadline(deadline)
	} else {
		_ = ctrl.SetDeadline(time.Now().Add(5 * time.Second))
	}

	relayAddr, err := negotiateAssociate(ctrl, proxyAddr)
	if err != nil {
		ctrl.Close()
		return nil, err
	}
	_ = ctrl.SetDeadline(time.Time{})

	relay, err := net.Dial("udp", relayAddr)
	if err != nil {
		ctrl.Close()
		return nil, err
	}
	return &udpAssoc{ctrl: ctrl, relay: relay}, nil
}

// negotiateAssociate runs the no-auth greeting plus the ASSOCIATE request
// and returns the relay endpoint the proxy bound for us.
func negotiateAssociate(ctrl net.Conn, proxyAddr string) (string, error) {
	if _, err := ctrl.Write([]byte{socksVersion, 1, socksNoAuth}); err != nil {
		return "", err
	}
	greet := make([]byte, 2)
	if _, err := io.ReadFull(ctrl, greet); err != nil {
		return "", err
	}
	if greet[0] != socksVersion || greet[1] != socksNoAuth {
		return "", fmt.Errorf("proxy rejected no-auth handshake: %v", greet)
	}

	// DST 0.0.0.0:0 — we do not know the client port in advance.
	req := []byte{socksVersion, socksCmdAssociate, 0, atypIPv4, 0, 0, 0, 0, 0, 0}
	if _, err := ctrl.Write(req); err != nil {
		return "", err
	}

	head := make([]byte, 4)
	if _, err := io.ReadFull(ctrl, head); err != nil {
		return "", err
	}
	if head[1] != socksRepSuccess {
		return "", fmt.Errorf("associate refused: reply code %d", head[1])
	}

	var boundIP net.IP
	switch head[3] {
	case atypIPv4:
		b := make([]byte, 4+2)
		if _, err := io.ReadFull(ctrl, b); err != nil {
			return "", err
		}
		boundIP = net.IP(b[:4])
		return relayEndpoint(boundIP, binary.BigEndian.Uint16(b[4:]), proxyAddr), nil
	case atypIPv6:
		b := make([]byte, 16+2)
		if _, err := io.ReadFull(ctrl, b); err != nil {
			return "", err
		}
		boundIP = net.IP(b[:16])
		return relayEndpoint(boundIP, binary.BigEndian.Uint16(b[16:]), proxyAddr), nil
	case atypDomain:
		l := make([]byte, 1)
		if _, err := io.ReadFull(ctrl, l); err != nil {
			return "", err
		}
		b := make([]byte, int(l[0])+2)
		if _, err := io.ReadFull(ctrl, b); err != nil {
			return "", err
		}
		host := string(b[:l[0]])
		port := binary.BigEndian.Uint16(b[l[0]:])
		return net.JoinHostPort(host, strconv.Itoa(int(port))), nil
	default:
		return "", fmt.Errorf("associate reply: unknown address type %d", head[3])
	}
}

// relayEndpoint resolves the relay address, substituting the proxy's own
// host when the proxy reports an unspecified bound address.
func relayEndpoint(bound net.IP, port uint16, proxyAddr string) string {
	host := bound.String()
	if bound.IsUnspecified() {
		if h, _, err := net.SplitHostPort(proxyAddr); err == nil {
			host = h
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}

// socksDatagram wraps payload in a SOCKS5 UDP request header addressed
// to target (host:port).
func socksDatagram(target string, payload []byte) ([]byte, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return nil, fmt.Errorf("bad probe target %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("bad probe target port %q: %w", portStr, err)
	}

	// RSV(2) + FRAG(1) + ATYP + DST.ADDR + DST.PORT(2)
	out := []byte{0, 0, 0}
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			out = append(out, atypIPv4)
			out = append(out, ip4...)
		} else {
			out = append(out, atypIPv6)
			out = append(out, ip.To16()...)
		}
	} else {
		if len(host) > 255 {
			return nil, fmt.Errorf("probe target host too long: %q", host)
		}
		out = append(out, atypDomain, byte(len(host)))
		out = append(out, host...)
	}
	out = binary.BigEndian.AppendUint16(out, uint16(port))
	return append(out, payload...), nil
}

// stripSocksDatagram removes the SOCKS5 UDP header from a relayed
// response, returning the inner payload. Fragmented datagrams are not
// supported (FRAG must be zero, as in the relay implementations we run
// against).
func stripSocksDatagram(b []byte) ([]byte, bool) {
	if len(b) < 4 || b[2] != 0 {
		return nil, false
	}
	var hdr int
	switch b[3] {
	case atypIPv4:
		hdr = 4 + 4 + 2
	case atypIPv6:
		hdr = 4 + 16 + 2
	case atypDomain:
		if len(b) < 5 {
			return nil, false
		}
		hdr = 4 + 1 + int(b[4]) + 2
	default:
		return nil, false
	}
	if len(b) <= hdr {
		return nil, false
	}
	return b[hdr:], true
}
