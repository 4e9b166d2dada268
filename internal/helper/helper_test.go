package helper

import (
	"slices"
	"testing"

	"tunlink/internal/core"
)

func TestProxyArgs(t *testing.T) {
	cfg := core.ServerConfig{
		Host:     "1.2.3.4",
		Port:     8388,
		Password: "p",
		Method:   "aes-128-gcm",
	}

	got := ProxyArgs(cfg)
	want := []string{
		"-l", "1081",
		"-s", "1.2.3.4",
		"-p", "8388",
		"-k", "p",
		"-m", "aes-128-gcm",
		"-t", "5",
		"-u",
	}
	if !slices.Equal(got, want) {
		t.Errorf("ProxyArgs = %v, want %v", got, want)
	}
}

func TestTunnelArgsWithUDP(t *testing.T) {
	args := TunnelArgs(true)

	for _, want := range []string{"--socks5-udp", "--udp-relay-addr", "--transparent-dns"} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %s: %v", want, args)
		}
	}

	// Relay address must be the proxy's own endpoint.
	i := slices.Index(args, "--udp-relay-addr")
	if i < 0 || i+1 >= len(args) || args[i+1] != "127.0.0.1:1081" {
		t.Errorf("udp relay address not 127.0.0.1:1081 in %v", args)
	}
	i = slices.Index(args, "--socks-server-addr")
	if i < 0 || i+1 >= len(args) || args[i+1] != "127.0.0.1:1081" {
		t.Errorf("socks server address not 127.0.0.1:1081 in %v", args)
	}
}

func TestTunnelArgsWithoutUDP(t *testing.T) {
	args := TunnelArgs(false)

	for _, banned := range []string{"--socks5-udp", "--udp-relay-addr"} {
		if slices.Contains(args, banned) {
			t.Errorf("args unexpectedly contain %s: %v", banned, args)
		}
	}
	if !slices.Contains(args, "--transparent-dns") {
		t.Errorf("args missing --transparent-dns: %v", args)
	}
	i := slices.Index(args, "--tundev")
	if i < 0 || i+1 >= len(args) || args[i+1] == "" {
		t.Errorf("missing tundev binding in %v", args)
	}
}
