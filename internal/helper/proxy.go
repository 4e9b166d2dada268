package helper

import (
	"strconv"

	"tunlink/internal/core"
	"tunlink/internal/process"
)

// proxyTimeoutSeconds is the connection timeout passed to the proxy
// binary. Short on purpose: the server has already been probed reachable
// by the time traffic flows.
const proxyTimeoutSeconds = 5

// ProxyProcess runs the local proxy endpoint with connection
// credentials. It is started once per connection and never restarted by
// the mediator.
type ProxyProcess struct {
	*process.ManagedProcess
}

// NewProxy creates the proxy wrapper for the binary at binPath.
func NewProxy(binPath string) *ProxyProcess {
	return &ProxyProcess{ManagedProcess: process.New(binPath)}
}

// Start launches the proxy listening on the local endpoint. The UDP
// relay flag is always passed so the capability probe can succeed
// regardless of what the probe later decides.
func (p *ProxyProcess) Start(cfg core.ServerConfig) error {
	return p.ManagedProcess.Start(ProxyArgs(cfg)...)
}

// ProxyArgs builds the proxy binary's argument list for the given server.
func ProxyArgs(cfg core.ServerConfig) []string {
	return []string{
		"-l", strconv.Itoa(ProxyPort),
		"-s", cfg.Host,
		"-p", strconv.Itoa(cfg.Port),
		"-k", cfg.Password,
		"-m", cfg.Method,
		"-t", strconv.Itoa(proxyTimeoutSeconds),
		"-u",
	}
}
