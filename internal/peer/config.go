package peer

import (
	"fmt"
	"net"
	"time"
)

// ServerConfig holds configuration for the peer server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., "127.0.0.1:7400")
	Address string

	// MaxRecvMsgSize is the maximum message size in bytes the server can receive.
	MaxRecvMsgSize int

	// MaxSendMsgSize is the maximum message size in bytes the server can send.
	MaxSendMsgSize int
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:        "127.0.0.1:7400",
		MaxRecvMsgSize: 1 << 20,
		MaxSendMsgSize: 1 << 20,
	}
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	host, port, err := net.SplitHostPort(c.Address)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.MaxRecvMsgSize <= 0 {
		return fmt.Errorf("max_recv_msg_size must be positive")
	}
	if c.MaxSendMsgSize <= 0 {
		return fmt.Errorf("max_send_msg_size must be positive")
	}
	return nil
}

// RouterConfig tunes outbound delivery.
type RouterConfig struct {
	// CallTimeout bounds one Deliver attempt, including the wait for the connection.
	CallTimeout time.Duration

	// MaxAttempts is the number of tries per message before the outbox gives up.
	MaxAttempts int

	// Backoff is the initial pause between attempts, doubled up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultRouterConfig returns delivery settings suited to daemons that start in any order.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CallTimeout: 5 * time.Second,
		MaxAttempts: 10,
		Backoff:     100 * time.Millisecond,
		MaxBackoff:  3 * time.Second,
	}
}

// Validate checks the router settings.
func (c RouterConfig) Validate() error {
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.Backoff < 0 || c.MaxBackoff < c.Backoff {
		return fmt.Errorf("invalid backoff %s..%s", c.Backoff, c.MaxBackoff)
	}
	return nil
}
