package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"teed-waitlist/internal/common/config"
	"teed-waitlist/internal/common/errors"
)

// Client wraps the Zeebe gRPC client.
type Client struct {
	client  zbc.Client
	timeout time.Duration
}

// ClientConfig holds configuration for the Camunda/Zeebe client.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
}

// NewClient connects to the broker configured in cfg. Plaintext is used; TLS
// needs a ClientConfig.
func NewClient(cfg config.CamundaConfig) (*Client, error) {
	return NewClientWithConfig(&ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      10 * time.Second,
	})
}

// NewClientWithConfig creates the client and checks the topology once so a bad
// address fails at startup.
func NewClientWithConfig(cfg *ClientConfig) (*Client, error) {
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	c := &Client{client: zeebeClient, timeout: cfg.ConnectionTimeout}
	if err := c.Ping(context.Background()); err != nil {
		zeebeClient.Close()
		return nil, err
	}
	return c, nil
}

// Zeebe returns the raw client for job worker registration.
func (c *Client) Zeebe() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Ping requests the broker topology. It doubles as the readiness check.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return mapZeebeError(err, "topology")
	}
	return nil
}

// mapZeebeError converts gateway failures into application errors.
func mapZeebeError(err error, operation string) error {
	msg := fmt.Sprintf("zeebe %s: %s", operation, err.Error())
	lower := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "unauthenticated") ||
		strings.Contains(lower, "unauthorized"):
		return errors.NewAuthenticationError(msg)
	default:
		return errors.NewUpstreamDataError("zeebe", fmt.Errorf("%s", msg))
	}
}
