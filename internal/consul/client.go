// Package consul registers multiactivity processes with HashiCorp Consul so
// their /health endpoints are checked by the agent.
package consul

import (
	"fmt"

	"multiactivity/internal/config"

	consulapi "github.com/hashicorp/consul/api"
)

// Client wraps the Consul API client
type Client struct {
	api  *consulapi.Client
	host string
}

// NewClient creates a Consul client from cfg. It returns nil, nil when no
// agent address is configured.
func NewClient(cfg config.ConsulConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	apiConfig := consulapi.DefaultConfig()
	apiConfig.Address = cfg.Addr
	if cfg.Token != "" {
		apiConfig.Token = cfg.Token
	}

	client, err := consulapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}

	return &Client{api: client, host: cfg.ServiceHost}, nil
}

// API returns the underlying Consul API client
func (c *Client) API() *consulapi.Client {
	return c.api
}
