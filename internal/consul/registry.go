package consul

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

// ServiceConfig contains configuration for service registration
type ServiceConfig struct {
	ID      string
	Name    string
	Address string
	Port    int
	Tags    []string
	Check   *HealthCheck
}

// HealthCheck defines health check configuration
type HealthCheck struct {
	HTTP     string
	Interval string
	Timeout  string
}

// Register registers a service with Consul
func (c *Client) Register(cfg *ServiceConfig) error {
	registration := &consulapi.AgentServiceRegistration{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Address: cfg.Address,
		Port:    cfg.Port,
		Tags:    cfg.Tags,
	}

	if cfg.Check != nil {
		registration.Check = &consulapi.AgentServiceCheck{
			HTTP:                           cfg.Check.HTTP,
			Interval:                       cfg.Check.Interval,
			Timeout:                        cfg.Check.Timeout,
			DeregisterCriticalServiceAfter: "1m",
		}
	}

	if err := c.api.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	return nil
}

// Deregister removes a service from Consul
func (c *Client) Deregister(serviceID string) error {
	if err := c.api.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	return nil
}

// RegisterHTTP registers name on port with an HTTP check against /health on
// the configured service host. Any stale instance with the same id is removed
// first. The returned id is what Deregister expects.
func (c *Client) RegisterHTTP(name string, port int, tags ...string) (string, error) {
	serviceID := fmt.Sprintf("%s-%s-%d", name, c.host, port)

	// leftovers from a crashed run
	_ = c.Deregister(serviceID)

	err := c.Register(&ServiceConfig{
		ID:      serviceID,
		Name:    name,
		Address: c.host,
		Port:    port,
		Tags:    tags,
		Check: &HealthCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/health", c.host, port),
			Interval: "10s",
			Timeout:  "3s",
		},
	})
	if err != nil {
		return "", err
	}
	return serviceID, nil
}
