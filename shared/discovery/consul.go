package discovery

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"
)

// ServiceRegistration describes how the service announces itself to Consul.
type ServiceRegistration struct {
	ID          string
	Name        string
	Address     string
	Port        int
	HealthURL   string
	Tags        []string
	CheckPeriod string
}

// ConsulRegistry registers and deregisters the service with a Consul agent.
type ConsulRegistry struct {
	client *consulapi.Client
	logger *zerolog.Logger
}

// NewConsulRegistry creates a registry talking to the agent at addr.
func NewConsulRegistry(addr string, logger *zerolog.Logger) (*ConsulRegistry, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulRegistry{client: client, logger: logger}, nil
}

// Register announces the service with an HTTP health check.
func (r *ConsulRegistry) Register(reg ServiceRegistration) error {
	if err := r.client.Agent().ServiceRegister(agentRegistration(reg)); err != nil {
		return fmt.Errorf("failed to register service %s: %w", reg.ID, err)
	}

	r.logger.Info().Str("service_id", reg.ID).Str("name", reg.Name).Msg("registered with consul")
	return nil
}

// Deregister removes the service from the agent.
func (r *ConsulRegistry) Deregister(serviceID string) error {
	if err := r.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service %s: %w", serviceID, err)
	}

	r.logger.Info().Str("service_id", serviceID).Msg("deregistered from consul")
	return nil
}

func agentRegistration(reg ServiceRegistration) *consulapi.AgentServiceRegistration {
	interval := reg.CheckPeriod
	if interval == "" {
		interval = "10s"
	}

	out := &consulapi.AgentServiceRegistration{
		ID:      reg.ID,
		Name:    reg.Name,
		Address: reg.Address,
		Port:    reg.Port,
		Tags:    reg.Tags,
	}

	if reg.HealthURL != "" {
		out.Check = &consulapi.AgentServiceCheck{
			HTTP:                           reg.HealthURL,
			Interval:                       interval,
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		}
	}

	return out
}
